// Package treasury implements a governed treasury. Participants deposit into
// a shared pool, anyone may propose an allocation, a fixed set of authorities
// votes allocations through, and approved allocations are paid in two
// tranches: the first on approval, the second after the recipient files a
// progress report and the authorities approve it again.
package treasury
