package treasury

import (
	"fmt"

	"fundtreasury/crypto"
)

// AuthorityRegistry owns the authority set and the approval threshold.
// Membership is kept in insertion order so listings are deterministic.
type AuthorityRegistry struct {
	owner    crypto.Address
	members  []crypto.Address
	required uint64
}

// NewAuthorityRegistry validates the genesis authority configuration.
func NewAuthorityRegistry(owner crypto.Address, authorities []crypto.Address, required uint64) (*AuthorityRegistry, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("treasury: owner must not be the zero address")
	}
	registry := &AuthorityRegistry{owner: owner}
	for _, addr := range authorities {
		if err := registry.add(addr); err != nil {
			return nil, fmt.Errorf("%w: genesis authority %s", err, addr)
		}
	}
	if required == 0 || required > uint64(len(registry.members)) {
		return nil, fmt.Errorf("%w: genesis requires %d of %d", ErrInvalidThreshold, required, len(registry.members))
	}
	registry.required = required
	return registry, nil
}

// Owner returns the owner principal.
func (r *AuthorityRegistry) Owner() crypto.Address { return r.owner }

// RequiredApprovals returns the current quorum size.
func (r *AuthorityRegistry) RequiredApprovals() uint64 { return r.required }

// Count returns the number of authorities.
func (r *AuthorityRegistry) Count() int { return len(r.members) }

// IsAuthority reports whether addr is currently an authority.
func (r *AuthorityRegistry) IsAuthority(addr crypto.Address) bool {
	if addr.IsZero() {
		return false
	}
	return contains(r.members, addr)
}

// Authorities returns a copy of the authority set in insertion order.
func (r *AuthorityRegistry) Authorities() []crypto.Address {
	return append([]crypto.Address(nil), r.members...)
}

func (r *AuthorityRegistry) add(addr crypto.Address) error {
	if addr.IsZero() {
		return ErrInvalidAuthority
	}
	if contains(r.members, addr) {
		return ErrDuplicateAuthority
	}
	r.members = append(r.members, addr)
	return nil
}

func (r *AuthorityRegistry) remove(addr crypto.Address) error {
	idx := -1
	for i, member := range r.members {
		if member == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownAuthority
	}
	if uint64(len(r.members)-1) < r.required {
		return fmt.Errorf("%w: %d authorities would remain, %d approvals required",
			ErrMinimumAuthoritiesViolation, len(r.members)-1, r.required)
	}
	r.members = append(r.members[:idx:idx], r.members[idx+1:]...)
	return nil
}

func (r *AuthorityRegistry) setRequired(n uint64) error {
	if n == 0 || n > uint64(len(r.members)) {
		return fmt.Errorf("%w: got %d with %d authorities", ErrInvalidThreshold, n, len(r.members))
	}
	r.required = n
	return nil
}
