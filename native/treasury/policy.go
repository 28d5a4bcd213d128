package treasury

import (
	"fmt"
	"strings"

	"fundtreasury/crypto"
)

// BasisPoints is the denominator for InitialReleaseBps.
const BasisPoints = 10_000

// DefaultInitialReleaseBps releases half of the requested amount as the
// first tranche.
const DefaultInitialReleaseBps = 5_000

// VoteAfterApproval selects how votes arriving after approval are treated.
type VoteAfterApproval uint8

const (
	// VoteAfterApprovalReject rejects late votes with ErrAlreadyApproved.
	VoteAfterApprovalReject VoteAfterApproval = iota
	// VoteAfterApprovalNoop accepts late votes without recording them.
	VoteAfterApprovalNoop
)

func (v VoteAfterApproval) String() string {
	if v == VoteAfterApprovalNoop {
		return "noop"
	}
	return "reject"
}

// ParseVoteAfterApproval decodes the configuration spelling. Empty selects
// the default.
func ParseVoteAfterApproval(raw string) (VoteAfterApproval, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reject":
		return VoteAfterApprovalReject, nil
	case "noop":
		return VoteAfterApprovalNoop, nil
	default:
		return 0, fmt.Errorf("treasury: unknown vote_after_approval %q", raw)
	}
}

// ReleaseCaller selects who may trigger the two release operations.
type ReleaseCaller uint8

const (
	// ReleaseCallerOwner restricts releases to the owner.
	ReleaseCallerOwner ReleaseCaller = iota
	// ReleaseCallerAny lets any principal trigger a release whose business
	// guards are satisfied. Funds still only ever go to the recipient.
	ReleaseCallerAny
)

func (r ReleaseCaller) String() string {
	if r == ReleaseCallerAny {
		return "any"
	}
	return "owner"
}

// ParseReleaseCaller decodes the configuration spelling. Empty selects the
// default.
func ParseReleaseCaller(raw string) (ReleaseCaller, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "owner":
		return ReleaseCallerOwner, nil
	case "any":
		return ReleaseCallerAny, nil
	default:
		return 0, fmt.Errorf("treasury: unknown release_caller %q", raw)
	}
}

// Params are the runtime knobs of the disbursement lifecycle.
type Params struct {
	InitialReleaseBps uint64
	VoteAfterApproval VoteAfterApproval
	ReleaseCaller     ReleaseCaller
}

// DefaultParams returns a 50/50 split, late votes rejected and owner-only
// releases.
func DefaultParams() Params {
	return Params{InitialReleaseBps: DefaultInitialReleaseBps}
}

// Validate ensures both tranches are non-empty fractions of the amount.
func (p Params) Validate() error {
	if p.InitialReleaseBps == 0 || p.InitialReleaseBps >= BasisPoints {
		return fmt.Errorf("treasury: initial release bps must be within [1, %d]", BasisPoints-1)
	}
	if p.VoteAfterApproval > VoteAfterApprovalNoop {
		return fmt.Errorf("treasury: invalid vote after approval mode %d", p.VoteAfterApproval)
	}
	if p.ReleaseCaller > ReleaseCallerAny {
		return fmt.Errorf("treasury: invalid release caller mode %d", p.ReleaseCaller)
	}
	return nil
}

// AccessPolicy is the single place that answers "who may call this". Every
// mutating operation consults it and never performs ad hoc identity checks.
type AccessPolicy struct {
	registry      *AuthorityRegistry
	releaseCaller ReleaseCaller
}

// IsOwner reports whether caller is the owner principal.
func (p AccessPolicy) IsOwner(caller crypto.Address) bool {
	return p.registry != nil && !caller.IsZero() && caller == p.registry.Owner()
}

// IsAuthority reports whether caller is currently an authority.
func (p AccessPolicy) IsAuthority(caller crypto.Address) bool {
	return p.registry != nil && p.registry.IsAuthority(caller)
}

// IsRecipientOf reports whether caller is the recipient of the proposal.
func (p AccessPolicy) IsRecipientOf(proposal *Proposal, caller crypto.Address) bool {
	return proposal != nil && !caller.IsZero() && proposal.Recipient == caller
}

// CanRelease reports whether caller may trigger a release under the
// configured release policy.
func (p AccessPolicy) CanRelease(caller crypto.Address) bool {
	if p.releaseCaller == ReleaseCallerAny {
		return true
	}
	return p.IsOwner(caller)
}

func (p AccessPolicy) requireOwner(caller crypto.Address) error {
	if !p.IsOwner(caller) {
		return ErrNotOwner
	}
	return nil
}

func (p AccessPolicy) requireAuthority(caller crypto.Address) error {
	if !p.IsAuthority(caller) {
		return ErrNotAuthority
	}
	return nil
}

func (p AccessPolicy) requireRecipient(proposal *Proposal, caller crypto.Address) error {
	if !p.IsRecipientOf(proposal, caller) {
		return ErrNotRecipient
	}
	return nil
}

func (p AccessPolicy) requireReleaser(caller crypto.Address) error {
	if !p.CanRelease(caller) {
		return ErrNotOwner
	}
	return nil
}
