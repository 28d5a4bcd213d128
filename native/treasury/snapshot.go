package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	"fundtreasury/crypto"
)

// Snapshot is the serialisable form of the full engine state. Amounts are
// decimal strings so the encoding does not depend on the integer library.
type Snapshot struct {
	Owner             crypto.Address     `json:"owner"`
	Authorities       []crypto.Address   `json:"authorities"`
	RequiredApprovals uint64             `json:"requiredApprovals"`
	Balance           string             `json:"balance"`
	TotalDeposited    string             `json:"totalDeposited"`
	TotalReleased     string             `json:"totalReleased"`
	Proposals         []ProposalSnapshot `json:"proposals"`
}

// ProposalSnapshot is the serialisable form of a Proposal.
type ProposalSnapshot struct {
	ID             uint64           `json:"id"`
	Description    string           `json:"description"`
	Amount         string           `json:"amount"`
	Recipient      crypto.Address   `json:"recipient"`
	Proposer       crypto.Address   `json:"proposer"`
	CreatedAt      uint64           `json:"createdAt"`
	Phase          Phase            `json:"phase"`
	Voters         []crypto.Address `json:"voters"`
	Released       string           `json:"released"`
	StageReport    string           `json:"stageReport,omitempty"`
	StageApprovers []crypto.Address `json:"stageApprovers,omitempty"`
}

// Export captures the current state. Pending transfer instructions are not
// part of the snapshot; the ledger drains them on every commit.
func (e *Engine) Export() Snapshot {
	snap := Snapshot{
		Owner:             e.registry.Owner(),
		Authorities:       e.registry.Authorities(),
		RequiredApprovals: e.registry.RequiredApprovals(),
		Balance:           e.treasury.balance.Dec(),
		TotalDeposited:    e.treasury.deposited.Dec(),
		TotalReleased:     e.treasury.released.Dec(),
		Proposals:         make([]ProposalSnapshot, 0, e.proposals.Count()),
	}
	for _, p := range e.proposals.proposals {
		snap.Proposals = append(snap.Proposals, ProposalSnapshot{
			ID:             p.ID,
			Description:    p.Description,
			Amount:         p.Amount.Dec(),
			Recipient:      p.Recipient,
			Proposer:       p.Proposer,
			CreatedAt:      p.CreatedAt,
			Phase:          p.Phase,
			Voters:         append([]crypto.Address(nil), p.Voters...),
			Released:       p.Released.Dec(),
			StageReport:    p.StageReport,
			StageApprovers: append([]crypto.Address(nil), p.StageApprovers...),
		})
	}
	return snap
}

// Restore rebuilds an engine from a snapshot, re-validating the invariants
// a snapshot must satisfy.
func Restore(snap Snapshot, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewAuthorityRegistry(snap.Owner, snap.Authorities, snap.RequiredApprovals)
	if err != nil {
		return nil, fmt.Errorf("treasury: restore registry: %w", err)
	}
	pool := NewTreasury()
	if pool.balance, err = parseAmount("balance", snap.Balance); err != nil {
		return nil, err
	}
	if pool.deposited, err = parseAmount("totalDeposited", snap.TotalDeposited); err != nil {
		return nil, err
	}
	if pool.released, err = parseAmount("totalReleased", snap.TotalReleased); err != nil {
		return nil, err
	}
	if accounted, overflow := new(uint256.Int).AddOverflow(pool.balance, pool.released); overflow || !accounted.Eq(pool.deposited) {
		return nil, fmt.Errorf("treasury: restore: balance %s + released %s != deposited %s",
			pool.balance.Dec(), pool.released.Dec(), pool.deposited.Dec())
	}

	store := NewProposalStore()
	for i, ps := range snap.Proposals {
		if ps.ID != uint64(i)+1 {
			return nil, fmt.Errorf("treasury: restore: proposal ids not dense at %d", ps.ID)
		}
		if ps.Phase > PhaseReleased {
			return nil, fmt.Errorf("treasury: restore: proposal %d has invalid phase %d", ps.ID, ps.Phase)
		}
		amount, err := parseAmount("amount", ps.Amount)
		if err != nil {
			return nil, err
		}
		released, err := parseAmount("released", ps.Released)
		if err != nil {
			return nil, err
		}
		if released.Gt(amount) {
			return nil, fmt.Errorf("treasury: restore: proposal %d released more than requested", ps.ID)
		}
		store.append(&Proposal{
			Description:    ps.Description,
			Amount:         amount,
			Recipient:      ps.Recipient,
			Proposer:       ps.Proposer,
			CreatedAt:      ps.CreatedAt,
			Phase:          ps.Phase,
			Voters:         append([]crypto.Address(nil), ps.Voters...),
			Released:       released,
			StageReport:    ps.StageReport,
			StageApprovers: append([]crypto.Address(nil), ps.StageApprovers...),
		})
	}
	return newEngine(registry, pool, store, params), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	if raw == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("treasury: restore: invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}
