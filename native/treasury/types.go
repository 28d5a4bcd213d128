package treasury

import (
	"github.com/holiman/uint256"

	"fundtreasury/crypto"
)

// TotalStages is the number of disbursement tranches every proposal goes
// through.
const TotalStages = 2

// Phase enumerates the lifecycle positions a proposal moves through. The
// order is significant: a proposal only ever advances.
type Phase uint8

const (
	// PhaseAwaitingApproval marks submitted proposals collecting votes.
	PhaseAwaitingApproval Phase = iota
	// PhaseAwaitingInitialRelease marks approved proposals whose first
	// tranche has not been paid yet.
	PhaseAwaitingInitialRelease
	// PhaseAwaitingReport marks proposals that received the first tranche
	// and wait for the recipient's progress report.
	PhaseAwaitingReport
	// PhaseAwaitingStageApproval marks proposals with a locked report that
	// collect stage approvals and, once cleared, await the final release.
	PhaseAwaitingStageApproval
	// PhaseReleased marks fully disbursed proposals. Terminal.
	PhaseReleased
)

// String provides a stable textual form for logs and APIs.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingApproval:
		return "awaiting_approval"
	case PhaseAwaitingInitialRelease:
		return "awaiting_initial_release"
	case PhaseAwaitingReport:
		return "awaiting_report"
	case PhaseAwaitingStageApproval:
		return "awaiting_stage_approval"
	case PhaseReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Proposal is a request to disburse Amount from the pool to Recipient.
// Records are append-only; nothing is ever deleted.
type Proposal struct {
	ID             uint64
	Description    string
	Amount         *uint256.Int
	Recipient      crypto.Address
	Proposer       crypto.Address
	CreatedAt      uint64
	Phase          Phase
	Voters         []crypto.Address
	Released       *uint256.Int
	StageReport    string
	StageApprovers []crypto.Address
}

// Votes returns the number of distinct authorities that voted.
func (p *Proposal) Votes() uint64 { return uint64(len(p.Voters)) }

// Approved reports whether the vote count reached the threshold.
func (p *Proposal) Approved() bool { return p.Phase >= PhaseAwaitingInitialRelease }

// Executed reports whether both tranches have been released.
func (p *Proposal) Executed() bool { return p.Phase == PhaseReleased }

// HasVoted reports whether addr is in the vote set.
func (p *Proposal) HasVoted(addr crypto.Address) bool { return contains(p.Voters, addr) }

// HasApprovedStage reports whether addr is in the stage-approval set.
func (p *Proposal) HasApprovedStage(addr crypto.Address) bool {
	return contains(p.StageApprovers, addr)
}

// StageDetails derives the two-stage view consumed by dashboards.
func (p *Proposal) StageDetails() StageDetails {
	details := StageDetails{
		TotalStages:        TotalStages,
		StageReport:        p.StageReport,
		StageApprovalCount: uint64(len(p.StageApprovers)),
	}
	if p.Phase >= PhaseAwaitingReport {
		details.CurrentStage = 1
	}
	if p.Phase >= PhaseAwaitingStageApproval {
		details.StageLocked = true
	}
	return details
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = cloneAmount(p.Amount)
	clone.Released = cloneAmount(p.Released)
	clone.Voters = append([]crypto.Address(nil), p.Voters...)
	clone.StageApprovers = append([]crypto.Address(nil), p.StageApprovers...)
	return &clone
}

// StageDetails is the per-proposal staged-release view.
type StageDetails struct {
	CurrentStage       uint8  `json:"currentStage"`
	TotalStages        uint8  `json:"totalStages"`
	StageReport        string `json:"stageReport"`
	StageApprovalCount uint64 `json:"stageApprovalCount"`
	StageLocked        bool   `json:"stageLocked"`
}

// TransferInstruction is the outbound payment the settlement layer must
// execute after the operation that produced it commits.
type TransferInstruction struct {
	ProposalID uint64         `json:"proposalId"`
	Stage      uint8          `json:"stage"`
	Recipient  crypto.Address `json:"recipient"`
	Amount     *uint256.Int   `json:"amount"`
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func contains(set []crypto.Address, addr crypto.Address) bool {
	for _, member := range set {
		if member == addr {
			return true
		}
	}
	return false
}
