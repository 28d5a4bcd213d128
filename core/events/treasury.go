package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"fundtreasury/core/types"
	"fundtreasury/crypto"
)

const (
	TypeTreasuryDeposit           = "treasury.deposit"
	TypeTreasuryAuthorityAdded    = "treasury.authority.added"
	TypeTreasuryAuthorityRemoved  = "treasury.authority.removed"
	TypeTreasuryThresholdUpdated  = "treasury.threshold.updated"
	TypeTreasuryProposalSubmitted = "treasury.proposal.submitted"
	TypeTreasuryProposalVoted     = "treasury.proposal.voted"
	TypeTreasuryProposalApproved  = "treasury.proposal.approved"
	TypeTreasuryFundsReleased     = "treasury.funds.released"
	TypeTreasuryStageReported     = "treasury.stage.reported"
	TypeTreasuryStageApproved     = "treasury.stage.approved"
	TypeTreasuryStageCleared      = "treasury.stage.cleared"
	TypeTreasuryProposalExecuted  = "treasury.proposal.executed"
)

// TreasuryDeposit is emitted when a depositor credits the pool.
type TreasuryDeposit struct {
	Depositor crypto.Address
	Amount    *uint256.Int
	Balance   *uint256.Int
}

func (TreasuryDeposit) EventType() string { return TypeTreasuryDeposit }

func (e TreasuryDeposit) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryDeposit, Attributes: map[string]string{
		"depositor": e.Depositor.Hex(),
		"amount":    formatUint256(e.Amount),
		"balance":   formatUint256(e.Balance),
	}}
}

// TreasuryAuthorityChanged is emitted when the owner adds or removes an
// authority. Added distinguishes the two event types.
type TreasuryAuthorityChanged struct {
	Authority crypto.Address
	Added     bool
	Count     int
}

func (e TreasuryAuthorityChanged) EventType() string {
	if e.Added {
		return TypeTreasuryAuthorityAdded
	}
	return TypeTreasuryAuthorityRemoved
}

func (e TreasuryAuthorityChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"authority": e.Authority.Hex(),
		"count":     strconv.Itoa(e.Count),
	}}
}

// TreasuryThresholdUpdated is emitted when the approval quorum changes.
type TreasuryThresholdUpdated struct {
	Previous uint64
	Required uint64
}

func (TreasuryThresholdUpdated) EventType() string { return TypeTreasuryThresholdUpdated }

func (e TreasuryThresholdUpdated) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryThresholdUpdated, Attributes: map[string]string{
		"previous": strconv.FormatUint(e.Previous, 10),
		"required": strconv.FormatUint(e.Required, 10),
	}}
}

// TreasuryProposalSubmitted is emitted when a proposal is admitted.
type TreasuryProposalSubmitted struct {
	ProposalID uint64
	Proposer   crypto.Address
	Recipient  crypto.Address
	Amount     *uint256.Int
	CreatedAt  uint64
}

func (TreasuryProposalSubmitted) EventType() string { return TypeTreasuryProposalSubmitted }

func (e TreasuryProposalSubmitted) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryProposalSubmitted, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"proposer":   e.Proposer.Hex(),
		"recipient":  e.Recipient.Hex(),
		"amount":     formatUint256(e.Amount),
		"createdAt":  strconv.FormatUint(e.CreatedAt, 10),
	}}
}

// TreasuryProposalVoted is emitted for every accepted vote.
type TreasuryProposalVoted struct {
	ProposalID uint64
	Voter      crypto.Address
	Votes      uint64
}

func (TreasuryProposalVoted) EventType() string { return TypeTreasuryProposalVoted }

func (e TreasuryProposalVoted) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryProposalVoted, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"voter":      e.Voter.Hex(),
		"votes":      strconv.FormatUint(e.Votes, 10),
	}}
}

// TreasuryProposalApproved is emitted exactly once per proposal, when the
// vote count first reaches the threshold.
type TreasuryProposalApproved struct {
	ProposalID uint64
	Votes      uint64
	Required   uint64
}

func (TreasuryProposalApproved) EventType() string { return TypeTreasuryProposalApproved }

func (e TreasuryProposalApproved) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryProposalApproved, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"votes":      strconv.FormatUint(e.Votes, 10),
		"required":   strconv.FormatUint(e.Required, 10),
	}}
}

// TreasuryFundsReleased is emitted for each tranche paid to a recipient.
type TreasuryFundsReleased struct {
	ProposalID uint64
	Stage      uint8
	Recipient  crypto.Address
	Amount     *uint256.Int
	Released   *uint256.Int
	Balance    *uint256.Int
}

func (TreasuryFundsReleased) EventType() string { return TypeTreasuryFundsReleased }

func (e TreasuryFundsReleased) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryFundsReleased, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"stage":      strconv.FormatUint(uint64(e.Stage), 10),
		"recipient":  e.Recipient.Hex(),
		"amount":     formatUint256(e.Amount),
		"released":   formatUint256(e.Released),
		"balance":    formatUint256(e.Balance),
	}}
}

// TreasuryStageReported is emitted when the recipient locks a progress
// report.
type TreasuryStageReported struct {
	ProposalID uint64
	Recipient  crypto.Address
	ReportSize int
}

func (TreasuryStageReported) EventType() string { return TypeTreasuryStageReported }

func (e TreasuryStageReported) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryStageReported, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"recipient":  e.Recipient.Hex(),
		"reportSize": strconv.Itoa(e.ReportSize),
	}}
}

// TreasuryStageApproved is emitted for every accepted stage approval.
type TreasuryStageApproved struct {
	ProposalID uint64
	Approver   crypto.Address
	Count      uint64
}

func (TreasuryStageApproved) EventType() string { return TypeTreasuryStageApproved }

func (e TreasuryStageApproved) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryStageApproved, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"approver":   e.Approver.Hex(),
		"count":      strconv.FormatUint(e.Count, 10),
	}}
}

// TreasuryStageCleared is emitted when stage approvals reach the threshold.
type TreasuryStageCleared struct {
	ProposalID uint64
	Count      uint64
	Required   uint64
}

func (TreasuryStageCleared) EventType() string { return TypeTreasuryStageCleared }

func (e TreasuryStageCleared) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryStageCleared, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"count":      strconv.FormatUint(e.Count, 10),
		"required":   strconv.FormatUint(e.Required, 10),
	}}
}

// TreasuryProposalExecuted is emitted once the final tranche is released.
type TreasuryProposalExecuted struct {
	ProposalID uint64
	Total      *uint256.Int
}

func (TreasuryProposalExecuted) EventType() string { return TypeTreasuryProposalExecuted }

func (e TreasuryProposalExecuted) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryProposalExecuted, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"total":      formatUint256(e.Total),
	}}
}

func formatUint256(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
