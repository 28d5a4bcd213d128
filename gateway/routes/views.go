package routes

import (
	"github.com/holiman/uint256"

	"fundtreasury/crypto"
	"fundtreasury/ledger"
	"fundtreasury/native/treasury"
)

type proposalView struct {
	ID             uint64                `json:"id"`
	Description    string                `json:"description"`
	Amount         *uint256.Int          `json:"amount"`
	Recipient      crypto.Address        `json:"recipient"`
	Proposer       crypto.Address        `json:"proposer"`
	CreatedAt      uint64                `json:"createdAt"`
	Phase          string                `json:"phase"`
	Votes          uint64                `json:"votes"`
	Voters         []crypto.Address      `json:"voters"`
	Approved       bool                  `json:"approved"`
	Executed       bool                  `json:"executed"`
	Released       *uint256.Int          `json:"released"`
	InitialTranche *uint256.Int          `json:"initialTranche"`
	Stage          treasury.StageDetails `json:"stage"`
	StageApprovers []crypto.Address      `json:"stageApprovers"`
}

func newProposalView(engine *treasury.Engine, p *treasury.Proposal) proposalView {
	voters := p.Voters
	if voters == nil {
		voters = []crypto.Address{}
	}
	approvers := p.StageApprovers
	if approvers == nil {
		approvers = []crypto.Address{}
	}
	return proposalView{
		ID:             p.ID,
		Description:    p.Description,
		Amount:         p.Amount,
		Recipient:      p.Recipient,
		Proposer:       p.Proposer,
		CreatedAt:      p.CreatedAt,
		Phase:          p.Phase.String(),
		Votes:          p.Votes(),
		Voters:         voters,
		Approved:       p.Approved(),
		Executed:       p.Executed(),
		Released:       p.Released,
		InitialTranche: engine.InitialTranche(p.Amount),
		Stage:          p.StageDetails(),
		StageApprovers: approvers,
	}
}

type headView struct {
	Sequence uint64      `json:"sequence"`
	Hash     ledger.Hash `json:"hash"`
}

type summaryView struct {
	Owner             crypto.Address `json:"owner"`
	Balance           *uint256.Int   `json:"balance"`
	TotalDeposited    *uint256.Int   `json:"totalDeposited"`
	TotalReleased     *uint256.Int   `json:"totalReleased"`
	RequiredApprovals uint64         `json:"requiredApprovals"`
	AuthorityCount    int            `json:"authorityCount"`
	ProposalCount     uint64         `json:"proposalCount"`
	InitialReleaseBps uint64         `json:"initialReleaseBps"`
	Head              headView       `json:"head"`
}

type authoritiesView struct {
	Authorities       []crypto.Address `json:"authorities"`
	RequiredApprovals uint64           `json:"requiredApprovals"`
}

// mutationResponse is the body returned by every accepted operation.
type mutationResponse struct {
	ledger.Result
	Proposal *proposalView `json:"proposal,omitempty"`
}

type depositRequest struct {
	Amount *uint256.Int `json:"amount"`
}

type authorityRequest struct {
	Address string `json:"address"`
}

type thresholdRequest struct {
	RequiredApprovals uint64 `json:"requiredApprovals"`
}

type proposalRequest struct {
	Description string       `json:"description"`
	Amount      *uint256.Int `json:"amount"`
	Recipient   string       `json:"recipient"`
}

type reportRequest struct {
	Report string `json:"report"`
}

type exportRequest struct {
	ProposalID   uint64 `json:"proposalId"`
	EventType    string `json:"eventType"`
	Caller       string `json:"caller"`
	FromSequence uint64 `json:"fromSequence"`
}
