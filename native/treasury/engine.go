package treasury

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"fundtreasury/core/events"
	"fundtreasury/crypto"
)

// Genesis seeds the authority registry of a fresh treasury.
type Genesis struct {
	Owner             crypto.Address
	Authorities       []crypto.Address
	RequiredApprovals uint64
}

// Engine is the governed treasury: it routes every operation through the
// access policy, validates the full guard set and only then mutates the
// registry, pool and proposal store. A rejected operation leaves no
// observable trace.
//
// Engine is not safe for concurrent use. The ledger applies operations one
// at a time.
type Engine struct {
	registry  *AuthorityRegistry
	treasury  *Treasury
	proposals *ProposalStore
	policy    AccessPolicy
	params    Params
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewEngine constructs an engine from genesis and lifecycle parameters.
func NewEngine(genesis Genesis, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewAuthorityRegistry(genesis.Owner, genesis.Authorities, genesis.RequiredApprovals)
	if err != nil {
		return nil, err
	}
	return newEngine(registry, NewTreasury(), NewProposalStore(), params), nil
}

func newEngine(registry *AuthorityRegistry, pool *Treasury, store *ProposalStore, params Params) *Engine {
	return &Engine{
		registry:  registry,
		treasury:  pool,
		proposals: store,
		policy:    AccessPolicy{registry: registry, releaseCaller: params.ReleaseCaller},
		params:    params,
		emitter:   events.NoopEmitter{},
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp proposals. Nil restores the
// default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Policy exposes the access predicates for read-only callers.
func (e *Engine) Policy() AccessPolicy { return e.policy }

// Params returns the lifecycle parameters.
func (e *Engine) Params() Params { return e.params }

// AddAuthority appends addr to the authority set. Owner only.
func (e *Engine) AddAuthority(caller, addr crypto.Address) error {
	if err := e.policy.requireOwner(caller); err != nil {
		return err
	}
	if err := e.registry.add(addr); err != nil {
		return err
	}
	e.emit(events.TreasuryAuthorityChanged{Authority: addr, Added: true, Count: e.registry.Count()})
	return nil
}

// RemoveAuthority drops addr from the authority set. Votes and stage
// approvals it already cast stay recorded.
func (e *Engine) RemoveAuthority(caller, addr crypto.Address) error {
	if err := e.policy.requireOwner(caller); err != nil {
		return err
	}
	if err := e.registry.remove(addr); err != nil {
		return err
	}
	e.emit(events.TreasuryAuthorityChanged{Authority: addr, Added: false, Count: e.registry.Count()})
	return nil
}

// UpdateRequiredApprovals replaces the quorum size. Owner only.
func (e *Engine) UpdateRequiredApprovals(caller crypto.Address, n uint64) error {
	if err := e.policy.requireOwner(caller); err != nil {
		return err
	}
	previous := e.registry.RequiredApprovals()
	if err := e.registry.setRequired(n); err != nil {
		return err
	}
	e.emit(events.TreasuryThresholdUpdated{Previous: previous, Required: n})
	return nil
}

// Owner returns the owner principal.
func (e *Engine) Owner() crypto.Address { return e.registry.Owner() }

// IsAuthority reports whether addr is an authority.
func (e *Engine) IsAuthority(addr crypto.Address) bool { return e.registry.IsAuthority(addr) }

// Authorities lists the authority set.
func (e *Engine) Authorities() []crypto.Address { return e.registry.Authorities() }

// RequiredApprovals returns the quorum size.
func (e *Engine) RequiredApprovals() uint64 { return e.registry.RequiredApprovals() }

// DepositFunds credits the pool. Any caller may deposit.
func (e *Engine) DepositFunds(caller crypto.Address, amount *uint256.Int) error {
	if err := e.treasury.deposit(amount); err != nil {
		return err
	}
	e.emit(events.TreasuryDeposit{Depositor: caller, Amount: cloneAmount(amount), Balance: e.treasury.Balance()})
	return nil
}

// TreasuryBalance returns the pool balance.
func (e *Engine) TreasuryBalance() *uint256.Int { return e.treasury.Balance() }

// TotalDeposited returns the sum of accepted deposits.
func (e *Engine) TotalDeposited() *uint256.Int { return e.treasury.TotalDeposited() }

// TotalReleased returns the sum of all tranches paid out.
func (e *Engine) TotalReleased() *uint256.Int { return e.treasury.TotalReleased() }

// DrainTransfers returns the transfer instructions produced since the last
// drain.
func (e *Engine) DrainTransfers() []TransferInstruction { return e.treasury.DrainTransfers() }

// SubmitProposal admits a new proposal and returns its identifier. Any
// caller may submit.
func (e *Engine) SubmitProposal(caller crypto.Address, description string, amount *uint256.Int, recipient crypto.Address) (uint64, error) {
	description = normalizeText(description)
	if strings.TrimSpace(description) == "" {
		return 0, ErrEmptyDescription
	}
	if amount == nil || amount.IsZero() {
		return 0, ErrZeroAmount
	}
	if recipient.IsZero() {
		return 0, ErrInvalidRecipient
	}
	proposal := &Proposal{
		Description: description,
		Amount:      cloneAmount(amount),
		Recipient:   recipient,
		Proposer:    caller,
		CreatedAt:   uint64(e.nowFn().Unix()),
		Phase:       PhaseAwaitingApproval,
		Released:    new(uint256.Int),
	}
	id := e.proposals.append(proposal)
	e.emit(events.TreasuryProposalSubmitted{
		ProposalID: id,
		Proposer:   caller,
		Recipient:  recipient,
		Amount:     cloneAmount(amount),
		CreatedAt:  proposal.CreatedAt,
	})
	return id, nil
}

// VoteOnProposal records the caller's vote. The proposal becomes approved
// exactly once, on the vote that first reaches the threshold.
func (e *Engine) VoteOnProposal(caller crypto.Address, id uint64) error {
	if err := e.policy.requireAuthority(caller); err != nil {
		return err
	}
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return err
	}
	if proposal.HasVoted(caller) {
		return fmt.Errorf("%w: proposal %d", ErrAlreadyVoted, id)
	}
	if proposal.Approved() {
		if e.params.VoteAfterApproval == VoteAfterApprovalNoop {
			return nil
		}
		return fmt.Errorf("%w: proposal %d", ErrAlreadyApproved, id)
	}
	if err := e.proposals.recordVote(proposal, caller); err != nil {
		return err
	}
	e.emit(events.TreasuryProposalVoted{ProposalID: id, Voter: caller, Votes: proposal.Votes()})
	required := e.registry.RequiredApprovals()
	if proposal.Votes() >= required {
		proposal.Phase = PhaseAwaitingInitialRelease
		e.emit(events.TreasuryProposalApproved{ProposalID: id, Votes: proposal.Votes(), Required: required})
	}
	return nil
}

// InitialTranche computes the first-stage amount for a requested amount.
func (e *Engine) InitialTranche(amount *uint256.Int) *uint256.Int {
	return initialTranche(amount, e.params.InitialReleaseBps)
}

func initialTranche(amount *uint256.Int, bps uint64) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	// amount*bps cannot overflow the 512-bit intermediate, and the quotient
	// is at most amount.
	first, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(bps), uint256.NewInt(BasisPoints))
	return first
}

// ReleaseInitialFunds pays the first tranche of an approved proposal and
// opens the reporting stage.
func (e *Engine) ReleaseInitialFunds(caller crypto.Address, id uint64) (TransferInstruction, error) {
	if err := e.policy.requireReleaser(caller); err != nil {
		return TransferInstruction{}, err
	}
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return TransferInstruction{}, err
	}
	if !proposal.Approved() {
		return TransferInstruction{}, fmt.Errorf("%w: proposal %d", ErrNotApproved, id)
	}
	if proposal.Phase != PhaseAwaitingInitialRelease {
		return TransferInstruction{}, fmt.Errorf("%w: proposal %d", ErrAlreadyReleased, id)
	}
	instr := TransferInstruction{
		ProposalID: id,
		Stage:      0,
		Recipient:  proposal.Recipient,
		Amount:     e.InitialTranche(proposal.Amount),
	}
	if err := e.treasury.transferOut(instr); err != nil {
		return TransferInstruction{}, err
	}
	proposal.Released = new(uint256.Int).Add(proposal.Released, instr.Amount)
	proposal.Phase = PhaseAwaitingReport
	e.emit(events.TreasuryFundsReleased{
		ProposalID: id,
		Stage:      0,
		Recipient:  proposal.Recipient,
		Amount:     cloneAmount(instr.Amount),
		Released:   cloneAmount(proposal.Released),
		Balance:    e.treasury.Balance(),
	})
	return instr, nil
}

// SubmitStageReport locks the recipient's progress report for the second
// stage. Reports are one-shot.
func (e *Engine) SubmitStageReport(caller crypto.Address, id uint64, report string) error {
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return err
	}
	if err := e.policy.requireRecipient(proposal, caller); err != nil {
		return err
	}
	switch {
	case proposal.Phase < PhaseAwaitingReport:
		return fmt.Errorf("%w: proposal %d is %s", ErrWrongStage, id, proposal.Phase)
	case proposal.Phase > PhaseAwaitingReport:
		return fmt.Errorf("%w: proposal %d", ErrAlreadyLocked, id)
	}
	report = normalizeText(report)
	if strings.TrimSpace(report) == "" {
		return ErrEmptyReport
	}
	proposal.StageReport = report
	proposal.StageApprovers = nil
	proposal.Phase = PhaseAwaitingStageApproval
	e.emit(events.TreasuryStageReported{ProposalID: id, Recipient: caller, ReportSize: len(report)})
	return nil
}

// ApproveStage records the caller's approval of the locked stage report.
func (e *Engine) ApproveStage(caller crypto.Address, id uint64) error {
	if err := e.policy.requireAuthority(caller); err != nil {
		return err
	}
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return err
	}
	if proposal.Executed() {
		return fmt.Errorf("%w: proposal %d", ErrAlreadyExecuted, id)
	}
	if proposal.Phase != PhaseAwaitingStageApproval {
		return fmt.Errorf("%w: proposal %d", ErrNotLocked, id)
	}
	if proposal.HasApprovedStage(caller) {
		return fmt.Errorf("%w: proposal %d", ErrAlreadyApprovedStage, id)
	}
	required := e.registry.RequiredApprovals()
	if uint64(len(proposal.StageApprovers)) >= required {
		return fmt.Errorf("%w: proposal %d", ErrStageAlreadyCleared, id)
	}
	if err := e.proposals.recordStageApproval(proposal, caller); err != nil {
		return err
	}
	count := uint64(len(proposal.StageApprovers))
	e.emit(events.TreasuryStageApproved{ProposalID: id, Approver: caller, Count: count})
	if count >= required {
		e.emit(events.TreasuryStageCleared{ProposalID: id, Count: count, Required: required})
	}
	return nil
}

// StageCleared reports whether the proposal's stage approvals meet the
// current threshold.
func (e *Engine) StageCleared(p *Proposal) bool {
	return p != nil && p.Phase == PhaseAwaitingStageApproval &&
		uint64(len(p.StageApprovers)) >= e.registry.RequiredApprovals()
}

// ReleaseNextStageFunds pays the remainder of a proposal whose stage report
// cleared the approval quorum, and marks the proposal executed.
func (e *Engine) ReleaseNextStageFunds(caller crypto.Address, id uint64) (TransferInstruction, error) {
	if err := e.policy.requireReleaser(caller); err != nil {
		return TransferInstruction{}, err
	}
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return TransferInstruction{}, err
	}
	if proposal.Executed() {
		return TransferInstruction{}, fmt.Errorf("%w: proposal %d", ErrAlreadyExecuted, id)
	}
	if !e.StageCleared(proposal) {
		return TransferInstruction{}, fmt.Errorf("%w: proposal %d has %d of %d stage approvals",
			ErrStageNotCleared, id, len(proposal.StageApprovers), e.registry.RequiredApprovals())
	}
	instr := TransferInstruction{
		ProposalID: id,
		Stage:      1,
		Recipient:  proposal.Recipient,
		Amount:     new(uint256.Int).Sub(proposal.Amount, proposal.Released),
	}
	if err := e.treasury.transferOut(instr); err != nil {
		return TransferInstruction{}, err
	}
	proposal.Released = cloneAmount(proposal.Amount)
	proposal.Phase = PhaseReleased
	e.emit(events.TreasuryFundsReleased{
		ProposalID: id,
		Stage:      1,
		Recipient:  proposal.Recipient,
		Amount:     cloneAmount(instr.Amount),
		Released:   cloneAmount(proposal.Released),
		Balance:    e.treasury.Balance(),
	})
	e.emit(events.TreasuryProposalExecuted{ProposalID: id, Total: cloneAmount(proposal.Amount)})
	return instr, nil
}

// ProposalCount returns the number of proposals submitted so far.
func (e *Engine) ProposalCount() uint64 { return e.proposals.Count() }

// GetProposal returns a copy of the proposal.
func (e *Engine) GetProposal(id uint64) (*Proposal, error) { return e.proposals.Get(id) }

// Proposals lists every proposal ordered by id.
func (e *Engine) Proposals() []*Proposal { return e.proposals.List() }

// GetProposalStageDetails returns the staged-release view of the proposal.
func (e *Engine) GetProposalStageDetails(id uint64) (StageDetails, error) {
	proposal, err := e.proposals.lookup(id)
	if err != nil {
		return StageDetails{}, err
	}
	return proposal.StageDetails(), nil
}

// normalizeText stores free text in NFC so equivalent strings compare and
// hash identically across clients.
func normalizeText(s string) string { return norm.NFC.String(s) }
