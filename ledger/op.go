package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"fundtreasury/crypto"
	"fundtreasury/native/treasury"
)

// OpKind names a mutating treasury operation.
type OpKind string

const (
	OpDeposit           OpKind = "deposit"
	OpAddAuthority      OpKind = "add_authority"
	OpRemoveAuthority   OpKind = "remove_authority"
	OpUpdateThreshold   OpKind = "update_threshold"
	OpSubmitProposal    OpKind = "submit_proposal"
	OpVote              OpKind = "vote"
	OpReleaseInitial    OpKind = "release_initial"
	OpSubmitStageReport OpKind = "submit_stage_report"
	OpApproveStage      OpKind = "approve_stage"
	OpReleaseNext       OpKind = "release_next"
)

// Op is a single mutating request. Build one with the constructors below.
type Op struct {
	Kind        OpKind
	Caller      crypto.Address
	ProposalID  uint64
	Amount      *uint256.Int
	Target      crypto.Address
	Description string
	Report      string
	Threshold   uint64
}

func Deposit(caller crypto.Address, amount *uint256.Int) Op {
	return Op{Kind: OpDeposit, Caller: caller, Amount: amount}
}

func AddAuthority(caller, authority crypto.Address) Op {
	return Op{Kind: OpAddAuthority, Caller: caller, Target: authority}
}

func RemoveAuthority(caller, authority crypto.Address) Op {
	return Op{Kind: OpRemoveAuthority, Caller: caller, Target: authority}
}

func UpdateThreshold(caller crypto.Address, required uint64) Op {
	return Op{Kind: OpUpdateThreshold, Caller: caller, Threshold: required}
}

func SubmitProposal(caller crypto.Address, description string, amount *uint256.Int, recipient crypto.Address) Op {
	return Op{Kind: OpSubmitProposal, Caller: caller, Description: description, Amount: amount, Target: recipient}
}

func Vote(caller crypto.Address, id uint64) Op {
	return Op{Kind: OpVote, Caller: caller, ProposalID: id}
}

func ReleaseInitial(caller crypto.Address, id uint64) Op {
	return Op{Kind: OpReleaseInitial, Caller: caller, ProposalID: id}
}

func SubmitStageReport(caller crypto.Address, id uint64, report string) Op {
	return Op{Kind: OpSubmitStageReport, Caller: caller, ProposalID: id, Report: report}
}

func ApproveStage(caller crypto.Address, id uint64) Op {
	return Op{Kind: OpApproveStage, Caller: caller, ProposalID: id}
}

func ReleaseNext(caller crypto.Address, id uint64) Op {
	return Op{Kind: OpReleaseNext, Caller: caller, ProposalID: id}
}

// apply routes the op to the engine. SubmitProposal records the assigned id
// on the op so the journal payload carries it.
func (op *Op) apply(engine *treasury.Engine) error {
	switch op.Kind {
	case OpDeposit:
		return engine.DepositFunds(op.Caller, op.Amount)
	case OpAddAuthority:
		return engine.AddAuthority(op.Caller, op.Target)
	case OpRemoveAuthority:
		return engine.RemoveAuthority(op.Caller, op.Target)
	case OpUpdateThreshold:
		return engine.UpdateRequiredApprovals(op.Caller, op.Threshold)
	case OpSubmitProposal:
		id, err := engine.SubmitProposal(op.Caller, op.Description, op.Amount, op.Target)
		if err != nil {
			return err
		}
		op.ProposalID = id
		return nil
	case OpVote:
		return engine.VoteOnProposal(op.Caller, op.ProposalID)
	case OpReleaseInitial:
		_, err := engine.ReleaseInitialFunds(op.Caller, op.ProposalID)
		return err
	case OpSubmitStageReport:
		return engine.SubmitStageReport(op.Caller, op.ProposalID, op.Report)
	case OpApproveStage:
		return engine.ApproveStage(op.Caller, op.ProposalID)
	case OpReleaseNext:
		_, err := engine.ReleaseNextStageFunds(op.Caller, op.ProposalID)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Kind)
	}
}

type opPayload struct {
	ProposalID  uint64          `json:"proposalId,omitempty"`
	Amount      *uint256.Int    `json:"amount,omitempty"`
	Target      *crypto.Address `json:"target,omitempty"`
	Description string          `json:"description,omitempty"`
	Report      string          `json:"report,omitempty"`
	Threshold   uint64          `json:"threshold,omitempty"`
}

func (op Op) payload() ([]byte, error) {
	p := opPayload{
		ProposalID:  op.ProposalID,
		Amount:      op.Amount,
		Description: op.Description,
		Report:      op.Report,
		Threshold:   op.Threshold,
	}
	if !op.Target.IsZero() {
		target := op.Target
		p.Target = &target
	}
	return json.Marshal(p)
}
