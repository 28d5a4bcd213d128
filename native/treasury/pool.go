package treasury

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Treasury tracks the pooled balance. The balance only grows through
// deposits and only shrinks through transferOut, which proposal releases
// call after every guard has passed.
type Treasury struct {
	balance   *uint256.Int
	deposited *uint256.Int
	released  *uint256.Int
	outbox    []TransferInstruction
}

// NewTreasury returns an empty pool.
func NewTreasury() *Treasury {
	return &Treasury{
		balance:   new(uint256.Int),
		deposited: new(uint256.Int),
		released:  new(uint256.Int),
	}
}

// Balance returns the current pool balance.
func (t *Treasury) Balance() *uint256.Int { return cloneAmount(t.balance) }

// TotalDeposited returns the sum of accepted deposits.
func (t *Treasury) TotalDeposited() *uint256.Int { return cloneAmount(t.deposited) }

// TotalReleased returns the sum of all tranches paid out.
func (t *Treasury) TotalReleased() *uint256.Int { return cloneAmount(t.released) }

func (t *Treasury) deposit(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroDeposit
	}
	balance, overflow := new(uint256.Int).AddOverflow(t.balance, amount)
	if overflow {
		return ErrAmountOverflow
	}
	deposited, overflow := new(uint256.Int).AddOverflow(t.deposited, amount)
	if overflow {
		return ErrAmountOverflow
	}
	t.balance = balance
	t.deposited = deposited
	return nil
}

func (t *Treasury) checkTransfer(amount *uint256.Int) error {
	if amount.Gt(t.balance) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientTreasury, amount.Dec(), t.balance.Dec())
	}
	return nil
}

// transferOut debits the pool and queues the transfer instruction for the
// settlement layer. Callers must have run checkTransfer first.
func (t *Treasury) transferOut(instr TransferInstruction) error {
	if err := t.checkTransfer(instr.Amount); err != nil {
		return err
	}
	t.balance = new(uint256.Int).Sub(t.balance, instr.Amount)
	t.released = new(uint256.Int).Add(t.released, instr.Amount)
	if !instr.Amount.IsZero() {
		instr.Amount = cloneAmount(instr.Amount)
		t.outbox = append(t.outbox, instr)
	}
	return nil
}

// DrainTransfers hands queued transfer instructions to the caller and
// clears the outbox.
func (t *Treasury) DrainTransfers() []TransferInstruction {
	out := t.outbox
	t.outbox = nil
	return out
}
