package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"fundtreasury/crypto"
	"fundtreasury/native/treasury"
)

// Transfer is a committed payment instruction awaiting settlement. Index is
// dense and starts at 1.
type Transfer struct {
	Index      uint64         `json:"index"`
	Sequence   uint64         `json:"sequence"`
	ProposalID uint64         `json:"proposalId"`
	Stage      uint8          `json:"stage"`
	Recipient  crypto.Address `json:"recipient"`
	Amount     *uint256.Int   `json:"amount"`
}

func newTransfer(index, sequence uint64, instr treasury.TransferInstruction) Transfer {
	return Transfer{
		Index:      index,
		Sequence:   sequence,
		ProposalID: instr.ProposalID,
		Stage:      instr.Stage,
		Recipient:  instr.Recipient,
		Amount:     new(uint256.Int).Set(instr.Amount),
	}
}

type storedTransfer struct {
	Index      uint64
	Sequence   uint64
	ProposalID uint64
	Stage      uint64
	Recipient  []byte
	Amount     []byte
}

func encodeTransfer(t Transfer) ([]byte, error) {
	return rlp.EncodeToBytes(storedTransfer{
		Index:      t.Index,
		Sequence:   t.Sequence,
		ProposalID: t.ProposalID,
		Stage:      uint64(t.Stage),
		Recipient:  t.Recipient.Bytes(),
		Amount:     t.Amount.Bytes(),
	})
}

func decodeTransfer(raw []byte) (Transfer, error) {
	var stored storedTransfer
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Transfer{}, fmt.Errorf("ledger: decode transfer: %w", err)
	}
	recipient, err := crypto.BytesToAddress(stored.Recipient)
	if err != nil {
		return Transfer{}, fmt.Errorf("ledger: transfer %d: %w", stored.Index, err)
	}
	return Transfer{
		Index:      stored.Index,
		Sequence:   stored.Sequence,
		ProposalID: stored.ProposalID,
		Stage:      uint8(stored.Stage),
		Recipient:  recipient,
		Amount:     new(uint256.Int).SetBytes(stored.Amount),
	}, nil
}
