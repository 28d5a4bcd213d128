package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"fundtreasury/crypto"
)

// Hash is a journal chain link.
type Hash [32]byte

// Hex renders the hash as lowercase hex.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// MarshalText encodes the hash as hex.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil || len(raw) != len(h) {
		return fmt.Errorf("ledger: invalid hash %q", text)
	}
	copy(h[:], raw)
	return nil
}

// Entry is one committed operation in the append-only journal. Hash chains
// over the previous entry so any rewrite of history is detectable.
type Entry struct {
	Sequence  uint64          `json:"sequence"`
	OpID      string          `json:"opId"`
	Op        OpKind          `json:"op"`
	Caller    crypto.Address  `json:"caller"`
	Timestamp uint64          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  Hash            `json:"prevHash"`
	Hash      Hash            `json:"hash"`
}

// ComputeHash returns blake3(prev || canonical fields).
func (e Entry) ComputeHash() Hash {
	buf := bytes.NewBuffer(nil)
	buf.Write(e.PrevHash[:])
	_ = binary.Write(buf, binary.BigEndian, e.Sequence)
	writeDelimited(buf, []byte(e.OpID))
	writeDelimited(buf, []byte(e.Op))
	buf.Write(e.Caller[:])
	_ = binary.Write(buf, binary.BigEndian, e.Timestamp)
	writeDelimited(buf, e.Payload)
	return blake3.Sum256(buf.Bytes())
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

type storedEntry struct {
	Sequence  uint64
	OpID      string
	Op        string
	Caller    []byte
	Timestamp uint64
	Payload   []byte
	PrevHash  []byte
	Hash      []byte
}

func encodeEntry(e Entry) ([]byte, error) {
	return rlp.EncodeToBytes(storedEntry{
		Sequence:  e.Sequence,
		OpID:      e.OpID,
		Op:        string(e.Op),
		Caller:    e.Caller.Bytes(),
		Timestamp: e.Timestamp,
		Payload:   append([]byte(nil), e.Payload...),
		PrevHash:  append([]byte(nil), e.PrevHash[:]...),
		Hash:      append([]byte(nil), e.Hash[:]...),
	})
}

func decodeEntry(raw []byte) (Entry, error) {
	var stored storedEntry
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Entry{}, fmt.Errorf("ledger: decode journal entry: %w", err)
	}
	caller, err := crypto.BytesToAddress(stored.Caller)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: journal entry %d: %w", stored.Sequence, err)
	}
	entry := Entry{
		Sequence:  stored.Sequence,
		OpID:      stored.OpID,
		Op:        OpKind(stored.Op),
		Caller:    caller,
		Timestamp: stored.Timestamp,
		Payload:   json.RawMessage(stored.Payload),
	}
	if len(stored.PrevHash) != len(entry.PrevHash) || len(stored.Hash) != len(entry.Hash) {
		return Entry{}, fmt.Errorf("ledger: journal entry %d has malformed hashes", stored.Sequence)
	}
	copy(entry.PrevHash[:], stored.PrevHash)
	copy(entry.Hash[:], stored.Hash)
	return entry, nil
}

type storedHead struct {
	Sequence  uint64
	Hash      []byte
	Transfers uint64
}

type head struct {
	sequence  uint64
	hash      Hash
	transfers uint64
}

func encodeHead(h head) ([]byte, error) {
	return rlp.EncodeToBytes(storedHead{Sequence: h.sequence, Hash: h.hash[:], Transfers: h.transfers})
}

func decodeHead(raw []byte) (head, error) {
	var stored storedHead
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return head{}, fmt.Errorf("ledger: decode head: %w", err)
	}
	h := head{sequence: stored.Sequence, transfers: stored.Transfers}
	if len(stored.Hash) != len(h.hash) {
		return head{}, fmt.Errorf("ledger: malformed head hash")
	}
	copy(h.hash[:], stored.Hash)
	return h, nil
}
