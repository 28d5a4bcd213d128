// Package ledger sequences treasury operations and makes each one durable.
// Every accepted operation writes the new state snapshot, its transfer
// instructions and a hash-chained journal entry in a single atomic batch;
// events reach subscribers only after that batch lands.
package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fundtreasury/core/events"
	"fundtreasury/core/types"
	"fundtreasury/native/treasury"
	"fundtreasury/observability"
	"fundtreasury/observability/otel"
	"fundtreasury/storage"
)

var (
	// ErrCommit reports that an accepted operation could not be persisted.
	// The engine has been rolled back and the operation may be retried.
	ErrCommit = errors.New("ledger: commit failed")
	// ErrUnknownOp is returned for an Op with an unrecognised kind.
	ErrUnknownOp = errors.New("ledger: unknown operation")
	// ErrJournalTampered is returned by VerifyJournal when the hash chain
	// does not match the stored entries.
	ErrJournalTampered = errors.New("ledger: journal hash chain broken")
)

var (
	snapshotKey    = []byte("treasury/snapshot")
	headKey        = []byte("treasury/head")
	journalPrefix  = []byte("treasury/journal/")
	transferPrefix = []byte("treasury/transfer/")
)

func seqKey(prefix []byte, n uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], n)
	return key
}

// Sink receives every commit synchronously, in sequence order. Sink errors
// are logged and never undo a commit.
type Sink interface {
	Record(ctx context.Context, commit Commit) error
}

// Result describes a committed operation.
type Result struct {
	Sequence   uint64     `json:"sequence"`
	OpID       string     `json:"opId"`
	ProposalID uint64     `json:"proposalId,omitempty"`
	Transfers  []Transfer `json:"transfers,omitempty"`
	Timestamp  uint64     `json:"timestamp"`
	// Noop is set when the engine accepted the operation without changing
	// state. Nothing is journaled and Sequence is the current head.
	Noop bool `json:"noop,omitempty"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock that stamps journal entries and proposals.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.nowFn = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(metrics *observability.TreasuryMetrics) Option {
	return func(l *Ledger) { l.metrics = metrics }
}

// WithMeter records OTLP instruments on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(l *Ledger) { l.meter = meter }
}

// WithSink appends a commit sink such as the audit trail.
func WithSink(sink Sink) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

// Ledger is the single authoritative sequencer in front of the engine.
type Ledger struct {
	mu        sync.RWMutex
	db        storage.Database
	engine    *treasury.Engine
	params    treasury.Params
	buffer    *events.Buffer
	head      head
	committed treasury.Snapshot
	stream    *stream
	sinks     []Sink
	nowFn     func() time.Time
	logger    *slog.Logger
	metrics   *observability.TreasuryMetrics
	meter     metric.Meter
	inst      instruments
}

// Open restores the ledger persisted in db, or initialises it from genesis
// when db is empty. Lifecycle params always come from the caller.
func Open(db storage.Database, genesis treasury.Genesis, params treasury.Params, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	l := &Ledger{
		db:     db,
		params: params,
		buffer: &events.Buffer{},
		stream: newStream(),
		nowFn:  func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "ledger"))
	if l.meter == nil {
		l.meter = otel.Meter()
	}
	inst, err := newInstruments(l.meter)
	if err != nil {
		return nil, fmt.Errorf("ledger: instruments: %w", err)
	}
	l.inst = inst

	rawHead, err := db.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := l.initGenesis(genesis); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("ledger: read head: %w", err)
	default:
		if err := l.restore(rawHead); err != nil {
			return nil, err
		}
	}
	l.engine.SetEmitter(l.buffer)
	l.metrics.RecordPool(l.engine.TreasuryBalance(), l.engine.TotalReleased())
	return l, nil
}

func (l *Ledger) initGenesis(genesis treasury.Genesis) error {
	engine, err := treasury.NewEngine(genesis, l.params)
	if err != nil {
		return fmt.Errorf("ledger: genesis: %w", err)
	}
	snapshot := engine.Export()
	batch := l.db.NewBatch()
	if err := putSnapshot(batch, snapshot); err != nil {
		return err
	}
	encodedHead, err := encodeHead(head{})
	if err != nil {
		return err
	}
	batch.Put(headKey, encodedHead)
	if err := batch.Write(); err != nil {
		return fmt.Errorf("ledger: write genesis: %w", err)
	}
	l.engine = engine
	l.committed = snapshot
	l.logger.Info("treasury initialised from genesis",
		slog.String("owner", genesis.Owner.String()),
		slog.Int("authorities", len(genesis.Authorities)),
		slog.Uint64("required_approvals", genesis.RequiredApprovals))
	return nil
}

func (l *Ledger) restore(rawHead []byte) error {
	h, err := decodeHead(rawHead)
	if err != nil {
		return err
	}
	raw, err := l.db.Get(snapshotKey)
	if err != nil {
		return fmt.Errorf("ledger: read snapshot: %w", err)
	}
	var snapshot treasury.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	engine, err := treasury.Restore(snapshot, l.params)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	l.engine = engine
	l.committed = snapshot
	l.head = h
	l.logger.Info("treasury restored",
		slog.Uint64("sequence", h.sequence),
		slog.Uint64("proposals", engine.ProposalCount()))
	return nil
}

func putSnapshot(batch storage.Batch, snapshot treasury.Snapshot) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	batch.Put(snapshotKey, encoded)
	return nil
}

// Apply runs op against the engine and commits the result. Rejections from
// the engine are returned unchanged and leave no trace; a failed write
// returns ErrCommit after rolling the engine back.
func (l *Ledger) Apply(ctx context.Context, op Op) (Result, error) {
	ctx, span := otel.Tracer().Start(ctx, "ledger.Apply", trace.WithAttributes(
		attribute.String("treasury.op", string(op.Kind)),
		attribute.String("treasury.caller", op.Caller.String()),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	outcome := outcomeFailed
	defer func() { l.inst.record(ctx, op.Kind, outcome, time.Since(start)) }()
	now := l.nowFn()
	l.engine.SetNowFunc(func() time.Time { return now })

	if err := op.apply(l.engine); err != nil {
		l.buffer.Discard()
		l.engine.DrainTransfers()
		code := "unknown"
		if typed, ok := treasury.AsError(err); ok {
			code = typed.Code
		}
		outcome = outcomeRejected
		l.metrics.RecordRejected(string(op.Kind), code)
		span.SetAttributes(attribute.String("treasury.rejection", code))
		l.logger.Debug("operation rejected",
			slog.String("op", string(op.Kind)),
			slog.String("caller", op.Caller.String()),
			slog.String("code", code))
		return Result{}, err
	}

	instrs := l.engine.DrainTransfers()
	if l.buffer.Len() == 0 && len(instrs) == 0 {
		outcome = outcomeNoop
		l.metrics.RecordNoop(string(op.Kind))
		span.SetAttributes(attribute.Bool("treasury.noop", true))
		l.logger.Debug("operation accepted without effect",
			slog.String("op", string(op.Kind)),
			slog.String("caller", op.Caller.String()),
			slog.Uint64("proposal", op.ProposalID))
		return Result{
			Sequence:   l.head.sequence,
			ProposalID: op.ProposalID,
			Timestamp:  uint64(now.Unix()),
			Noop:       true,
		}, nil
	}

	payload, err := op.payload()
	if err != nil {
		return Result{}, l.abort(span, fmt.Errorf("encode payload: %w", err))
	}
	entry := Entry{
		Sequence:  l.head.sequence + 1,
		OpID:      uuid.NewString(),
		Op:        op.Kind,
		Caller:    op.Caller,
		Timestamp: uint64(now.Unix()),
		Payload:   payload,
		PrevHash:  l.head.hash,
	}
	entry.Hash = entry.ComputeHash()

	next := head{sequence: entry.Sequence, hash: entry.Hash, transfers: l.head.transfers}
	transfers := make([]Transfer, 0, len(instrs))
	for _, instr := range instrs {
		next.transfers++
		transfers = append(transfers, newTransfer(next.transfers, entry.Sequence, instr))
	}
	snapshot := l.engine.Export()

	if err := l.write(entry, snapshot, transfers, next); err != nil {
		return Result{}, l.abort(span, err)
	}
	l.head = next
	l.committed = snapshot

	emitted := l.buffer.Drain()
	rendered := make([]*types.Event, 0, len(emitted))
	for _, evt := range emitted {
		rendered = append(rendered, events.Render(evt))
	}
	commit := Commit{Entry: entry, Events: rendered, Transfers: transfers}
	l.stream.publish(commit)
	for _, sink := range l.sinks {
		if err := sink.Record(ctx, commit); err != nil {
			l.logger.Warn("commit sink failed",
				slog.Uint64("sequence", entry.Sequence),
				slog.Any("error", err))
		}
	}

	outcome = outcomeCommitted
	l.metrics.RecordApplied(string(op.Kind), entry.Sequence, time.Since(start))
	l.metrics.RecordPool(l.engine.TreasuryBalance(), l.engine.TotalReleased())
	for _, evt := range rendered {
		l.metrics.RecordEvent(evt.Type)
	}
	span.SetAttributes(attribute.Int64("treasury.sequence", int64(entry.Sequence)))
	l.logger.Info("operation committed",
		slog.String("op", string(op.Kind)),
		slog.String("caller", op.Caller.String()),
		slog.Uint64("sequence", entry.Sequence),
		slog.Uint64("proposal", op.ProposalID))

	return Result{
		Sequence:   entry.Sequence,
		OpID:       entry.OpID,
		ProposalID: op.ProposalID,
		Transfers:  transfers,
		Timestamp:  entry.Timestamp,
	}, nil
}

func (l *Ledger) write(entry Entry, snapshot treasury.Snapshot, transfers []Transfer, next head) error {
	batch := l.db.NewBatch()
	if err := putSnapshot(batch, snapshot); err != nil {
		return err
	}
	encodedEntry, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	batch.Put(seqKey(journalPrefix, entry.Sequence), encodedEntry)
	for _, transfer := range transfers {
		encoded, err := encodeTransfer(transfer)
		if err != nil {
			return err
		}
		batch.Put(seqKey(transferPrefix, transfer.Index), encoded)
	}
	encodedHead, err := encodeHead(next)
	if err != nil {
		return err
	}
	batch.Put(headKey, encodedHead)
	return batch.Write()
}

// abort rolls the engine back to the last committed snapshot.
func (l *Ledger) abort(span trace.Span, cause error) error {
	l.buffer.Discard()
	l.metrics.RecordCommitFailure()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	restored, err := treasury.Restore(l.committed, l.params)
	if err != nil {
		// unreachable unless the committed snapshot was corrupted in memory
		panic(fmt.Sprintf("ledger: restore committed snapshot: %v", err))
	}
	restored.SetEmitter(l.buffer)
	l.engine = restored
	l.logger.Error("commit failed, state rolled back",
		slog.Uint64("sequence", l.head.sequence),
		slog.Any("error", cause))
	return fmt.Errorf("%w: %v", ErrCommit, cause)
}

// View runs fn against the engine under a read lock. fn must not retain the
// engine or call its mutating methods.
func (l *Ledger) View(fn func(*treasury.Engine) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.engine)
}

// Head returns the sequence and hash of the latest committed entry.
func (l *Ledger) Head() (uint64, Hash) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head.sequence, l.head.hash
}

// Journal lists committed entries with sequence >= from. A limit of zero
// returns every remaining entry.
func (l *Ledger) Journal(from uint64, limit int) ([]Entry, error) {
	var (
		out     []Entry
		iterErr error
	)
	err := l.db.Iterate(journalPrefix, func(key, value []byte) bool {
		if binary.BigEndian.Uint64(key[len(journalPrefix):]) < from {
			return true
		}
		entry, err := decodeEntry(value)
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, entry)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// Transfers lists committed transfer instructions with index >= from. A
// limit of zero returns every remaining transfer.
func (l *Ledger) Transfers(from uint64, limit int) ([]Transfer, error) {
	var (
		out     []Transfer
		iterErr error
	)
	err := l.db.Iterate(transferPrefix, func(key, value []byte) bool {
		if binary.BigEndian.Uint64(key[len(transferPrefix):]) < from {
			return true
		}
		transfer, err := decodeTransfer(value)
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, transfer)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// VerifyJournal recomputes the hash chain over every stored entry and
// checks it ends at the committed head. It returns the number of entries
// verified.
func (l *Ledger) VerifyJournal() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := l.Journal(0, 0)
	if err != nil {
		return 0, err
	}
	var prev Hash
	for i, entry := range entries {
		want := uint64(i) + 1
		if entry.Sequence != want {
			return uint64(i), fmt.Errorf("%w: expected sequence %d, found %d", ErrJournalTampered, want, entry.Sequence)
		}
		if entry.PrevHash != prev {
			return uint64(i), fmt.Errorf("%w: entry %d does not link to its predecessor", ErrJournalTampered, entry.Sequence)
		}
		if entry.ComputeHash() != entry.Hash {
			return uint64(i), fmt.Errorf("%w: entry %d hash mismatch", ErrJournalTampered, entry.Sequence)
		}
		prev = entry.Hash
	}
	if uint64(len(entries)) != l.head.sequence || prev != l.head.hash {
		return uint64(len(entries)), fmt.Errorf("%w: journal ends at %d, head is %d", ErrJournalTampered, len(entries), l.head.sequence)
	}
	return uint64(len(entries)), nil
}

// Subscribe streams commits with a sequence greater than since. The backlog
// holds recent commits already past that cursor.
func (l *Ledger) Subscribe(ctx context.Context, since uint64) (<-chan Commit, func(), []Commit) {
	return l.stream.subscribe(ctx, since)
}

// Close ends every subscription. The database stays owned by the caller.
func (l *Ledger) Close() {
	l.stream.close()
}
