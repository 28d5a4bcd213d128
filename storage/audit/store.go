// Package audit keeps a queryable trail of every committed treasury event in
// a relational database and exports it for offline review.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"fundtreasury/ledger"
)

// ErrUnsupportedDSN is returned by Open for an unrecognised DSN scheme.
var ErrUnsupportedDSN = errors.New("audit: unsupported dsn")

// Record is one committed event.
type Record struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Sequence    uint64    `gorm:"not null;uniqueIndex:idx_audit_event,priority:1" json:"sequence"`
	EventIndex  int       `gorm:"not null;uniqueIndex:idx_audit_event,priority:2" json:"eventIndex"`
	OpID        string    `gorm:"size:36;index" json:"opId"`
	Op          string    `gorm:"size:32;index" json:"op"`
	Caller      string    `gorm:"size:42;index" json:"caller"`
	EventType   string    `gorm:"size:64;index" json:"eventType"`
	ProposalID  uint64    `gorm:"index" json:"proposalId,omitempty"`
	Attributes  string    `gorm:"type:text" json:"attributes"`
	EntryHash   string    `gorm:"size:64" json:"entryHash"`
	CommittedAt time.Time `gorm:"index" json:"committedAt"`
}

// TableName pins the table name independent of gorm's pluralisation.
func (Record) TableName() string { return "treasury_audit_records" }

// Filter narrows List and ExportParquet. Zero values match everything.
type Filter struct {
	ProposalID   uint64
	EventType    string
	Caller       string
	FromSequence uint64
	Limit        int
}

// Store persists audit records through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the DSN and migrates the schema. Supported forms are
// postgres://..., postgresql://..., sqlite://<path> and sqlite file: URIs.
func Open(dsn string) (*Store, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return postgres.Open(trimmed), nil
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(trimmed, "file:"):
		return sqlite.Open(trimmed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// Record stores every event of a commit. Re-recording the same commit is a
// no-op.
func (s *Store) Record(ctx context.Context, commit ledger.Commit) error {
	if len(commit.Events) == 0 {
		return nil
	}
	records := make([]Record, 0, len(commit.Events))
	committedAt := time.Unix(int64(commit.Entry.Timestamp), 0).UTC()
	for i, evt := range commit.Events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("audit: encode attributes: %w", err)
		}
		var proposalID uint64
		if raw, ok := evt.Attributes["proposalId"]; ok {
			proposalID, _ = strconv.ParseUint(raw, 10, 64)
		}
		records = append(records, Record{
			Sequence:    commit.Entry.Sequence,
			EventIndex:  i,
			OpID:        commit.Entry.OpID,
			Op:          string(commit.Entry.Op),
			Caller:      commit.Entry.Caller.Hex(),
			EventType:   evt.Type,
			ProposalID:  proposalID,
			Attributes:  string(attrs),
			EntryHash:   commit.Entry.Hash.Hex(),
			CommittedAt: committedAt,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("audit: record sequence %d: %w", commit.Entry.Sequence, err)
	}
	return nil
}

// List returns records matching filter ordered by sequence and event index.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := s.db.WithContext(ctx).Model(&Record{})
	if filter.ProposalID != 0 {
		query = query.Where("proposal_id = ?", filter.ProposalID)
	}
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if caller := strings.TrimSpace(filter.Caller); caller != "" {
		query = query.Where("caller = ?", caller)
	}
	if filter.FromSequence != 0 {
		query = query.Where("sequence >= ?", filter.FromSequence)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var records []Record
	if err := query.Order("sequence ASC").Order("event_index ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
