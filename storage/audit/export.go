package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	EventIndex  int32  `parquet:"name=event_index, type=INT32"`
	OpID        string `parquet:"name=op_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Op          string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller      string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventType   string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProposalID  int64  `parquet:"name=proposal_id, type=INT64"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	EntryHash   string `parquet:"name=entry_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	CommittedAt string `parquet:"name=committed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes the records matching filter to path and returns the
// number of rows written.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	records, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("audit: create export dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := &parquetRow{
			Sequence:    int64(rec.Sequence),
			EventIndex:  int32(rec.EventIndex),
			OpID:        rec.OpID,
			Op:          rec.Op,
			Caller:      rec.Caller,
			EventType:   rec.EventType,
			ProposalID:  int64(rec.ProposalID),
			Attributes:  rec.Attributes,
			EntryHash:   rec.EntryHash,
			CommittedAt: rec.CommittedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("audit: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("audit: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("audit: close parquet file: %w", err)
	}
	return len(records), nil
}
