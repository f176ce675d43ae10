package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flasharb/internal/domain"
)

// archiveBatchSize bounds how many execution records one archive object
// holds. Retention runs repeatedly until the backlog is drained.
const archiveBatchSize = 5000

// Archiver serializes aged execution records to JSONL and uploads them to
// blob storage. Deleting the archived rows from the primary store is a
// separate, explicit step executed after the upload has succeeded.
type Archiver struct {
	writer     domain.BlobWriter
	executions domain.ExecutionStore
}

// NewArchiver creates an Archiver over the execution store.
func NewArchiver(writer domain.BlobWriter, executions domain.ExecutionStore) *Archiver {
	return &Archiver{writer: writer, executions: executions}
}

// ArchiveExecutions uploads all execution records completed strictly
// before the cutoff to archive/executions/YYYY-MM.jsonl and returns the
// count of archived records. Batches page forward through the store by
// cursor; the rows stay in place until retention deletes them, so a plain
// re-query would serve the same oldest rows on every pass.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	var cursor domain.ExecCursor
	for {
		records, err := a.executions.ListBefore(ctx, before, cursor, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive executions query: %w", err)
		}
		if len(records) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(records)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive executions marshal: %w", err)
		}

		key := archiveKey("executions", before, total)
		if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive executions upload: %w", err)
		}
		total += int64(len(records))

		last := records[len(records)-1]
		cursor = domain.ExecCursor{ID: last.ID}
		if last.CompletedAt != nil {
			cursor.CompletedAt = *last.CompletedAt
		}

		if len(records) < archiveBatchSize {
			return total, nil
		}
	}
}

// archiveKey builds the object key for an archive file, partitioned by the
// year-month of the cutoff; batch offsets keep multi-object runs distinct.
//
//	archive/executions/2026-08.jsonl
//	archive/executions/2026-08.00005000.jsonl
func archiveKey(kind string, before time.Time, offset int64) string {
	if offset == 0 {
		return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
	}
	return fmt.Sprintf("archive/%s/%s.%08d.jsonl", kind, before.Format("2006-01"), offset)
}

// marshalJSONL encodes a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
