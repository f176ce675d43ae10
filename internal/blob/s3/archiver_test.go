package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flasharb/internal/domain"
)

// fakeExecutionStore serves a fixed backlog of aged records. Like the real
// store during an archive run, it never removes rows: retention deletes
// only after ArchiveExecutions returns, so correct paging is entirely the
// archiver's cursor discipline.
type fakeExecutionStore struct {
	records   []domain.ExecutionRecord // sorted by (CompletedAt, ID)
	listCalls int
}

func (s *fakeExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, after domain.ExecCursor, limit int) ([]domain.ExecutionRecord, error) {
	s.listCalls++
	var out []domain.ExecutionRecord
	for _, rec := range s.records {
		if !rec.CompletedAt.Before(cutoff) {
			continue
		}
		if !cursorBefore(after, *rec.CompletedAt, rec.ID) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func cursorBefore(c domain.ExecCursor, completedAt time.Time, id string) bool {
	if !c.CompletedAt.Equal(completedAt) {
		return c.CompletedAt.Before(completedAt)
	}
	return c.ID < id
}

func (s *fakeExecutionStore) Append(context.Context, domain.ExecutionRecord) error { return nil }

func (s *fakeExecutionStore) GetByID(context.Context, string) (domain.ExecutionRecord, error) {
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *fakeExecutionStore) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *fakeExecutionStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *fakeExecutionStore) SumRealizedPnL(context.Context, time.Time) (float64, error) {
	return 0, nil
}

type fakeBlobWriter struct {
	keys   []string
	bodies [][]byte
}

func (w *fakeBlobWriter) Write(ctx context.Context, key string, body []byte, contentType string) error {
	w.keys = append(w.keys, key)
	w.bodies = append(w.bodies, body)
	return nil
}

// uploadedIDs decodes every JSONL body and returns all record IDs in upload
// order.
func (w *fakeBlobWriter) uploadedIDs(t *testing.T) []string {
	t.Helper()
	var ids []string
	for _, body := range w.bodies {
		dec := json.NewDecoder(bytes.NewReader(body))
		for dec.More() {
			var rec struct{ ID string }
			require.NoError(t, dec.Decode(&rec))
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

func agedRecords(n int, at func(i int) time.Time) []domain.ExecutionRecord {
	records := make([]domain.ExecutionRecord, n)
	for i := range records {
		completed := at(i)
		records[i] = domain.ExecutionRecord{
			ID:          fmt.Sprintf("exec-%06d", i),
			Status:      domain.ExecConfirmed,
			CompletedAt: &completed,
		}
	}
	return records
}

func TestArchiveExecutionsPagesThroughBacklog(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n := archiveBatchSize + 250
	store := &fakeExecutionStore{
		records: agedRecords(n, func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }),
	}
	writer := &fakeBlobWriter{}

	total, err := NewArchiver(writer, store).ArchiveExecutions(context.Background(), base.AddDate(0, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, int64(n), total)
	assert.Equal(t, 2, store.listCalls)
	assert.Equal(t, []string{
		"archive/executions/2026-09.jsonl",
		"archive/executions/2026-09.00005000.jsonl",
	}, writer.keys)

	// Every record uploaded exactly once.
	ids := writer.uploadedIDs(t)
	require.Len(t, ids, n)
	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "record %s archived twice", id)
		seen[id] = true
	}
}

func TestArchiveExecutionsPagesTiedTimestamps(t *testing.T) {
	// Records sharing one completion time page by the ID tiebreak alone.
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n := archiveBatchSize + 1
	store := &fakeExecutionStore{
		records: agedRecords(n, func(int) time.Time { return at }),
	}
	writer := &fakeBlobWriter{}

	total, err := NewArchiver(writer, store).ArchiveExecutions(context.Background(), at.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(n), total)
	assert.Len(t, writer.uploadedIDs(t), n)
}

func TestArchiveExecutionsEmptyBacklog(t *testing.T) {
	writer := &fakeBlobWriter{}
	total, err := NewArchiver(writer, &fakeExecutionStore{}).ArchiveExecutions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, writer.keys)
}
