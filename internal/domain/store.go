package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SnapshotStore persists per-pair quote snapshots for audit.
type SnapshotStore interface {
	Append(ctx context.Context, snap Snapshot) error
	ListByPair(ctx context.Context, pair Pair, opts ListOpts) ([]Snapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OpportunityStore persists scored opportunities.
type OpportunityStore interface {
	Append(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// ExecCursor marks a position in the (completed_at, id) ordering that
// ListBefore pages through. The zero value starts from the oldest record.
// The id tiebreak keeps paging exact when records share a completion time.
type ExecCursor struct {
	CompletedAt time.Time
	ID          string
}

// ExecutionStore persists execution records. Append must be safe under
// concurrent writers; multiple coordinators may finish around the same time.
type ExecutionStore interface {
	Append(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time, after ExecCursor, limit int) ([]ExecutionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)
}

// BlobWriter writes an archive object to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, body []byte, contentType string) error
}

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobReader reads archive objects back. Misses return ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
