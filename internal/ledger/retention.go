package ledger

import (
	"context"
	"log/slog"
	"time"
)

// ExecutionArchiver uploads aged execution records to blob storage.
// Implemented by the s3blob archiver; nil disables archival and retention
// deletes directly.
type ExecutionArchiver interface {
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
}

// RetentionConfig tunes the retention loop.
type RetentionConfig struct {
	Interval     time.Duration
	MaxAge       time.Duration
	SnapshotsTTL time.Duration
}

// RunRetention periodically archives and prunes aged records until the
// context is cancelled. Deletion only happens after a successful archive
// upload; an upload failure leaves the rows in place for the next cycle.
func (l *Ledger) RunRetention(ctx context.Context, cfg RetentionConfig, archiver ExecutionArchiver) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.retentionCycle(ctx, cfg, archiver)
		}
	}
}

func (l *Ledger) retentionCycle(ctx context.Context, cfg RetentionConfig, archiver ExecutionArchiver) {
	now := time.Now().UTC()

	if cfg.MaxAge > 0 && l.executions != nil {
		cutoff := now.Add(-cfg.MaxAge)
		if archiver != nil {
			archived, err := archiver.ArchiveExecutions(ctx, cutoff)
			if err != nil {
				l.logger.Error("execution archive failed", slog.String("error", err.Error()))
				return
			}
			if archived > 0 {
				l.logger.Info("executions archived", slog.Int64("count", archived))
			}
		}
		deleted, err := l.executions.DeleteBefore(ctx, cutoff)
		if err != nil {
			l.logger.Error("execution prune failed", slog.String("error", err.Error()))
		} else if deleted > 0 {
			l.logger.Info("executions pruned", slog.Int64("count", deleted))
		}
	}

	if cfg.SnapshotsTTL > 0 && l.snapshots != nil {
		deleted, err := l.snapshots.DeleteBefore(ctx, now.Add(-cfg.SnapshotsTTL))
		if err != nil {
			l.logger.Error("snapshot prune failed", slog.String("error", err.Error()))
		} else if deleted > 0 {
			l.logger.Info("snapshots pruned", slog.Int64("count", deleted))
		}
	}
}
