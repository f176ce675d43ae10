package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flasharb/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Quotes
// are stored as a JSONB array; snapshots are audit data, never joined.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Append persists one snapshot.
func (s *SnapshotStore) Append(ctx context.Context, snap domain.Snapshot) error {
	quotes, err := json.Marshal(snap.Quotes)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot quotes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (pair, captured_at, quotes) VALUES ($1, $2, $3)`,
		snap.Pair.String(), snap.CapturedAt, quotes,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// ListByPair returns snapshots for a pair, newest first, with pagination
// and optional time filtering.
func (s *SnapshotStore) ListByPair(ctx context.Context, pair domain.Pair, opts domain.ListOpts) ([]domain.Snapshot, error) {
	query := `SELECT pair, captured_at, quotes FROM snapshots WHERE pair = $1`
	args := []any{pair.String()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND captured_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND captured_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY captured_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var (
			snap      domain.Snapshot
			pairStr   string
			rawQuotes []byte
		)
		if err := rows.Scan(&pairStr, &snap.CapturedAt, &rawQuotes); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snap.Pair, err = domain.ParsePair(pairStr)
		if err != nil {
			return nil, fmt.Errorf("postgres: snapshot pair: %w", err)
		}
		if err := json.Unmarshal(rawQuotes, &snap.Quotes); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot quotes: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteBefore removes snapshots captured strictly before the cutoff,
// returning the number of rows deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
