package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flasharb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionCols = `id, opportunity_id, route, attempt, status, tx_ref,
	input_amount, est_net_profit, realized_pnl, gas_cost_usd,
	error_kind, error_detail, created_at, submitted_at, completed_at`

// Append persists one terminal execution record.
func (s *ExecutionStore) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	route, err := json.Marshal(rec.Route)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution route: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (`+executionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.OpportunityID, route, rec.Attempt, string(rec.Status), rec.TxRef,
		rec.InputAmount, rec.EstNetProfit, rec.RealizedPnL, rec.GasCostUSD,
		string(rec.ErrorKind), rec.ErrorDetail,
		rec.CreatedAt, rec.SubmittedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}
	return nil
}

// GetByID returns one execution record. Returns domain.ErrNotFound on a miss.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionCols+` FROM executions WHERE id = $1`, id)
	rec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest execution records, up to limit.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionCols+` FROM executions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListBefore returns execution records completed strictly before the
// cutoff and after the cursor position, oldest first, up to limit. Feeds
// the archiver, which pages by advancing the cursor batch by batch.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, after domain.ExecCursor, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionCols+` FROM executions
		WHERE completed_at < $1 AND (completed_at, id) > ($2, $3)
		ORDER BY completed_at ASC, id ASC LIMIT $4`,
		cutoff, after.CompletedAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// DeleteBefore removes execution records completed strictly before the
// cutoff, returning the number of rows deleted.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM executions WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumRealizedPnL totals realized profit and loss over executions completed
// at or after since.
func (s *ExecutionStore) SumRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0) FROM executions
		WHERE completed_at >= $1`, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	return sum, nil
}

func scanExecutions(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var recs []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var (
		rec      domain.ExecutionRecord
		status   string
		errKind  string
		rawRoute []byte
	)
	err := row.Scan(
		&rec.ID, &rec.OpportunityID, &rawRoute, &rec.Attempt, &status, &rec.TxRef,
		&rec.InputAmount, &rec.EstNetProfit, &rec.RealizedPnL, &rec.GasCostUSD,
		&errKind, &rec.ErrorDetail,
		&rec.CreatedAt, &rec.SubmittedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Status = domain.ExecStatus(status)
	rec.ErrorKind = domain.ExecErrorKind(errKind)
	if err := json.Unmarshal(rawRoute, &rec.Route); err != nil {
		return domain.ExecutionRecord{}, err
	}
	return rec, nil
}
