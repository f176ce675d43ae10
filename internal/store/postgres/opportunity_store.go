package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flasharb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, pair, route, input_amount, principal, gross_profit,
	venue_fees, flash_loan_fee, est_gas_cost, slippage_buffer,
	net_profit, confidence, snapshot_at, created_at`

// Append persists one scored opportunity. Re-scored duplicates (same
// deterministic ID) are silently skipped.
func (s *OpportunityStore) Append(ctx context.Context, opp domain.Opportunity) error {
	route, err := json.Marshal(opp.Route)
	if err != nil {
		return fmt.Errorf("postgres: marshal route: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities (`+opportunityCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		opp.ID, opp.Pair.String(), route, opp.InputAmount, opp.Principal,
		opp.GrossProfit, opp.VenueFees, opp.FlashLoanFee, opp.EstGasCost,
		opp.SlippageBuffer, opp.NetProfit, opp.Confidence,
		opp.SnapshotAt, opp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity: %w", err)
	}
	return nil
}

// GetByID returns one opportunity. Returns domain.ErrNotFound on a miss.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id)
	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Opportunity{}, fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity: %w", err)
	}
	return opp, nil
}

// ListRecent returns the newest opportunities, up to limit.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityCols+` FROM opportunities ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		opp      domain.Opportunity
		pairStr  string
		rawRoute []byte
	)
	err := row.Scan(
		&opp.ID, &pairStr, &rawRoute, &opp.InputAmount, &opp.Principal,
		&opp.GrossProfit, &opp.VenueFees, &opp.FlashLoanFee, &opp.EstGasCost,
		&opp.SlippageBuffer, &opp.NetProfit, &opp.Confidence,
		&opp.SnapshotAt, &opp.CreatedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if opp.Pair, err = domain.ParsePair(pairStr); err != nil {
		return domain.Opportunity{}, err
	}
	if err := json.Unmarshal(rawRoute, &opp.Route); err != nil {
		return domain.Opportunity{}, err
	}
	return opp, nil
}
