// Package ledger is the system of record for the pipeline: snapshots,
// scored opportunities, execution outcomes, and the in-memory venue
// reliability view derived from quote traffic.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flasharb/internal/domain"
)

// Ledger fronts the persistent stores and the reliability tracker. Any
// store may be nil when the deployment runs without that concern; the
// corresponding writes become no-ops.
type Ledger struct {
	snapshots     domain.SnapshotStore
	opportunities domain.OpportunityStore
	executions    domain.ExecutionStore
	reliability   *reliabilityTracker
	logger        *slog.Logger
}

// New creates a Ledger over the given stores.
func New(snapshots domain.SnapshotStore, opportunities domain.OpportunityStore, executions domain.ExecutionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		snapshots:     snapshots,
		opportunities: opportunities,
		executions:    executions,
		reliability:   newReliabilityTracker(),
		logger:        logger.With(slog.String("component", "ledger")),
	}
}

// RecordSnapshot persists one quote snapshot.
func (l *Ledger) RecordSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if l.snapshots == nil {
		return nil
	}
	if err := l.snapshots.Append(ctx, snap); err != nil {
		return fmt.Errorf("ledger: record snapshot: %w", err)
	}
	return nil
}

// RecordOpportunity persists one scored opportunity.
func (l *Ledger) RecordOpportunity(ctx context.Context, opp domain.Opportunity) error {
	if l.opportunities == nil {
		return nil
	}
	if err := l.opportunities.Append(ctx, opp); err != nil {
		return fmt.Errorf("ledger: record opportunity: %w", err)
	}
	return nil
}

// RecordExecution persists a terminal execution record. Called by the
// coordinator exactly once per accepted opportunity.
func (l *Ledger) RecordExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("ledger: refusing non-terminal execution %s (%s)", rec.ID, rec.Status)
	}
	if l.executions == nil {
		return nil
	}
	if err := l.executions.Append(ctx, rec); err != nil {
		return fmt.Errorf("ledger: record execution: %w", err)
	}
	return nil
}

// RecordVenueResult feeds one quote outcome into the reliability window.
// Implements the aggregator's health sink.
func (l *Ledger) RecordVenueResult(venueID string, ok bool) {
	l.reliability.record(venueID, ok)
}

// VenueFailureRate reports the venue's recent quote failure rate in [0,1].
// Implements the scorer's reliability source.
func (l *Ledger) VenueFailureRate(venueID string) float64 {
	return l.reliability.failureRate(venueID)
}

// VenueFailureRates returns every tracked venue's failure rate, for the
// status surface.
func (l *Ledger) VenueFailureRates() map[string]float64 {
	return l.reliability.rates()
}

// RecentOpportunities returns the newest scored opportunities.
func (l *Ledger) RecentOpportunities(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if l.opportunities == nil {
		return nil, nil
	}
	return l.opportunities.ListRecent(ctx, limit)
}

// SnapshotsByPair returns stored snapshots for a pair, newest first.
func (l *Ledger) SnapshotsByPair(ctx context.Context, pair domain.Pair, opts domain.ListOpts) ([]domain.Snapshot, error) {
	if l.snapshots == nil {
		return nil, nil
	}
	return l.snapshots.ListByPair(ctx, pair, opts)
}

// RecentExecutions returns the newest execution records.
func (l *Ledger) RecentExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if l.executions == nil {
		return nil, nil
	}
	return l.executions.ListRecent(ctx, limit)
}

// Execution returns one execution record by ID.
func (l *Ledger) Execution(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	if l.executions == nil {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}
	return l.executions.GetByID(ctx, id)
}

// RealizedPnLSince sums realized profit and loss over executions completed
// at or after since.
func (l *Ledger) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	if l.executions == nil {
		return 0, nil
	}
	return l.executions.SumRealizedPnL(ctx, since)
}
