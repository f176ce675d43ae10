// Package aggregator polls every configured venue for every tracked pair on
// a fixed cadence and emits consistent per-pair snapshots. One slow or
// failed venue never blocks the others: each adapter call runs in its own
// goroutine with its own timeout, and the snapshot ships with whatever
// quotes arrived in the window.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flasharb/internal/domain"
	"flasharb/internal/venue"
)

// VenueHealth receives per-venue poll outcomes. The ledger's reliability
// mirror implements it to feed the scorer's confidence input.
type VenueHealth interface {
	RecordVenueResult(venueID string, ok bool)
}

// Config tunes one Aggregator.
type Config struct {
	PollInterval      time.Duration
	MaxQuoteStaleness time.Duration
	PersistSnapshots  bool
}

// Aggregator owns the polling loops. Snapshots are delivered on the channel
// passed to New, one per pair per cycle, in capture order per pair.
type Aggregator struct {
	adapters []venue.Adapter
	pairs    []PairSpec
	cfg      Config
	out      chan<- domain.Snapshot

	cache  domain.QuoteCache    // optional; latest-quote mirror
	store  domain.SnapshotStore // optional; audit persistence
	health VenueHealth          // optional
	logger *slog.Logger
}

// PairSpec is a tracked pair plus the size quotes are priced at.
type PairSpec struct {
	Pair      domain.Pair
	QuoteSize float64 // base-asset units, the scorer's ladder base unit
}

// New creates an Aggregator. cache, store, and health may be nil.
func New(
	adapters []venue.Adapter,
	pairs []PairSpec,
	cfg Config,
	out chan<- domain.Snapshot,
	cache domain.QuoteCache,
	store domain.SnapshotStore,
	health VenueHealth,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		pairs:    pairs,
		cfg:      cfg,
		out:      out,
		cache:    cache,
		store:    store,
		health:   health,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// Run starts one polling loop per pair and blocks until the context is
// cancelled. Pairs poll in parallel so end-to-end staleness stays bounded
// regardless of pair count.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("aggregator started",
		slog.Int("pairs", len(a.pairs)),
		slog.Int("venues", len(a.adapters)),
		slog.Duration("interval", a.cfg.PollInterval),
	)
	defer a.logger.Info("aggregator stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range a.pairs {
		spec := spec
		g.Go(func() error {
			return a.pollLoop(gctx, spec)
		})
	}
	return g.Wait()
}

// pollLoop runs one pair's cadence. The first cycle fires immediately.
func (a *Aggregator) pollLoop(ctx context.Context, spec PairSpec) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		snap := a.PollOnce(ctx, spec)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a.out <- snap:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce fans out to all adapters for one pair and assembles a snapshot
// from the quotes that returned in time. Venue failures are recovered
// locally: the venue is excluded, never propagated.
func (a *Aggregator) PollOnce(ctx context.Context, spec PairSpec) domain.Snapshot {
	type result struct {
		quote domain.Quote
		err   error
		venue string
	}

	// Two quotes per venue: the cost to buy and the proceeds to sell.
	sides := []domain.QuoteSide{domain.QuoteSideBuy, domain.QuoteSideSell}
	results := make(chan result, len(a.adapters)*len(sides))

	var wg sync.WaitGroup
	for _, ad := range a.adapters {
		for _, side := range sides {
			wg.Add(1)
			go func(ad venue.Adapter, side domain.QuoteSide) {
				defer wg.Done()
				q, err := ad.Quote(ctx, spec.Pair, side, spec.QuoteSize)
				results <- result{quote: q, err: err, venue: ad.ID()}
			}(ad, side)
		}
	}
	wg.Wait()
	close(results)

	captured := time.Now().UTC()
	snap := domain.Snapshot{Pair: spec.Pair, CapturedAt: captured}

	failed := map[string]bool{}
	for res := range results {
		if res.err != nil {
			failed[res.venue] = true
			a.logVenueError(res.venue, spec.Pair, res.err)
			continue
		}
		// Staleness invariant: no quote older than the window enters a
		// snapshot.
		if res.quote.Age(captured) > a.cfg.MaxQuoteStaleness {
			a.logger.Warn("quote dropped as stale",
				slog.String("venue", res.venue),
				slog.String("pair", spec.Pair.String()),
				slog.Duration("age", res.quote.Age(captured)),
			)
			continue
		}
		snap.Quotes = append(snap.Quotes, res.quote)

		if a.cache != nil {
			if err := a.cache.SetQuote(ctx, res.quote); err != nil {
				a.logger.Debug("quote cache write failed", slog.String("error", err.Error()))
			}
		}
	}

	if a.health != nil {
		for _, ad := range a.adapters {
			a.health.RecordVenueResult(ad.ID(), !failed[ad.ID()])
		}
	}

	if a.store != nil && a.cfg.PersistSnapshots {
		if err := a.store.Append(ctx, snap); err != nil {
			a.logger.Warn("snapshot persist failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Debug("snapshot captured",
		slog.String("pair", spec.Pair.String()),
		slog.Int("quotes", len(snap.Quotes)),
	)
	return snap
}

// logVenueError logs a venue failure at a level matching its kind. Data
// errors are routine; anything else deserves attention.
func (a *Aggregator) logVenueError(venueID string, pair domain.Pair, err error) {
	attrs := []any{
		slog.String("venue", venueID),
		slog.String("pair", pair.String()),
		slog.String("error", err.Error()),
	}
	switch {
	case errors.Is(err, domain.ErrVenueUnavailable),
		errors.Is(err, domain.ErrStaleData),
		errors.Is(err, domain.ErrInsufficientLiquidity):
		a.logger.Debug("venue excluded from snapshot", attrs...)
	default:
		a.logger.Warn("unexpected venue error", attrs...)
	}
}
