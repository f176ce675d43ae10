package aggregator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flasharb/internal/domain"
	"flasharb/internal/venue"
)

var testPair = domain.NewPair("WETH", "USDC")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdapter serves canned quotes, optionally failing or back-dating them.
type fakeAdapter struct {
	id      string
	price   float64
	err     error
	staleBy time.Duration
	delay   time.Duration
}

func (f *fakeAdapter) ID() string      { return f.id }
func (f *fakeAdapter) FeeBps() float64 { return 30 }

func (f *fakeAdapter) Quote(ctx context.Context, pair domain.Pair, side domain.QuoteSide, amount float64) (domain.Quote, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	price := f.price
	if side == domain.QuoteSideSell {
		price -= 1 // token spread so both sides are distinguishable
	}
	return domain.Quote{
		VenueID:   f.id,
		Pair:      pair,
		Side:      side,
		Price:     price,
		Liquidity: 100,
		Timestamp: time.Now().UTC().Add(-f.staleBy),
	}, nil
}

var _ venue.Adapter = (*fakeAdapter)(nil)

// fakeHealth records venue outcomes for assertions.
type fakeHealth struct {
	mu       sync.Mutex
	outcomes map[string][]bool
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{outcomes: make(map[string][]bool)}
}

func (h *fakeHealth) RecordVenueResult(venueID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes[venueID] = append(h.outcomes[venueID], ok)
}

func (h *fakeHealth) last(venueID string) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.outcomes[venueID]
	if len(v) == 0 {
		return false, false
	}
	return v[len(v)-1], true
}

func newTestAggregator(adapters []venue.Adapter, health VenueHealth) *Aggregator {
	return New(
		adapters,
		[]PairSpec{{Pair: testPair, QuoteSize: 1}},
		Config{
			PollInterval:      time.Second,
			MaxQuoteStaleness: 5 * time.Second,
		},
		make(chan domain.Snapshot, 1),
		nil,
		nil,
		health,
		testLogger(),
	)
}

func TestPollOnceCollectsBothSidesFromAllVenues(t *testing.T) {
	adapters := []venue.Adapter{
		&fakeAdapter{id: "alpha", price: 3000},
		&fakeAdapter{id: "beta", price: 3010},
	}
	agg := newTestAggregator(adapters, nil)

	snap := agg.PollOnce(context.Background(), PairSpec{Pair: testPair, QuoteSize: 1})

	require.Len(t, snap.Quotes, 4)
	assert.Equal(t, testPair, snap.Pair)
	assert.False(t, snap.CapturedAt.IsZero())

	seen := map[string]int{}
	for _, q := range snap.Quotes {
		seen[q.VenueID]++
		assert.LessOrEqual(t, q.Age(snap.CapturedAt), 5*time.Second)
	}
	assert.Equal(t, 2, seen["alpha"])
	assert.Equal(t, 2, seen["beta"])
}

func TestPollOnceExcludesFailingVenue(t *testing.T) {
	health := newFakeHealth()
	adapters := []venue.Adapter{
		&fakeAdapter{id: "alpha", price: 3000},
		&fakeAdapter{id: "beta", err: domain.ErrVenueUnavailable},
	}
	agg := newTestAggregator(adapters, health)

	snap := agg.PollOnce(context.Background(), PairSpec{Pair: testPair, QuoteSize: 1})

	require.Len(t, snap.Quotes, 2)
	for _, q := range snap.Quotes {
		assert.Equal(t, "alpha", q.VenueID)
	}

	ok, recorded := health.last("alpha")
	require.True(t, recorded)
	assert.True(t, ok)

	ok, recorded = health.last("beta")
	require.True(t, recorded)
	assert.False(t, ok)
}

func TestPollOnceDropsStaleQuotes(t *testing.T) {
	adapters := []venue.Adapter{
		&fakeAdapter{id: "alpha", price: 3000},
		&fakeAdapter{id: "beta", price: 3010, staleBy: time.Minute},
	}
	agg := newTestAggregator(adapters, nil)

	snap := agg.PollOnce(context.Background(), PairSpec{Pair: testPair, QuoteSize: 1})

	require.Len(t, snap.Quotes, 2)
	for _, q := range snap.Quotes {
		assert.Equal(t, "alpha", q.VenueID)
	}
}

func TestPollOnceSlowVenueTimesOutLocally(t *testing.T) {
	// The slow venue's own context deadline expires; the healthy venue's
	// quotes still make the snapshot.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	adapters := []venue.Adapter{
		&fakeAdapter{id: "alpha", price: 3000},
		&fakeAdapter{id: "beta", price: 3010, delay: time.Second},
	}
	agg := newTestAggregator(adapters, nil)

	snap := agg.PollOnce(ctx, PairSpec{Pair: testPair, QuoteSize: 1})

	require.Len(t, snap.Quotes, 2)
	for _, q := range snap.Quotes {
		assert.Equal(t, "alpha", q.VenueID)
	}
}
