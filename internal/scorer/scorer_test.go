package scorer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flasharb/internal/domain"
)

var testPair = domain.NewPair("WETH", "USDC")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		AmountMultipliers: []float64{1},
		FlashLoanFeeBps:   9,
		SlippageBufferPct: 0,
		GasCostUSD:        5,
		MaxQuoteStaleness: 5 * time.Second,
		LiquidityWeight:   0.4,
		FreshnessWeight:   0.35,
		ReliabilityWeight: 0.25,
	}
}

func testFees() FeeTable {
	return FeeTable{"alpha": 30, "beta": 30}
}

// fakeReliability returns a fixed failure rate for every venue.
type fakeReliability struct{ rate float64 }

func (f fakeReliability) VenueFailureRate(string) float64 { return f.rate }

func newTestScorer(cfg Config) *Scorer {
	s := New(cfg, testFees(), nil, map[domain.Pair]float64{testPair: 1}, testLogger())
	s.SetNow(func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) })
	return s
}

func snapshot(capturedAt time.Time, quotes ...domain.Quote) domain.Snapshot {
	return domain.Snapshot{Pair: testPair, Quotes: quotes, CapturedAt: capturedAt}
}

func quote(venueID string, side domain.QuoteSide, price, liquidity float64, ts time.Time) domain.Quote {
	return domain.Quote{
		VenueID:   venueID,
		Pair:      testPair,
		Side:      side,
		Price:     price,
		Liquidity: liquidity,
		Timestamp: ts,
	}
}

func TestScoreProfitableSpread(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	)

	opps := newTestScorer(testConfig()).Score(snap)
	require.Len(t, opps, 1)

	opp := opps[0]
	// principal = 3000, gross = 50, venue fees = 60bps on principal = 18,
	// flash fee = 9bps on principal = 2.70, gas = 5.
	assert.InDelta(t, 3000.0, opp.Principal, 1e-9)
	assert.InDelta(t, 50.0, opp.GrossProfit, 1e-9)
	assert.InDelta(t, 18.0, opp.VenueFees, 1e-9)
	assert.InDelta(t, 2.7, opp.FlashLoanFee, 1e-9)
	assert.InDelta(t, 5.0, opp.EstGasCost, 1e-9)
	assert.InDelta(t, 24.3, opp.NetProfit, 1e-9)

	require.Len(t, opp.Route.Hops, 2)
	assert.Equal(t, "alpha", opp.Route.Hops[0].VenueID)
	assert.Equal(t, domain.SwapQuoteForBase, opp.Route.Hops[0].Direction)
	assert.Equal(t, "beta", opp.Route.Hops[1].VenueID)
	assert.Equal(t, domain.SwapBaseForQuote, opp.Route.Hops[1].Direction)
	assert.NoError(t, opp.Route.Validate())
}

func TestScoreSlippageBufferShavesGross(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	)

	cfg := testConfig()
	cfg.SlippageBufferPct = 10 // 10% of gross = 5.0
	opps := newTestScorer(cfg).Score(snap)
	require.Len(t, opps, 1)

	assert.InDelta(t, 5.0, opps[0].SlippageBuffer, 1e-9)
	assert.InDelta(t, 19.3, opps[0].NetProfit, 1e-9)
}

func TestScoreUnprofitableSpreadYieldsNothing(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// 0.5% spread against 0.69% in fees plus gas: never profitable.
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3015, 100, now),
	)

	assert.Empty(t, newTestScorer(testConfig()).Score(snap))
}

func TestScoreInvertedSpreadYieldsNothing(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3050, 100, now),
		quote("beta", domain.QuoteSideSell, 3000, 100, now),
	)

	assert.Empty(t, newTestScorer(testConfig()).Score(snap))
}

func TestScoreSingleVenueYieldsNothing(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("alpha", domain.QuoteSideSell, 3050, 100, now),
	)

	assert.Empty(t, newTestScorer(testConfig()).Score(snap))
}

func TestScoreDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	)

	s := newTestScorer(testConfig())
	first := s.Score(snap)
	second := s.Score(snap)
	require.Equal(t, first, second)

	// The ID is derived from the inputs, so an independent scorer over the
	// same snapshot reproduces it.
	other := newTestScorer(testConfig()).Score(snap)
	require.Len(t, other, 1)
	assert.Equal(t, first[0].ID, other[0].ID)
}

func TestScoreAmountLadderMaximizesNet(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 10, now),
		quote("beta", domain.QuoteSideSell, 3050, 10, now),
	)

	cfg := testConfig()
	cfg.AmountMultipliers = []float64{1, 5, 50}
	opps := newTestScorer(cfg).Score(snap)
	require.Len(t, opps, 1)

	// Net grows linearly with amount while gas stays flat, so the largest
	// multiplier inside the 10-unit depth wins.
	assert.InDelta(t, 5.0, opps[0].InputAmount, 1e-9)
}

func TestScoreRespectsDepthCap(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 0.5, now),
	)

	// The only ladder rung (1 unit) exceeds the shallower depth.
	assert.Empty(t, newTestScorer(testConfig()).Score(snap))
}

func TestConfidenceLiquidityMonotonic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScorer(testConfig())

	shallow := s.Score(snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 2, now),
		quote("beta", domain.QuoteSideSell, 3050, 2, now),
	))
	deep := s.Score(snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	))
	require.Len(t, shallow, 1)
	require.Len(t, deep, 1)

	assert.Greater(t, deep[0].Confidence, shallow[0].Confidence)
}

func TestConfidenceFreshnessMonotonic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScorer(testConfig())

	fresh := s.Score(snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	))
	stale := s.Score(snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now.Add(-4*time.Second)),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	))
	require.Len(t, fresh, 1)
	require.Len(t, stale, 1)

	assert.Greater(t, fresh[0].Confidence, stale[0].Confidence)
}

func TestConfidenceReliabilityMonotonic(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	)

	reliable := New(testConfig(), testFees(), fakeReliability{rate: 0}, map[domain.Pair]float64{testPair: 1}, testLogger()).Score(snap)
	flaky := New(testConfig(), testFees(), fakeReliability{rate: 0.8}, map[domain.Pair]float64{testPair: 1}, testLogger()).Score(snap)
	require.Len(t, reliable, 1)
	require.Len(t, flaky, 1)

	assert.Greater(t, reliable[0].Confidence, flaky[0].Confidence)
}

func TestConfidenceSweetSpotBonus(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 100, now),
		quote("beta", domain.QuoteSideSell, 3050, 100, now),
	)

	base := newTestScorer(testConfig()).Score(snap)
	require.Len(t, base, 1)

	cfg := testConfig()
	cfg.SweetSpotEnabled = true
	cfg.SweetSpotMinUSD = 10
	cfg.SweetSpotMaxUSD = 100
	cfg.SweetSpotBonus = 0.1
	boosted := newTestScorer(cfg).Score(snap)
	require.Len(t, boosted, 1)

	assert.InDelta(t, base[0].Confidence+0.1, boosted[0].Confidence, 1e-9)
}

func TestConfidenceClamped(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshot(now,
		quote("alpha", domain.QuoteSideBuy, 3000, 1e6, now),
		quote("beta", domain.QuoteSideSell, 3050, 1e6, now),
	)

	cfg := testConfig()
	cfg.SweetSpotEnabled = true
	cfg.SweetSpotMinUSD = 0
	cfg.SweetSpotMaxUSD = 1e9
	cfg.SweetSpotBonus = 5
	opps := newTestScorer(cfg).Score(snap)
	require.Len(t, opps, 1)

	assert.LessOrEqual(t, opps[0].Confidence, 1.0)
	assert.GreaterOrEqual(t, opps[0].Confidence, 0.0)
}
