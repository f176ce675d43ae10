package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"flasharb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		ExecutionAuthorized: true,
		MinNetProfitUSD:     10,
		MaxPositionSize:     50,
		MinConfidence:       0.5,
		BreakerThreshold:    3,
		BreakerCooldown:     10 * time.Minute,
		DailyLossLimitUSD:   250,
	}
}

func goodOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:          "opp-1",
		InputAmount: 5,
		NetProfit:   25,
		Confidence:  0.8,
	}
}

func newTestGate(cfg Config, at time.Time) (*Gate, *time.Time) {
	g := New(cfg, testLogger())
	clock := at
	g.SetNow(func() time.Time { return clock })
	return g, &clock
}

func TestEvaluateAllows(t *testing.T) {
	g, _ := newTestGate(testConfig(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	d := g.Evaluate(goodOpportunity())
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestEvaluateRejectionOrder(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("authorization first", func(t *testing.T) {
		cfg := testConfig()
		cfg.ExecutionAuthorized = false
		g, _ := newTestGate(cfg, at)

		// Even an opportunity failing every other check reports only the
		// authorization reason.
		opp := goodOpportunity()
		opp.NetProfit = 1
		opp.Confidence = 0
		d := g.Evaluate(opp)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonExecutionNotAuthorized, d.Reason)
	})

	t.Run("below minimum profit", func(t *testing.T) {
		g, _ := newTestGate(testConfig(), at)
		opp := goodOpportunity()
		opp.NetProfit = 9.99
		d := g.Evaluate(opp)
		assert.Equal(t, ReasonBelowMinimumProfit, d.Reason)
	})

	t.Run("above maximum exposure", func(t *testing.T) {
		g, _ := newTestGate(testConfig(), at)
		opp := goodOpportunity()
		opp.InputAmount = 51
		d := g.Evaluate(opp)
		assert.Equal(t, ReasonAboveMaximumExposure, d.Reason)
	})

	t.Run("low confidence", func(t *testing.T) {
		g, _ := newTestGate(testConfig(), at)
		opp := goodOpportunity()
		opp.Confidence = 0.4
		d := g.Evaluate(opp)
		assert.Equal(t, ReasonLowConfidence, d.Reason)
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g, _ := newTestGate(testConfig(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	g.RecordOutcome(false, -5)
	g.RecordOutcome(false, -5)
	assert.False(t, g.BreakerOpen())

	g.RecordOutcome(false, -5)
	assert.True(t, g.BreakerOpen())

	d := g.Evaluate(goodOpportunity())
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCircuitOpen, d.Reason)
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	g, _ := newTestGate(testConfig(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	g.RecordOutcome(false, -5)
	g.RecordOutcome(false, -5)
	g.RecordOutcome(true, 20)
	g.RecordOutcome(false, -5)
	g.RecordOutcome(false, -5)

	assert.False(t, g.BreakerOpen())
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	g, clock := newTestGate(testConfig(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	g.RecordOutcome(false, -5)
	g.RecordOutcome(false, -5)
	g.RecordOutcome(false, -5)
	assert.True(t, g.BreakerOpen())

	*clock = clock.Add(9 * time.Minute)
	assert.True(t, g.BreakerOpen())

	*clock = clock.Add(2 * time.Minute)
	assert.False(t, g.BreakerOpen())
	assert.True(t, g.Evaluate(goodOpportunity()).Allowed)
}

func TestDailyLossLimit(t *testing.T) {
	g, clock := newTestGate(testConfig(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	// Profits never offset accrued losses.
	g.RecordOutcome(true, 500)
	g.RecordOutcome(true, -200)
	g.RecordOutcome(true, -60)
	assert.InDelta(t, 260.0, g.DailyLossUSD(), 1e-9)

	d := g.Evaluate(goodOpportunity())
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossLimitExceeded, d.Reason)

	// The accumulator resets at UTC midnight.
	*clock = time.Date(2026, 8, 2, 0, 0, 1, 0, time.UTC)
	assert.Zero(t, g.DailyLossUSD())
	assert.True(t, g.Evaluate(goodOpportunity()).Allowed)
}

func TestZeroLimitsDisableChecks(t *testing.T) {
	cfg := Config{ExecutionAuthorized: true}
	g, _ := newTestGate(cfg, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	opp := domain.Opportunity{ID: "opp-2", InputAmount: 1e9, NetProfit: 0.01, Confidence: 0}
	assert.True(t, g.Evaluate(opp).Allowed)
}
