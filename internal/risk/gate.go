// Package risk gates opportunities between scoring and execution. The gate
// is the only place execution authorization, loss limits, and the circuit
// breaker are enforced; the coordinator never submits anything the gate
// has not approved.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"flasharb/internal/domain"
)

// RejectReason names why the gate declined an opportunity. Exactly one
// reason is reported per rejection: the first failing check in gate order.
type RejectReason string

const (
	ReasonExecutionNotAuthorized RejectReason = "execution_not_authorized"
	ReasonCircuitOpen            RejectReason = "circuit_open"
	ReasonDailyLossLimitExceeded RejectReason = "daily_loss_limit_exceeded"
	ReasonBelowMinimumProfit     RejectReason = "below_minimum_profit"
	ReasonAboveMaximumExposure   RejectReason = "above_maximum_exposure"
	ReasonLowConfidence          RejectReason = "low_confidence"
)

// Decision is the gate's verdict on one opportunity.
type Decision struct {
	Allowed bool
	Reason  RejectReason
}

// Config tunes the gate. Zero limits disable the corresponding check
// except authorization, which must be set explicitly.
type Config struct {
	ExecutionAuthorized bool
	MinNetProfitUSD     float64
	MaxPositionSize     float64
	MinConfidence       float64
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	DailyLossLimitUSD   float64
}

// Gate evaluates opportunities against static limits and mutable breaker
// and loss state. Safe for concurrent use.
type Gate struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu              sync.Mutex
	consecFailures  int
	breakerOpenedAt time.Time
	breakerOpen     bool
	lossDay         time.Time // UTC midnight the accumulator belongs to
	dailyLossUSD    float64
}

// New creates a Gate with the breaker closed and no loss accrued.
func New(cfg Config, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the gate's clock. Test hook.
func (g *Gate) SetNow(now func() time.Time) { g.now = now }

// Evaluate runs the checks in fixed order and returns the first failure.
// Authorization is checked before everything else so a disarmed gate never
// reports breaker or limit state.
func (g *Gate) Evaluate(opp domain.Opportunity) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cfg.ExecutionAuthorized {
		return g.reject(opp, ReasonExecutionNotAuthorized)
	}
	if g.breakerOpenLocked() {
		return g.reject(opp, ReasonCircuitOpen)
	}
	if g.dailyLossExceededLocked() {
		return g.reject(opp, ReasonDailyLossLimitExceeded)
	}
	if opp.NetProfit < g.cfg.MinNetProfitUSD {
		return g.reject(opp, ReasonBelowMinimumProfit)
	}
	if g.cfg.MaxPositionSize > 0 && opp.InputAmount > g.cfg.MaxPositionSize {
		return g.reject(opp, ReasonAboveMaximumExposure)
	}
	if opp.Confidence < g.cfg.MinConfidence {
		return g.reject(opp, ReasonLowConfidence)
	}
	return Decision{Allowed: true}
}

// RecordOutcome feeds a terminal execution result back into gate state.
// A success closes any failure streak; a failure extends it and may trip
// the breaker. realizedPnL is signed: losses accrue toward the daily limit.
func (g *Gate) RecordOutcome(success bool, realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLossDayLocked()
	if realizedPnL < 0 {
		g.dailyLossUSD += -realizedPnL
	}

	if success {
		g.consecFailures = 0
		return
	}

	g.consecFailures++
	if g.cfg.BreakerThreshold > 0 && g.consecFailures >= g.cfg.BreakerThreshold && !g.breakerOpen {
		g.breakerOpen = true
		g.breakerOpenedAt = g.now()
		g.logger.Warn("circuit breaker opened",
			slog.Int("consecutive_failures", g.consecFailures),
			slog.Duration("cooldown", g.cfg.BreakerCooldown),
		)
	}
}

// BreakerOpen reports whether the breaker currently blocks execution.
func (g *Gate) BreakerOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breakerOpenLocked()
}

// DailyLossUSD returns today's accrued realized loss.
func (g *Gate) DailyLossUSD() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLossDayLocked()
	return g.dailyLossUSD
}

// breakerOpenLocked rechecks the cooldown and closes the breaker once it
// has elapsed, so state only transitions open -> cooling down -> closed.
func (g *Gate) breakerOpenLocked() bool {
	if !g.breakerOpen {
		return false
	}
	if g.now().Sub(g.breakerOpenedAt) >= g.cfg.BreakerCooldown {
		g.breakerOpen = false
		g.consecFailures = 0
		g.logger.Info("circuit breaker closed after cooldown")
		return false
	}
	return true
}

func (g *Gate) dailyLossExceededLocked() bool {
	if g.cfg.DailyLossLimitUSD <= 0 {
		return false
	}
	g.rollLossDayLocked()
	return g.dailyLossUSD >= g.cfg.DailyLossLimitUSD
}

// rollLossDayLocked resets the loss accumulator at UTC midnight.
func (g *Gate) rollLossDayLocked() {
	day := g.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(g.lossDay) {
		g.lossDay = day
		g.dailyLossUSD = 0
	}
}

func (g *Gate) reject(opp domain.Opportunity, reason RejectReason) Decision {
	g.logger.Debug("opportunity rejected",
		slog.String("opportunity_id", opp.ID),
		slog.String("reason", string(reason)),
		slog.Float64("net_profit_usd", opp.NetProfit),
	)
	return Decision{Allowed: false, Reason: reason}
}
