// Package executor drives approved opportunities through the flash-loan
// submission state machine. Exactly one coordinator consumes the
// opportunity channel; per-asset locks serialize in-flight loans across
// processes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flasharb/internal/domain"
	"flasharb/internal/risk"
)

// Gate is the risk surface the coordinator consults before and reports
// back to after each execution.
type Gate interface {
	Evaluate(opp domain.Opportunity) risk.Decision
	RecordOutcome(success bool, realizedPnL float64)
}

// Recorder receives terminal execution records. Implemented by the ledger.
type Recorder interface {
	RecordExecution(ctx context.Context, rec domain.ExecutionRecord) error
}

// TxPlanner builds a ready-to-sign transaction for an opportunity. Called
// once per attempt so retries get fresh gas and nonce.
type TxPlanner interface {
	Plan(ctx context.Context, opp domain.Opportunity) (domain.TxRequest, error)
}

// Config tunes the coordinator.
type Config struct {
	MaxAttempts       int
	RetryBackoff      time.Duration
	MaxOpportunityAge time.Duration
	ConfirmTimeout    time.Duration
	AssetLockTTL      time.Duration
	// EstGasCostUSD prices the gas leg of realized PnL. Kept in config
	// rather than derived per receipt so accounting stays deterministic.
	EstGasCostUSD float64
}

// Coordinator reads opportunities from a channel and executes each one at
// most once, producing exactly one terminal execution record per accepted
// opportunity.
type Coordinator struct {
	oppCh   <-chan domain.Opportunity
	cfg     Config
	gate    Gate
	planner TxPlanner
	signer  domain.TxSigner
	chain   domain.ChainClient
	locks   domain.LockManager
	ledger  Recorder
	dedup   *Dedup
	logger  *slog.Logger

	cleanupInterval time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator reading from oppCh.
func New(
	oppCh <-chan domain.Opportunity,
	cfg Config,
	gate Gate,
	planner TxPlanner,
	signer domain.TxSigner,
	chain domain.ChainClient,
	locks domain.LockManager,
	ledger Recorder,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		oppCh:           oppCh,
		cfg:             cfg,
		gate:            gate,
		planner:         planner,
		signer:          signer,
		chain:           chain,
		locks:           locks,
		ledger:          ledger,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
		now:             func() time.Time { return time.Now().UTC() },
		sleep:           sleepCtx,
	}
}

// SetNow overrides the coordinator's clock. Test hook.
func (c *Coordinator) SetNow(now func() time.Time) { c.now = now }

// SetSleep overrides the retry backoff sleeper. Test hook.
func (c *Coordinator) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}

// Run processes opportunities until the context is cancelled, then drains
// anything already buffered in the channel before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("execution coordinator started")
	defer c.logger.Info("execution coordinator stopped")

	cleanupTicker := time.NewTicker(c.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()

		case opp, ok := <-c.oppCh:
			if !ok {
				return nil
			}
			c.process(ctx, opp)

		case <-cleanupTicker.C:
			c.dedup.Cleanup()
		}
	}
}

// process takes one opportunity through gate, lock, submit, and confirm.
// Every path out of the executing branch ends in exactly one terminal
// record.
func (c *Coordinator) process(ctx context.Context, opp domain.Opportunity) {
	log := c.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("route", opp.Route.String()),
		slog.Float64("est_net_profit_usd", opp.NetProfit),
	)

	if c.dedup.IsDuplicate(opp.ID) {
		log.Debug("opportunity already handled, skipping")
		return
	}

	decision := c.gate.Evaluate(opp)
	if !decision.Allowed {
		if decision.Reason == risk.ReasonCircuitOpen {
			// Breaker rejections are recorded: they explain gaps in the
			// execution history during an outage.
			c.finish(ctx, c.newRecord(opp), domain.ExecFailed, domain.ExecErrCircuitOpen, "circuit breaker open", 0, log)
			return
		}
		log.Debug("opportunity rejected by risk gate", slog.String("reason", string(decision.Reason)))
		return
	}

	if age := opp.Age(c.now()); age > c.cfg.MaxOpportunityAge {
		c.finish(ctx, c.newRecord(opp), domain.ExecFailed, domain.ExecErrOpportunityExpired,
			fmt.Sprintf("opportunity aged %s, cap %s", age, c.cfg.MaxOpportunityAge), 0, log)
		return
	}

	// One in-flight loan per loop asset, across processes.
	release, err := c.locks.Acquire(ctx, "flashloan:"+opp.Pair.Quote, c.cfg.AssetLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// Contention means another process is already executing on the
			// asset. Nothing was attempted here, so the record skips the
			// risk gate: the breaker counts failed executions, not lost
			// races for the lock.
			c.complete(ctx, c.newRecord(opp), domain.ExecFailed, domain.ExecErrLockHeld, "another execution holds the asset lock", 0, log)
			return
		}
		log.Error("asset lock acquisition failed", slog.String("error", err.Error()))
		return
	}
	defer release()

	c.execute(ctx, opp, log)
}

// execute runs the submission and confirmation phases under the asset lock.
func (c *Coordinator) execute(ctx context.Context, opp domain.Opportunity, log *slog.Logger) {
	rec := c.newRecord(opp)

	txRef, attempt, errKind, detail := c.submitWithRetry(ctx, opp, log)
	rec.Attempt = attempt
	if errKind != domain.ExecErrNone {
		c.finish(ctx, rec, domain.ExecFailed, errKind, detail, 0, log)
		return
	}

	rec.Status = domain.ExecSubmitted
	rec.TxRef = txRef
	now := c.now()
	rec.SubmittedAt = &now
	log.Info("transaction submitted", slog.String("tx", txRef), slog.Int("attempt", attempt))

	rec.Status = domain.ExecConfirming
	result, err := c.chain.WaitForConfirmation(ctx, txRef, c.cfg.ConfirmTimeout)
	if err != nil {
		c.finish(ctx, rec, domain.ExecFailed, domain.ExecErrConfirmationTimeout,
			"confirmation wait aborted: "+err.Error(), 0, log)
		return
	}
	if !result.Included {
		c.finish(ctx, rec, domain.ExecFailed, domain.ExecErrConfirmationTimeout,
			fmt.Sprintf("not included within %s", c.cfg.ConfirmTimeout), 0, log)
		return
	}

	rec.GasCostUSD = c.cfg.EstGasCostUSD
	if result.Reverted {
		// A revert still burns gas; the loss feeds the daily limit.
		c.finish(ctx, rec, domain.ExecReverted, domain.ExecErrReverted, "transaction reverted on-chain", -c.cfg.EstGasCostUSD, log)
		return
	}

	realized := -c.cfg.EstGasCostUSD
	if result.Repayment != nil {
		realized = result.Repayment.Profit - c.cfg.EstGasCostUSD
	} else {
		log.Warn("confirmed without repayment event", slog.String("tx", txRef))
	}
	c.finish(ctx, rec, domain.ExecConfirmed, domain.ExecErrNone, "", realized, log)
}

// submitWithRetry signs and submits until accepted, a permanent rejection,
// or attempts run out. Only transient submission errors are retried, each
// retry re-planning for fresh gas and nonce.
func (c *Coordinator) submitWithRetry(ctx context.Context, opp domain.Opportunity, log *slog.Logger) (txRef string, attempt int, errKind domain.ExecErrorKind, detail string) {
	for attempt = 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		req, err := c.planner.Plan(ctx, opp)
		if err != nil {
			return "", attempt, domain.ExecErrSubmissionFailed, "plan: " + err.Error()
		}

		signed, err := c.signer.Sign(req)
		if err != nil {
			return "", attempt, domain.ExecErrSubmissionFailed, "sign: " + err.Error()
		}

		ref, err := c.chain.Submit(ctx, signed)
		if err == nil {
			return ref, attempt, domain.ExecErrNone, ""
		}

		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) || !subErr.Transient {
			return "", attempt, domain.ExecErrSubmissionFailed, err.Error()
		}

		log.Warn("transient submission failure",
			slog.Int("attempt", attempt),
			slog.String("reason", subErr.Reason),
		)
		if attempt < c.cfg.MaxAttempts {
			if err := c.sleep(ctx, c.cfg.RetryBackoff*time.Duration(attempt)); err != nil {
				return "", attempt, domain.ExecErrSubmissionFailed, "aborted during backoff: " + err.Error()
			}
		}
	}
	return "", c.cfg.MaxAttempts, domain.ExecErrRetriesExhausted,
		fmt.Sprintf("%d transient failures", c.cfg.MaxAttempts)
}

// finish stamps the terminal state, persists the record, and feeds the
// outcome back to the risk gate.
func (c *Coordinator) finish(ctx context.Context, rec domain.ExecutionRecord, status domain.ExecStatus, kind domain.ExecErrorKind, detail string, realized float64, log *slog.Logger) {
	c.complete(ctx, rec, status, kind, detail, realized, log)
	c.gate.RecordOutcome(status.Success(), realized)
}

// complete is finish without the gate feedback, for terminal records that
// never reached an execution attempt.
func (c *Coordinator) complete(ctx context.Context, rec domain.ExecutionRecord, status domain.ExecStatus, kind domain.ExecErrorKind, detail string, realized float64, log *slog.Logger) {
	rec.Status = status
	rec.ErrorKind = kind
	rec.ErrorDetail = detail
	rec.RealizedPnL = realized
	now := c.now()
	rec.CompletedAt = &now

	if err := c.ledger.RecordExecution(ctx, rec); err != nil {
		log.Error("execution record persist failed",
			slog.String("execution_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	attrs := []any{
		slog.String("execution_id", rec.ID),
		slog.String("status", string(status)),
		slog.Float64("realized_pnl_usd", realized),
	}
	if kind != domain.ExecErrNone {
		attrs = append(attrs, slog.String("error_kind", string(kind)), slog.String("detail", detail))
		log.Warn("execution finished", attrs...)
		return
	}
	log.Info("execution finished", attrs...)
}

func (c *Coordinator) newRecord(opp domain.Opportunity) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Route:         opp.Route,
		Status:        domain.ExecPlanned,
		InputAmount:   opp.InputAmount,
		EstNetProfit:  opp.NetProfit,
		CreatedAt:     c.now(),
	}
}

// drain handles opportunities already buffered in the channel after
// cancellation so accepted work is never silently dropped. Each gets a
// short-lived context to avoid hanging shutdown on external calls.
func (c *Coordinator) drain() {
	for {
		select {
		case opp, ok := <-c.oppCh:
			if !ok {
				return
			}
			c.logger.Warn("draining opportunity after shutdown",
				slog.String("opportunity_id", opp.ID),
			)
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.process(drainCtx, opp)
			cancel()
		default:
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
