package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flasharb/internal/domain"
	"flasharb/internal/risk"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity(id string) domain.Opportunity {
	pair := domain.NewPair("WETH", "USDC")
	return domain.Opportunity{
		ID:   id,
		Pair: pair,
		Route: domain.Route{Hops: []domain.Hop{
			{VenueID: "alpha", Pair: pair, Direction: domain.SwapQuoteForBase},
			{VenueID: "beta", Pair: pair, Direction: domain.SwapBaseForQuote},
		}},
		InputAmount: 2,
		Principal:   6000,
		NetProfit:   40,
		Confidence:  0.9,
		CreatedAt:   testNow,
	}
}

// fakeGate scripts gate decisions and records outcomes.
type fakeGate struct {
	decision risk.Decision
	outcomes []struct {
		success  bool
		realized float64
	}
}

func (g *fakeGate) Evaluate(domain.Opportunity) risk.Decision { return g.decision }

func (g *fakeGate) RecordOutcome(success bool, realizedPnL float64) {
	g.outcomes = append(g.outcomes, struct {
		success  bool
		realized float64
	}{success, realizedPnL})
}

type fakePlanner struct {
	calls int
	err   error
}

func (p *fakePlanner) Plan(ctx context.Context, opp domain.Opportunity) (domain.TxRequest, error) {
	p.calls++
	if p.err != nil {
		return domain.TxRequest{}, p.err
	}
	return domain.TxRequest{To: "0xcontract", GasLimit: 500_000, Nonce: uint64(p.calls)}, nil
}

type fakeSigner struct{ err error }

func (s *fakeSigner) Address() string { return "0xwallet" }

func (s *fakeSigner) Sign(req domain.TxRequest) (domain.SignedTx, error) {
	if s.err != nil {
		return domain.SignedTx{}, s.err
	}
	return domain.SignedTx{Raw: []byte{0x01}, Hash: "0xhash"}, nil
}

// fakeChain scripts per-attempt submit results and a confirmation outcome.
type fakeChain struct {
	submitErrs []error // consumed one per Submit call; nil means accepted
	submits    int
	confirm    domain.ConfirmationResult
	confirmErr error
}

func (c *fakeChain) Submit(ctx context.Context, tx domain.SignedTx) (string, error) {
	c.submits++
	if c.submits <= len(c.submitErrs) {
		if err := c.submitErrs[c.submits-1]; err != nil {
			return "", err
		}
	}
	return "0xhash", nil
}

func (c *fakeChain) WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (domain.ConfirmationResult, error) {
	return c.confirm, c.confirmErr
}

func (c *fakeChain) EstimateGas(ctx context.Context, tx domain.TxRequest) (uint64, error) {
	return 500_000, nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (c *fakeChain) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	return nil, nil
}

func (c *fakeChain) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return 7, nil
}

type fakeLocks struct {
	err      error
	keys     []string
	released int
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() { l.released++ }, nil
}

type fakeRecorder struct {
	records []domain.ExecutionRecord
}

func (r *fakeRecorder) RecordExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	r.records = append(r.records, rec)
	return nil
}

// fixture bundles a coordinator with all its fakes.
type fixture struct {
	coord    *Coordinator
	gate     *fakeGate
	planner  *fakePlanner
	chain    *fakeChain
	locks    *fakeLocks
	recorder *fakeRecorder
	slept    []time.Duration
}

func newFixture() *fixture {
	f := &fixture{
		gate:     &fakeGate{decision: risk.Decision{Allowed: true}},
		planner:  &fakePlanner{},
		chain:    &fakeChain{confirm: confirmedWithProfit(45)},
		locks:    &fakeLocks{},
		recorder: &fakeRecorder{},
	}
	f.coord = New(
		nil,
		Config{
			MaxAttempts:       3,
			RetryBackoff:      500 * time.Millisecond,
			MaxOpportunityAge: 10 * time.Second,
			ConfirmTimeout:    90 * time.Second,
			AssetLockTTL:      2 * time.Minute,
			EstGasCostUSD:     5,
		},
		f.gate,
		f.planner,
		&fakeSigner{},
		f.chain,
		f.locks,
		f.recorder,
		testLogger(),
	)
	f.coord.SetNow(func() time.Time { return testNow })
	f.coord.SetSleep(func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	})
	return f
}

func confirmedWithProfit(profit float64) domain.ConfirmationResult {
	return domain.ConfirmationResult{
		Included: true,
		GasUsed:  420_000,
		Repayment: &domain.RepaymentEvent{
			Asset:     "USDC",
			Principal: 6000,
			Fee:       5.4,
			Profit:    profit,
		},
	}
}

func (f *fixture) requireOneRecord(t *testing.T) domain.ExecutionRecord {
	t.Helper()
	require.Len(t, f.recorder.records, 1)
	return f.recorder.records[0]
}

func TestProcessConfirmedExecution(t *testing.T) {
	f := newFixture()
	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecConfirmed, rec.Status)
	assert.Equal(t, "opp-1", rec.OpportunityID)
	assert.Equal(t, "0xhash", rec.TxRef)
	assert.Equal(t, 1, rec.Attempt)
	assert.Equal(t, domain.ExecErrNone, rec.ErrorKind)
	assert.InDelta(t, 40.0, rec.RealizedPnL, 1e-9) // 45 profit less 5 gas
	require.NotNil(t, rec.CompletedAt)

	require.Len(t, f.gate.outcomes, 1)
	assert.True(t, f.gate.outcomes[0].success)
	assert.InDelta(t, 40.0, f.gate.outcomes[0].realized, 1e-9)

	assert.Equal(t, []string{"flashloan:USDC"}, f.locks.keys)
	assert.Equal(t, 1, f.locks.released)
}

func TestProcessGateRejectionIsDropped(t *testing.T) {
	f := newFixture()
	f.gate.decision = risk.Decision{Allowed: false, Reason: risk.ReasonBelowMinimumProfit}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	assert.Empty(t, f.recorder.records)
	assert.Empty(t, f.gate.outcomes)
	assert.Equal(t, 0, f.chain.submits)
}

func TestProcessCircuitOpenIsRecorded(t *testing.T) {
	f := newFixture()
	f.gate.decision = risk.Decision{Allowed: false, Reason: risk.ReasonCircuitOpen}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrCircuitOpen, rec.ErrorKind)
	assert.Equal(t, 0, f.chain.submits)
}

func TestProcessExpiredOpportunity(t *testing.T) {
	f := newFixture()
	opp := testOpportunity("opp-1")
	opp.CreatedAt = testNow.Add(-11 * time.Second)

	f.coord.process(context.Background(), opp)

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrOpportunityExpired, rec.ErrorKind)
	assert.Equal(t, 0, f.chain.submits)
}

func TestProcessLockHeld(t *testing.T) {
	f := newFixture()
	f.locks.err = domain.ErrLockHeld

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrLockHeld, rec.ErrorKind)
	assert.Equal(t, 0, f.chain.submits)

	// Losing the lock race is not a failed execution; the breaker streak
	// stays untouched.
	assert.Empty(t, f.gate.outcomes)
}

func TestProcessLockContentionDoesNotFeedBreaker(t *testing.T) {
	f := newFixture()
	f.locks.err = domain.ErrLockHeld

	for i := 0; i < 3; i++ {
		f.coord.process(context.Background(), testOpportunity(fmt.Sprintf("opp-%d", i)))
	}

	assert.Len(t, f.recorder.records, 3)
	for _, rec := range f.recorder.records {
		assert.Equal(t, domain.ExecErrLockHeld, rec.ErrorKind)
	}
	assert.Empty(t, f.gate.outcomes)
	assert.Equal(t, 0, f.chain.submits)
}

func TestProcessDuplicateSkipped(t *testing.T) {
	f := newFixture()
	f.coord.process(context.Background(), testOpportunity("opp-1"))
	f.coord.process(context.Background(), testOpportunity("opp-1"))

	assert.Len(t, f.recorder.records, 1)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	f := newFixture()
	transient := &domain.SubmissionError{Transient: true, Reason: "nonce too low"}
	f.chain.submitErrs = []error{transient, transient, nil}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecConfirmed, rec.Status)
	assert.Equal(t, 3, rec.Attempt)

	// Each retry re-plans for fresh gas and nonce.
	assert.Equal(t, 3, f.planner.calls)

	// Backoff grows linearly with the attempt number.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, f.slept)
}

func TestSubmitPermanentErrorFailsImmediately(t *testing.T) {
	f := newFixture()
	f.chain.submitErrs = []error{&domain.SubmissionError{Transient: false, Reason: "insufficient funds"}}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrSubmissionFailed, rec.ErrorKind)
	assert.Equal(t, 1, rec.Attempt)
	assert.Empty(t, f.slept)

	require.Len(t, f.gate.outcomes, 1)
	assert.False(t, f.gate.outcomes[0].success)
}

func TestSubmitRetriesExhausted(t *testing.T) {
	f := newFixture()
	transient := &domain.SubmissionError{Transient: true, Reason: "underpriced"}
	f.chain.submitErrs = []error{transient, transient, transient}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrRetriesExhausted, rec.ErrorKind)
	assert.Equal(t, 3, rec.Attempt)
}

func TestConfirmationTimeout(t *testing.T) {
	f := newFixture()
	f.chain.confirm = domain.ConfirmationResult{Included: false}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.ExecErrConfirmationTimeout, rec.ErrorKind)
	assert.Equal(t, "0xhash", rec.TxRef)

	require.Len(t, f.gate.outcomes, 1)
	assert.False(t, f.gate.outcomes[0].success)
}

func TestRevertedExecution(t *testing.T) {
	f := newFixture()
	f.chain.confirm = domain.ConfirmationResult{Included: true, Reverted: true, GasUsed: 420_000}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecReverted, rec.Status)
	assert.Equal(t, domain.ExecErrReverted, rec.ErrorKind)
	assert.InDelta(t, -5.0, rec.RealizedPnL, 1e-9) // gas-only loss

	require.Len(t, f.gate.outcomes, 1)
	assert.False(t, f.gate.outcomes[0].success)
	assert.InDelta(t, -5.0, f.gate.outcomes[0].realized, 1e-9)
}

func TestConfirmedWithoutRepaymentEvent(t *testing.T) {
	f := newFixture()
	f.chain.confirm = domain.ConfirmationResult{Included: true}

	f.coord.process(context.Background(), testOpportunity("opp-1"))

	// No repayment log means no measurable profit; only gas is known.
	rec := f.requireOneRecord(t)
	assert.Equal(t, domain.ExecConfirmed, rec.Status)
	assert.InDelta(t, -5.0, rec.RealizedPnL, 1e-9)
}

func TestRunDrainsBufferedOpportunitiesOnCancel(t *testing.T) {
	oppCh := make(chan domain.Opportunity, 2)
	f := newFixture()
	f.coord.oppCh = oppCh

	oppCh <- testOpportunity("opp-1")
	oppCh <- testOpportunity("opp-2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.coord.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.recorder.records, 2)
}

func TestRunReturnsOnChannelClose(t *testing.T) {
	oppCh := make(chan domain.Opportunity)
	f := newFixture()
	f.coord.oppCh = oppCh
	close(oppCh)

	assert.NoError(t, f.coord.Run(context.Background()))
}
