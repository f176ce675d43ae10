package notify

import (
	"context"
	"fmt"
	"time"

	"flasharb/internal/domain"
)

// Event types emitted by the pipeline. The notifier's allow-list filters on
// these names.
const (
	EventExecutionConfirmed = "execution_confirmed"
	EventExecutionFailed    = "execution_failed"
	EventBreakerOpen        = "breaker_open"
	EventOpportunityFound   = "opportunity_found"
)

// ExecutionFinished formats and dispatches an alert for a terminal execution
// record.
func (n *Notifier) ExecutionFinished(ctx context.Context, rec domain.ExecutionRecord) error {
	switch rec.Status {
	case domain.ExecConfirmed:
		title := fmt.Sprintf("Arbitrage confirmed: %s", rec.Route)
		msg := fmt.Sprintf("realized %+.2f USD\ntx %s\nsize %.6f", rec.RealizedPnL, rec.TxRef, rec.InputAmount)
		return n.Notify(ctx, EventExecutionConfirmed, title, msg)

	case domain.ExecFailed, domain.ExecReverted:
		title := fmt.Sprintf("Arbitrage %s: %s", rec.Status, rec.Route)
		msg := fmt.Sprintf("reason %s\nexpected %+.2f USD", rec.ErrorKind, rec.EstNetProfit)
		if rec.ErrorDetail != "" {
			msg += "\n" + rec.ErrorDetail
		}
		if rec.TxRef != "" {
			msg += "\ntx " + rec.TxRef
		}
		return n.Notify(ctx, EventExecutionFailed, title, msg)

	default:
		return nil
	}
}

// BreakerOpened alerts operators that the circuit breaker tripped and
// execution is paused.
func (n *Notifier) BreakerOpened(ctx context.Context, consecutiveFailures int, cooldown time.Duration) error {
	title := "Circuit breaker open"
	msg := fmt.Sprintf("%d consecutive execution failures, pausing for %s", consecutiveFailures, cooldown)
	return n.Notify(ctx, EventBreakerOpen, title, msg)
}

// OpportunityFound alerts on a freshly scored opportunity. Intended for
// monitor mode where nothing executes.
func (n *Notifier) OpportunityFound(ctx context.Context, opp domain.Opportunity) error {
	title := fmt.Sprintf("Opportunity: %s", opp.Pair)
	msg := fmt.Sprintf("route %s\nnet %+.2f USD at %.6f %s (confidence %.2f)",
		opp.Route, opp.NetProfit, opp.InputAmount, opp.Pair.Base, opp.Confidence)
	return n.Notify(ctx, EventOpportunityFound, title, msg)
}
