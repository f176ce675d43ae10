package domain

import "time"

// ExecStatus is the execution state of one flash-loan attempt.
type ExecStatus string

const (
	ExecPlanned    ExecStatus = "planned"
	ExecSubmitted  ExecStatus = "submitted"
	ExecConfirming ExecStatus = "confirming"
	ExecConfirmed  ExecStatus = "confirmed"
	ExecReverted   ExecStatus = "reverted"
	ExecFailed     ExecStatus = "failed"
)

// Terminal reports whether the status is one of the three terminal states.
func (s ExecStatus) Terminal() bool {
	switch s {
	case ExecConfirmed, ExecReverted, ExecFailed:
		return true
	default:
		return false
	}
}

// Success reports whether the execution realized the arbitrage.
func (s ExecStatus) Success() bool {
	return s == ExecConfirmed
}

// ExecErrorKind classifies why an execution ended in FAILED or REVERTED.
type ExecErrorKind string

const (
	ExecErrNone                ExecErrorKind = ""
	ExecErrOpportunityExpired  ExecErrorKind = "opportunity_expired"
	ExecErrCircuitOpen         ExecErrorKind = "circuit_open"
	ExecErrRetriesExhausted    ExecErrorKind = "retries_exhausted"
	ExecErrConfirmationTimeout ExecErrorKind = "confirmation_timeout"
	ExecErrSubmissionFailed    ExecErrorKind = "submission_failed"
	ExecErrReverted            ExecErrorKind = "reverted"
	ExecErrLockHeld            ExecErrorKind = "asset_lock_held"
)

// ExecutionRecord tracks one opportunity through the coordinator's state
// machine. It is created when the coordinator accepts an opportunity,
// mutated through the state transitions, and persisted to the ledger once
// terminal.
type ExecutionRecord struct {
	ID            string
	OpportunityID string
	Route         Route
	Attempt       int // submission attempts consumed (1-based)
	Status        ExecStatus
	TxRef         string
	InputAmount   float64
	EstNetProfit  float64
	RealizedPnL   float64 // actual balance delta; negative on gas-only loss
	GasCostUSD    float64
	ErrorKind     ExecErrorKind
	ErrorDetail   string
	CreatedAt     time.Time
	SubmittedAt   *time.Time
	CompletedAt   *time.Time
}

// SlippageRealized returns the gap between estimated and realized profit.
// Recorded, never discarded: it feeds the slippage-buffer tuning loop.
func (r ExecutionRecord) SlippageRealized() float64 {
	return r.EstNetProfit - r.RealizedPnL
}
