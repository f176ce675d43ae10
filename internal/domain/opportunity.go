package domain

import "time"

// Opportunity is a scored arbitrage candidate. It is immutable once scored;
// the scorer produces a fresh one each cycle and it is consumed exactly once
// downstream. All monetary fields are in quote-asset (USD-equivalent) terms.
type Opportunity struct {
	ID             string
	Route          Route
	Pair           Pair
	InputAmount    float64 // base-asset size traded through the route
	Principal      float64 // loop-asset notional borrowed via flash loan
	GrossProfit    float64
	VenueFees      float64 // sum of per-hop venue fees
	FlashLoanFee   float64 // fraction-of-principal fee in quote terms
	EstGasCost     float64
	SlippageBuffer float64
	NetProfit      float64
	Confidence     float64 // [0,1], higher is better
	SnapshotAt     time.Time
	CreatedAt      time.Time
}

// TotalFees returns the sum of all fee components excluding gas.
func (o Opportunity) TotalFees() float64 {
	return o.VenueFees + o.FlashLoanFee
}

// Age returns how long ago the opportunity was scored.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}
