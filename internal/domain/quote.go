package domain

import "time"

// QuoteSide indicates which side of the book a quote prices.
type QuoteSide string

const (
	QuoteSideBuy  QuoteSide = "buy"
	QuoteSideSell QuoteSide = "sell"
)

// Quote is a single venue's price for a pair at a point in time. Quotes are
// immutable once created; a new one is produced per poll.
type Quote struct {
	VenueID   string
	Pair      Pair
	Side      QuoteSide
	Price     float64 // quote asset per base asset
	Liquidity float64 // available depth in base asset units
	Timestamp time.Time
	LatencyMs int64
}

// Age returns how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// Snapshot is a consistent per-pair view of all venue quotes captured in one
// polling cycle. Every quote in a snapshot is within the aggregator's
// staleness window at capture time.
type Snapshot struct {
	Pair       Pair
	Quotes     []Quote
	CapturedAt time.Time
}

// VenueQuote returns the quote from the given venue, if present.
func (s Snapshot) VenueQuote(venueID string) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.VenueID == venueID {
			return q, true
		}
	}
	return Quote{}, false
}
