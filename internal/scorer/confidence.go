package scorer

import (
	"strconv"
	"time"

	"flasharb/internal/domain"
)

// confidence combines liquidity depth, quote freshness, and venue
// reliability into a [0,1] score. Each term is monotonic in its input so
// deeper books, fresher quotes, and more reliable venues can only raise
// the result.
func (s *Scorer) confidence(buy, sell domain.Quote, amount, depth float64, capturedAt time.Time, net float64) float64 {
	wl, wf, wr := s.cfg.LiquidityWeight, s.cfg.FreshnessWeight, s.cfg.ReliabilityWeight
	total := wl + wf + wr
	if total <= 0 {
		wl, wf, wr, total = 1, 1, 1, 3
	}

	liquidity := liquidityScore(amount, depth)
	freshness := s.freshnessScore(buy, sell, capturedAt)
	reliability := s.reliabilityScore(buy.VenueID, sell.VenueID)

	c := (wl*liquidity + wf*freshness + wr*reliability) / total

	if s.cfg.SweetSpotEnabled && net >= s.cfg.SweetSpotMinUSD && net <= s.cfg.SweetSpotMaxUSD {
		c += s.cfg.SweetSpotBonus
	}

	return clamp01(c)
}

// liquidityScore rewards headroom between the trade size and the shallower
// venue's depth. Using the trade at full depth scores 0; ten times the
// depth in headroom saturates at 1.
func liquidityScore(amount, depth float64) float64 {
	if amount <= 0 || depth <= amount {
		return 0
	}
	return clamp01((depth - amount) / (9 * amount))
}

// freshnessScore decays linearly from 1 to 0 as the older of the two
// quotes approaches the staleness bound.
func (s *Scorer) freshnessScore(buy, sell domain.Quote, capturedAt time.Time) float64 {
	if s.cfg.MaxQuoteStaleness <= 0 {
		return 1
	}
	age := buy.Age(capturedAt)
	if sellAge := sell.Age(capturedAt); sellAge > age {
		age = sellAge
	}
	return clamp01(1 - float64(age)/float64(s.cfg.MaxQuoteStaleness))
}

func (s *Scorer) reliabilityScore(buyVenue, sellVenue string) float64 {
	if s.reliability == nil {
		return 1
	}
	failure := (s.reliability.VenueFailureRate(buyVenue) + s.reliability.VenueFailureRate(sellVenue)) / 2
	return clamp01(1 - failure)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
