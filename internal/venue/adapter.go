// Package venue implements the VenueAdapter capability: stateless price
// quoting against concrete liquidity venues. Adapters are interchangeable;
// the aggregator and scorer only see the Adapter interface.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"flasharb/internal/domain"
)

// Adapter quotes a price and available liquidity for a pair and amount.
// Implementations are pure queries: no side effects beyond the read call.
//
// Failure contract:
//   - transport error or per-call timeout  -> domain.ErrVenueUnavailable
//   - amount above reported depth         -> domain.ErrInsufficientLiquidity
//   - venue-reported data too old         -> domain.ErrStaleData
//
// An adapter never returns a fabricated or extrapolated price.
type Adapter interface {
	ID() string
	FeeBps() float64
	Quote(ctx context.Context, pair domain.Pair, side domain.QuoteSide, amount float64) (domain.Quote, error)
}

// PairTokens carries the on-chain identity of a tracked pair for adapters
// that read contract state.
type PairTokens struct {
	BaseToken     string
	QuoteToken    string
	BaseDecimals  int
	QuoteDecimals int
}

// TokenRegistry maps tracked pairs to their token metadata.
type TokenRegistry map[domain.Pair]PairTokens

// Lookup returns the token metadata for a pair.
func (r TokenRegistry) Lookup(pair domain.Pair) (PairTokens, error) {
	t, ok := r[pair]
	if !ok {
		return PairTokens{}, fmt.Errorf("venue: pair %s not in token registry", pair)
	}
	return t, nil
}

// quoteOf assembles a domain.Quote with latency measured from start.
func quoteOf(venueID string, pair domain.Pair, side domain.QuoteSide, price, liquidity float64, start time.Time) domain.Quote {
	now := time.Now().UTC()
	return domain.Quote{
		VenueID:   venueID,
		Pair:      pair,
		Side:      side,
		Price:     price,
		Liquidity: liquidity,
		Timestamp: now,
		LatencyMs: now.Sub(start).Milliseconds(),
	}
}

// asUnavailable maps transport and deadline errors onto the venue error
// taxonomy so callers never see raw RPC failures.
func asUnavailable(venueID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("venue %s: timed out: %w", venueID, domain.ErrVenueUnavailable)
	}
	return fmt.Errorf("venue %s: %v: %w", venueID, err, domain.ErrVenueUnavailable)
}

// toUnits converts a raw on-chain integer amount to asset units.
func toUnits(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

// toRaw converts an asset-unit amount to a raw on-chain integer.
func toRaw(amount float64, decimals int) *big.Int {
	f := new(big.Float).Mul(
		new(big.Float).SetFloat64(amount),
		new(big.Float).SetFloat64(math.Pow10(decimals)),
	)
	out, _ := f.Int(nil)
	return out
}
