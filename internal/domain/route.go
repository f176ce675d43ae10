package domain

import "fmt"

// SwapDirection says which way a hop trades the pair.
type SwapDirection string

const (
	// SwapBaseForQuote sells the base asset into the quote asset.
	SwapBaseForQuote SwapDirection = "base_for_quote"
	// SwapQuoteForBase spends the quote asset to acquire the base asset.
	SwapQuoteForBase SwapDirection = "quote_for_base"
)

// Hop is one swap leg of a route.
type Hop struct {
	VenueID   string
	Pair      Pair
	Direction SwapDirection
}

// AssetIn returns the asset this hop consumes.
func (h Hop) AssetIn() string {
	if h.Direction == SwapBaseForQuote {
		return h.Pair.Base
	}
	return h.Pair.Quote
}

// AssetOut returns the asset this hop produces.
func (h Hop) AssetOut() string {
	if h.Direction == SwapBaseForQuote {
		return h.Pair.Quote
	}
	return h.Pair.Base
}

// Route is an ordered sequence of hops that starts and ends on the same
// asset (the flash-loan asset). Two hops is the simple two-venue case;
// longer routes are multi-hop.
type Route struct {
	Hops []Hop
}

// LoopAsset returns the asset the route borrows and repays.
func (r Route) LoopAsset() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[0].AssetIn()
}

// Validate checks that the route is a closed loop in asset space: each hop
// consumes the previous hop's output, and the final output is the loop asset.
func (r Route) Validate() error {
	if len(r.Hops) < 2 {
		return fmt.Errorf("route: need at least 2 hops, got %d", len(r.Hops))
	}
	loop := r.LoopAsset()
	current := loop
	for i, hop := range r.Hops {
		if hop.AssetIn() != current {
			return fmt.Errorf("route: hop %d consumes %s but previous hop produced %s", i, hop.AssetIn(), current)
		}
		current = hop.AssetOut()
	}
	if current != loop {
		return fmt.Errorf("route: ends on %s, not loop asset %s", current, loop)
	}
	return nil
}

// String renders the route as "venueA:WETH/USDC->venueB:WETH/USDC".
func (r Route) String() string {
	s := ""
	for i, hop := range r.Hops {
		if i > 0 {
			s += "->"
		}
		s += hop.VenueID + ":" + hop.Pair.String()
	}
	return s
}
