package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoVenueLoop() Route {
	pair := NewPair("WETH", "USDC")
	return Route{Hops: []Hop{
		{VenueID: "alpha", Pair: pair, Direction: SwapQuoteForBase},
		{VenueID: "beta", Pair: pair, Direction: SwapBaseForQuote},
	}}
}

func TestHopAssetFlow(t *testing.T) {
	pair := NewPair("WETH", "USDC")

	buy := Hop{VenueID: "alpha", Pair: pair, Direction: SwapQuoteForBase}
	assert.Equal(t, "USDC", buy.AssetIn())
	assert.Equal(t, "WETH", buy.AssetOut())

	sell := Hop{VenueID: "beta", Pair: pair, Direction: SwapBaseForQuote}
	assert.Equal(t, "WETH", sell.AssetIn())
	assert.Equal(t, "USDC", sell.AssetOut())
}

func TestRouteValidateClosedLoop(t *testing.T) {
	route := twoVenueLoop()
	require.NoError(t, route.Validate())
	assert.Equal(t, "USDC", route.LoopAsset())
}

func TestRouteValidateRejectsShortRoute(t *testing.T) {
	route := Route{Hops: twoVenueLoop().Hops[:1]}
	assert.ErrorContains(t, route.Validate(), "need at least 2 hops")
}

func TestRouteValidateRejectsBrokenChain(t *testing.T) {
	pair := NewPair("WETH", "USDC")
	route := Route{Hops: []Hop{
		{VenueID: "alpha", Pair: pair, Direction: SwapQuoteForBase},
		{VenueID: "beta", Pair: pair, Direction: SwapQuoteForBase},
	}}
	assert.ErrorContains(t, route.Validate(), "hop 1 consumes USDC but previous hop produced WETH")
}

func TestRouteValidateRejectsOpenLoop(t *testing.T) {
	weth := NewPair("WETH", "USDC")
	dai := NewPair("WETH", "DAI")
	route := Route{Hops: []Hop{
		{VenueID: "alpha", Pair: weth, Direction: SwapQuoteForBase},
		{VenueID: "beta", Pair: dai, Direction: SwapBaseForQuote},
	}}
	assert.ErrorContains(t, route.Validate(), "ends on DAI, not loop asset USDC")
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "alpha:WETH/USDC->beta:WETH/USDC", twoVenueLoop().String())
}
