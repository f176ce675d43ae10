package venue

import (
	"fmt"

	"flasharb/internal/config"
	"flasharb/internal/crypto"
	"flasharb/internal/domain"
)

// BuildRegistry converts configured pairs into a TokenRegistry.
func BuildRegistry(pairs []config.PairConfig) TokenRegistry {
	reg := make(TokenRegistry, len(pairs))
	for _, p := range pairs {
		reg[domain.NewPair(p.Base, p.Quote)] = PairTokens{
			BaseToken:     p.BaseToken,
			QuoteToken:    p.QuoteToken,
			BaseDecimals:  p.BaseDecimals,
			QuoteDecimals: p.QuoteDecimals,
		}
	}
	return reg
}

// Build constructs one adapter per configured venue. The chain client may be
// nil only when no on-chain venue kinds are configured; limiter is optional
// and applies to aggregator APIs only.
func Build(cfgs []config.VenueConfig, chain domain.ChainClient, tokens TokenRegistry, limiter domain.RateLimiter) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfgs))
	for _, vc := range cfgs {
		switch vc.Kind {
		case config.VenueKindUniswapV2:
			if chain == nil {
				return nil, fmt.Errorf("venue %s: kind %s needs a chain client", vc.ID, vc.Kind)
			}
			adapters = append(adapters, NewUniswapV2(vc.ID, vc.Router, vc.FeeBps, vc.QuoteTimeout.Duration, chain, tokens))
		case config.VenueKindUniswapV3:
			if chain == nil {
				return nil, fmt.Errorf("venue %s: kind %s needs a chain client", vc.ID, vc.Kind)
			}
			adapters = append(adapters, NewUniswapV3(vc.ID, vc.Router, vc.FeeTiers, vc.QuoteTimeout.Duration, chain, tokens))
		case config.VenueKindAggregator:
			agg := NewHTTPAggregator(vc.ID, vc.BaseURL, vc.FeeBps, vc.QuoteTimeout.Duration, tokens)
			if vc.APIKey != "" {
				agg.SetAuth(&crypto.RequestAuth{Key: vc.APIKey, Secret: vc.APISecret})
			}
			if limiter != nil {
				agg.SetRateLimiter(limiter)
			}
			adapters = append(adapters, agg)
		default:
			return nil, fmt.Errorf("venue %s: unknown kind %q", vc.ID, vc.Kind)
		}
	}
	return adapters, nil
}
