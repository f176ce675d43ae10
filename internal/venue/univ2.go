package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/internal/domain"
)

// UniswapV2 quotes a constant-product AMM. Pricing is derived from the
// pool's live reserves, so the returned price already includes the swap fee
// and the price impact of the requested amount.
type UniswapV2 struct {
	id      string
	factory string
	feeBps  float64
	timeout time.Duration
	chain   domain.ChainClient
	tokens  TokenRegistry

	mu    sync.Mutex
	pools map[domain.Pair]poolInfo // resolved pool addresses, cached
}

type poolInfo struct {
	address      string
	baseIsToken0 bool
}

// NewUniswapV2 creates an adapter for a v2-style venue. factory is the
// venue's pair factory contract.
func NewUniswapV2(id, factory string, feeBps float64, timeout time.Duration, chain domain.ChainClient, tokens TokenRegistry) *UniswapV2 {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if feeBps <= 0 {
		feeBps = 30
	}
	return &UniswapV2{
		id:      id,
		factory: factory,
		feeBps:  feeBps,
		timeout: timeout,
		chain:   chain,
		tokens:  tokens,
		pools:   make(map[domain.Pair]poolInfo),
	}
}

func (v *UniswapV2) ID() string      { return v.id }
func (v *UniswapV2) FeeBps() float64 { return v.feeBps }

// Quote prices buying or selling `amount` base-asset units against the pool.
func (v *UniswapV2) Quote(ctx context.Context, pair domain.Pair, side domain.QuoteSide, amount float64) (domain.Quote, error) {
	if amount <= 0 {
		return domain.Quote{}, fmt.Errorf("venue %s: amount must be > 0", v.id)
	}
	start := time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	tokens, err := v.tokens.Lookup(pair)
	if err != nil {
		return domain.Quote{}, err
	}

	pool, err := v.resolvePool(ctx, pair, tokens)
	if err != nil {
		return domain.Quote{}, asUnavailable(v.id, err)
	}

	reserveBase, reserveQuote, err := v.reserves(ctx, pool, tokens)
	if err != nil {
		return domain.Quote{}, asUnavailable(v.id, err)
	}

	// The pool cannot fill a trade approaching its own depth; reject rather
	// than extrapolate a price.
	if amount >= reserveBase {
		return domain.Quote{}, fmt.Errorf("venue %s: amount %.6f >= pool depth %.6f: %w",
			v.id, amount, reserveBase, domain.ErrInsufficientLiquidity)
	}

	var price float64
	switch side {
	case domain.QuoteSideBuy:
		// Cost in quote asset to take `amount` base out of the pool.
		amountIn := getAmountIn(amount, reserveQuote, reserveBase, v.feeBps)
		if amountIn <= 0 {
			return domain.Quote{}, fmt.Errorf("venue %s: degenerate reserves: %w", v.id, domain.ErrInsufficientLiquidity)
		}
		price = amountIn / amount
	case domain.QuoteSideSell:
		// Proceeds in quote asset from selling `amount` base into the pool.
		amountOut := getAmountOut(amount, reserveBase, reserveQuote, v.feeBps)
		price = amountOut / amount
	default:
		return domain.Quote{}, fmt.Errorf("venue %s: unknown side %q", v.id, side)
	}

	return quoteOf(v.id, pair, side, price, reserveBase, start), nil
}

// resolvePool finds (and caches) the pool address and token ordering for a
// pair via the factory's getPair.
func (v *UniswapV2) resolvePool(ctx context.Context, pair domain.Pair, tokens PairTokens) (poolInfo, error) {
	v.mu.Lock()
	cached, ok := v.pools[pair]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := v2FactoryABI.Pack("getPair",
		common.HexToAddress(tokens.BaseToken),
		common.HexToAddress(tokens.QuoteToken),
	)
	if err != nil {
		return poolInfo{}, fmt.Errorf("pack getPair: %w", err)
	}
	out, err := v.chain.CallContract(ctx, v.factory, data)
	if err != nil {
		return poolInfo{}, fmt.Errorf("getPair call: %w", err)
	}
	vals, err := v2FactoryABI.Unpack("getPair", out)
	if err != nil {
		return poolInfo{}, fmt.Errorf("unpack getPair: %w", err)
	}
	addr := vals[0].(common.Address)
	if addr == (common.Address{}) {
		return poolInfo{}, fmt.Errorf("no pool for %s", pair)
	}

	// token0 is the numerically lower address; reserve ordering follows it.
	baseIsToken0 := strings.ToLower(tokens.BaseToken) < strings.ToLower(tokens.QuoteToken)

	info := poolInfo{address: addr.Hex(), baseIsToken0: baseIsToken0}
	v.mu.Lock()
	v.pools[pair] = info
	v.mu.Unlock()
	return info, nil
}

// reserves reads getReserves and returns (base, quote) depths in asset units.
func (v *UniswapV2) reserves(ctx context.Context, pool poolInfo, tokens PairTokens) (float64, float64, error) {
	data, err := v2PairABI.Pack("getReserves")
	if err != nil {
		return 0, 0, fmt.Errorf("pack getReserves: %w", err)
	}
	out, err := v.chain.CallContract(ctx, pool.address, data)
	if err != nil {
		return 0, 0, fmt.Errorf("getReserves call: %w", err)
	}
	vals, err := v2PairABI.Unpack("getReserves", out)
	if err != nil {
		return 0, 0, fmt.Errorf("unpack getReserves: %w", err)
	}
	reserve0 := vals[0].(*big.Int)
	reserve1 := vals[1].(*big.Int)

	if pool.baseIsToken0 {
		return toUnits(reserve0, tokens.BaseDecimals), toUnits(reserve1, tokens.QuoteDecimals), nil
	}
	return toUnits(reserve1, tokens.BaseDecimals), toUnits(reserve0, tokens.QuoteDecimals), nil
}

// getAmountOut is the v2 swap formula: output for a given input, fee applied
// to the input side.
func getAmountOut(amountIn, reserveIn, reserveOut, feeBps float64) float64 {
	if reserveIn <= 0 || reserveOut <= 0 {
		return 0
	}
	inWithFee := amountIn * (10_000 - feeBps) / 10_000
	return inWithFee * reserveOut / (reserveIn + inWithFee)
}

// getAmountIn is the inverse formula: input required to receive amountOut.
func getAmountIn(amountOut, reserveIn, reserveOut, feeBps float64) float64 {
	if reserveIn <= 0 || reserveOut <= amountOut {
		return 0
	}
	numerator := reserveIn * amountOut * 10_000
	denominator := (reserveOut - amountOut) * (10_000 - feeBps)
	return numerator / denominator
}
