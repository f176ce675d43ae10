package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flasharb/internal/domain"
)

// UniswapV3 quotes a concentrated-liquidity venue through its quoter
// contract. Each configured fee tier is quoted and the best execution is
// returned, so tier selection is an adapter concern and invisible upstream.
type UniswapV3 struct {
	id       string
	quoter   string
	feeBps   float64 // taken as the fee of the best tier when quoting
	feeTiers []int64
	timeout  time.Duration
	chain    domain.ChainClient
	tokens   TokenRegistry
}

// NewUniswapV3 creates an adapter for a v3-style venue. quoter is the
// on-chain quoter contract; feeTiers are hundredths of a bip (e.g. 500,
// 3000, 10000).
func NewUniswapV3(id, quoter string, feeTiers []int64, timeout time.Duration, chain domain.ChainClient, tokens TokenRegistry) *UniswapV3 {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if len(feeTiers) == 0 {
		feeTiers = []int64{500, 3000, 10000}
	}
	return &UniswapV3{
		id:       id,
		quoter:   quoter,
		feeTiers: feeTiers,
		timeout:  timeout,
		chain:    chain,
		tokens:   tokens,
	}
}

func (v *UniswapV3) ID() string { return v.id }

// FeeBps reports the lowest configured tier; the actual fee of a given
// quote is whichever tier won, and is already embedded in the quoted price.
func (v *UniswapV3) FeeBps() float64 {
	best := v.feeTiers[0]
	for _, t := range v.feeTiers[1:] {
		if t < best {
			best = t
		}
	}
	// v3 tiers are hundredths of a bip.
	return float64(best) / 100
}

// Quote prices the trade across all configured fee tiers and returns the
// best one. A quoter revert on every tier means the requested size cannot
// be absorbed.
func (v *UniswapV3) Quote(ctx context.Context, pair domain.Pair, side domain.QuoteSide, amount float64) (domain.Quote, error) {
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

	var (
		bestPrice float64
		quoted    bool
		reverted  int
	)
	for _, tier := range v.feeTiers {
		price, err := v.quoteTier(ctx, tokens, side, amount, tier)
		if err != nil {
			if isExecutionRevert(err) {
				// Tier pool missing or size too large for its liquidity.
				reverted++
				continue
			}
			return domain.Quote{}, asUnavailable(v.id, err)
		}
		if !quoted || better(side, price, bestPrice) {
			bestPrice = price
			quoted = true
		}
	}

	if !quoted {
		if reverted > 0 {
			return domain.Quote{}, fmt.Errorf("venue %s: no tier can absorb %.6f: %w",
				v.id, amount, domain.ErrInsufficientLiquidity)
		}
		return domain.Quote{}, fmt.Errorf("venue %s: no fee tiers quoted: %w", v.id, domain.ErrVenueUnavailable)
	}

	liquidity, err := v.estimateDepth(ctx, tokens, side, amount, bestPrice)
	if err != nil {
		// Depth probing is best-effort; the successful quote itself proves
		// at least `amount` of depth.
		liquidity = amount
	}

	return quoteOf(v.id, pair, side, bestPrice, liquidity, start), nil
}

// quoteTier asks the quoter for one tier and converts the result to a
// quote-asset-per-base price. Sells are exact-input (base in, quote out);
// buys are exact-output (quote in, `amount` base out), so fee and impact
// raise the buy price and lower the sell price as they do on-chain.
func (v *UniswapV3) quoteTier(ctx context.Context, tokens PairTokens, side domain.QuoteSide, amount float64, tier int64) (float64, error) {
	amountBase := toRaw(amount, tokens.BaseDecimals)

	var (
		data []byte
		err  error
	)
	method := "quoteExactInputSingle"
	if side == domain.QuoteSideBuy {
		method = "quoteExactOutputSingle"
		data, err = v3QuoterABI.Pack(method,
			common.HexToAddress(tokens.QuoteToken),
			common.HexToAddress(tokens.BaseToken),
			big.NewInt(tier),
			amountBase,
			big.NewInt(0),
		)
	} else {
		data, err = v3QuoterABI.Pack(method,
			common.HexToAddress(tokens.BaseToken),
			common.HexToAddress(tokens.QuoteToken),
			big.NewInt(tier),
			amountBase,
			big.NewInt(0),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := v.chain.CallContract(ctx, v.quoter, data)
	if err != nil {
		return 0, err
	}
	vals, err := v3QuoterABI.Unpack(method, out)
	if err != nil {
		return 0, fmt.Errorf("unpack %s: %w", method, err)
	}
	quoteAmount := toUnits(vals[0].(*big.Int), tokens.QuoteDecimals)
	if quoteAmount <= 0 {
		return 0, fmt.Errorf("zero quote amount")
	}

	// Both directions reduce to quote-asset units per base-asset unit.
	return quoteAmount / amount, nil
}

// estimateDepth probes a larger size to bound the venue's usable depth.
// The reported liquidity is the largest probed size that still quotes
// within an acceptable impact of the reference price.
func (v *UniswapV3) estimateDepth(ctx context.Context, tokens PairTokens, side domain.QuoteSide, amount, refPrice float64) (float64, error) {
	const probeScale = 8
	const maxImpactBps = 200

	probe := amount * probeScale
	var probePrice float64
	var err error
	for _, tier := range v.feeTiers {
		probePrice, err = v.quoteTier(ctx, tokens, side, probe, tier)
		if err == nil {
			break
		}
	}
	if err != nil {
		return amount, err
	}

	impactBps := (probePrice - refPrice) / refPrice * 10_000
	if side == domain.QuoteSideSell {
		impactBps = -impactBps
	}
	if impactBps <= maxImpactBps {
		return probe, nil
	}
	// Linear back-off from the probe toward the known-good amount.
	depth := amount + (probe-amount)*(maxImpactBps/impactBps)
	if depth < amount {
		depth = amount
	}
	return depth, nil
}

// better reports whether candidate beats current for the given side: buys
// want the lowest cost, sells the highest proceeds.
func better(side domain.QuoteSide, candidate, current float64) bool {
	if side == domain.QuoteSideBuy {
		return candidate < current
	}
	return candidate > current
}

// isExecutionRevert detects quoter reverts, which v3 uses to signal
// unquotable sizes rather than returning an error code.
func isExecutionRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}
