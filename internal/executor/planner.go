package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"flasharb/internal/domain"
	"flasharb/internal/venue"
)

// flashArbABI is the entry point of the flash-loan arbitrage contract. The
// contract draws the loan, walks the hops, repays principal plus fee, and
// reverts the whole transaction unless the final balance covers minReturn.
var flashArbABI = mustABI(`[
	{"name":"executeArbitrage","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"minReturn","type":"uint256"},
		{"name":"hops","type":"tuple[]","components":[
			{"name":"router","type":"address"},
			{"name":"tokenIn","type":"address"},
			{"name":"tokenOut","type":"address"},
			{"name":"fee","type":"uint24"}]}],
	 "outputs":[]}
]`)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("executor: parse abi: %v", err))
	}
	return parsed
}

// contractHop mirrors the contract's hop tuple.
type contractHop struct {
	Router   common.Address `abi:"router"`
	TokenIn  common.Address `abi:"tokenIn"`
	TokenOut common.Address `abi:"tokenOut"`
	Fee      *big.Int       `abi:"fee"`
}

// VenueRoute maps a venue ID to its on-chain router and fee tier for
// calldata encoding.
type VenueRoute struct {
	Router  string
	FeeTier int64
}

// Planner turns an approved opportunity into a ready-to-sign transaction.
type Planner struct {
	contract         common.Address
	venues           map[string]VenueRoute
	tokens           venue.TokenRegistry
	chain            domain.ChainClient
	signerAddr       string
	flashLoanFeeBps  float64
	minReturnScale   float64
	fallbackGasLimit uint64
}

// NewPlanner creates a Planner targeting the flash-loan contract address.
func NewPlanner(
	contract string,
	venues map[string]VenueRoute,
	tokens venue.TokenRegistry,
	chain domain.ChainClient,
	signerAddr string,
	flashLoanFeeBps, minReturnScale float64,
	fallbackGasLimit uint64,
) *Planner {
	return &Planner{
		contract:         common.HexToAddress(contract),
		venues:           venues,
		tokens:           tokens,
		chain:            chain,
		signerAddr:       signerAddr,
		flashLoanFeeBps:  flashLoanFeeBps,
		minReturnScale:   minReturnScale,
		fallbackGasLimit: fallbackGasLimit,
	}
}

// Plan encodes the opportunity's route into calldata and resolves gas and
// nonce. Called once per submission attempt so each retry carries a fresh
// nonce and gas price.
func (p *Planner) Plan(ctx context.Context, opp domain.Opportunity) (domain.TxRequest, error) {
	tokens, err := p.tokens.Lookup(opp.Pair)
	if err != nil {
		return domain.TxRequest{}, err
	}

	hops, err := p.encodeHops(opp.Route)
	if err != nil {
		return domain.TxRequest{}, err
	}

	// The loan is drawn in the loop asset: the quote-side notional that
	// funds the first hop.
	principalQuote := opp.Principal
	principal := toRaw(principalQuote, tokens.QuoteDecimals)

	// The contract reverts unless the final balance covers repayment plus
	// a scaled share of the modeled profit.
	expected := principalQuote*(1+p.flashLoanFeeBps/10_000) + opp.NetProfit*p.minReturnScale
	minReturn := toRaw(expected, tokens.QuoteDecimals)

	data, err := flashArbABI.Pack("executeArbitrage",
		common.HexToAddress(tokens.QuoteToken), principal, minReturn, hops)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("executor: pack calldata: %w", err)
	}

	req := domain.TxRequest{
		To:       p.contract.Hex(),
		Data:     data,
		ValueWei: big.NewInt(0),
	}

	gas, err := p.chain.EstimateGas(ctx, req)
	if err != nil {
		// Estimation failing on a profitable route usually means state
		// moved; fall back to the static limit and let minReturn decide.
		gas = p.fallbackGasLimit
	}
	req.GasLimit = gas

	price, err := p.chain.SuggestGasPrice(ctx)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("executor: gas price: %w", err)
	}
	req.GasPriceWei = price

	nonce, err := p.chain.PendingNonce(ctx, p.signerAddr)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("executor: pending nonce: %w", err)
	}
	req.Nonce = nonce

	return req, nil
}

func (p *Planner) encodeHops(route domain.Route) ([]contractHop, error) {
	hops := make([]contractHop, 0, len(route.Hops))
	for _, h := range route.Hops {
		vr, ok := p.venues[h.VenueID]
		if !ok {
			return nil, fmt.Errorf("executor: venue %s has no on-chain route", h.VenueID)
		}
		tokens, err := p.tokens.Lookup(h.Pair)
		if err != nil {
			return nil, err
		}
		tokenIn, tokenOut := tokens.QuoteToken, tokens.BaseToken
		if h.Direction == domain.SwapBaseForQuote {
			tokenIn, tokenOut = tokens.BaseToken, tokens.QuoteToken
		}
		hops = append(hops, contractHop{
			Router:   common.HexToAddress(vr.Router),
			TokenIn:  common.HexToAddress(tokenIn),
			TokenOut: common.HexToAddress(tokenOut),
			Fee:      big.NewInt(vr.FeeTier),
		})
	}
	return hops, nil
}

// toRaw converts a float amount in asset units to raw integer units.
func toRaw(amount float64, decimals int) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f := new(big.Float).Mul(big.NewFloat(amount), scale)
	out, _ := f.Int(nil)
	return out
}
