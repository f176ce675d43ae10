package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"flasharb/internal/crypto"
	"flasharb/internal/domain"
)

// maxAPIQuoteAge bounds how old an aggregator-reported quote may be before
// the adapter refuses it as stale rather than passing it upstream.
const maxAPIQuoteAge = 10 * time.Second

// HTTPAggregator quotes a 0x-style aggregation API over HTTP. The API does
// its own routing across pools; this adapter only translates the REST
// response into the venue contract.
type HTTPAggregator struct {
	id      string
	baseURL string
	feeBps  float64
	timeout time.Duration
	client  *http.Client
	tokens  TokenRegistry
	auth    *crypto.RequestAuth // nil for unauthenticated APIs
	limiter domain.RateLimiter  // nil when no shared budget applies
}

// SetAuth enables HMAC request signing for APIs that require it.
func (a *HTTPAggregator) SetAuth(auth *crypto.RequestAuth) { a.auth = auth }

// SetRateLimiter throttles quote requests against a shared API budget.
func (a *HTTPAggregator) SetRateLimiter(limiter domain.RateLimiter) { a.limiter = limiter }

// NewHTTPAggregator creates an adapter for an aggregation API rooted at
// baseURL (the /quote endpoint is appended).
func NewHTTPAggregator(id, baseURL string, feeBps float64, timeout time.Duration, tokens TokenRegistry) *HTTPAggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPAggregator{
		id:      id,
		baseURL: baseURL,
		feeBps:  feeBps,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		tokens: tokens,
	}
}

func (a *HTTPAggregator) ID() string      { return a.id }
func (a *HTTPAggregator) FeeBps() float64 { return a.feeBps }

// quoteResponse is the subset of the API response the adapter consumes.
type quoteResponse struct {
	Price     string  `json:"price"`     // quote asset per base asset
	Liquidity float64 `json:"availableLiquidity"`
	Timestamp int64   `json:"timestamp"` // unix millis of the underlying data
}

// Quote fetches a price from the aggregation API.
func (a *HTTPAggregator) Quote(ctx context.Context, pair domain.Pair, side domain.QuoteSide, amount float64) (domain.Quote, error) {
	if amount <= 0 {
		return domain.Quote{}, fmt.Errorf("venue %s: amount must be > 0", a.id)
	}
	start := time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	tokens, err := a.tokens.Lookup(pair)
	if err != nil {
		return domain.Quote{}, err
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, "venue:"+a.id); err != nil {
			return domain.Quote{}, asUnavailable(a.id, err)
		}
	}

	q := url.Values{}
	q.Set("baseToken", tokens.BaseToken)
	q.Set("quoteToken", tokens.QuoteToken)
	q.Set("side", string(side))
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: build request: %w", a.id, err)
	}
	req.Header.Set("Accept", "application/json")
	if a.auth != nil {
		for k, v := range a.auth.Headers(http.MethodGet, req.URL.RequestURI(), "") {
			req.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.Quote{}, asUnavailable(a.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("venue %s: status %d: %w", a.id, resp.StatusCode, domain.ErrVenueUnavailable)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: decode response: %w", a.id, domain.ErrVenueUnavailable)
	}

	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, fmt.Errorf("venue %s: bad price %q: %w", a.id, body.Price, domain.ErrVenueUnavailable)
	}

	// The API reports its routing depth; refuse sizes it cannot place.
	if body.Liquidity > 0 && amount > body.Liquidity {
		return domain.Quote{}, fmt.Errorf("venue %s: amount %.6f > reported depth %.6f: %w",
			a.id, amount, body.Liquidity, domain.ErrInsufficientLiquidity)
	}

	// Refuse quotes the API itself marks as old.
	if body.Timestamp > 0 {
		dataAge := time.Since(time.UnixMilli(body.Timestamp))
		if dataAge > maxAPIQuoteAge {
			return domain.Quote{}, fmt.Errorf("venue %s: API data %s old: %w", a.id, dataAge, domain.ErrStaleData)
		}
	}

	liquidity := body.Liquidity
	if liquidity <= 0 {
		liquidity = amount
	}

	return quoteOf(a.id, pair, side, price, liquidity, start), nil
}
