package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"flasharb/internal/domain"
)

// quoteTTL expires cached quotes well past any sane staleness bound so
// dead venues age out of Redis on their own.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote
// lives at "quote:{venue}:{pair}:{side}" with price, liquidity, latency,
// and capture-time fields.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venueID string, pair domain.Pair, side domain.QuoteSide) string {
	return "quote:" + venueID + ":" + pair.String() + ":" + string(side)
}

// SetQuote stores the latest quote for its (venue, pair, side) slot.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.VenueID, q.Pair, q.Side)
	fields := map[string]interface{}{
		"price":      strconv.FormatFloat(q.Price, 'f', -1, 64),
		"liquidity":  strconv.FormatFloat(q.Liquidity, 'f', -1, 64),
		"latency_ms": strconv.FormatInt(q.LatencyMs, 10),
		"ts":         strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a (venue, pair, side) slot.
// Returns domain.ErrNotFound when the slot is empty or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venueID string, pair domain.Pair, side domain.QuoteSide) (domain.Quote, error) {
	key := quoteKey(venueID, pair, side)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	q := domain.Quote{VenueID: venueID, Pair: pair, Side: side}

	if q.Price, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote price %s: %w", key, err)
	}
	if q.Liquidity, err = strconv.ParseFloat(vals["liquidity"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote liquidity %s: %w", key, err)
	}
	if q.LatencyMs, err = strconv.ParseInt(vals["latency_ms"], 10, 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote latency %s: %w", key, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote ts %s: %w", key, err)
	}
	q.Timestamp = time.Unix(0, tsNano).UTC()

	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
