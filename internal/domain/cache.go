package domain

import (
	"context"
	"time"
)

// QuoteCache stores the latest quote per (venue, pair, side) for the
// status surface and cross-process consumers. Misses return ErrNotFound.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, venueID string, pair Pair, side QuoteSide) (Quote, error)
}

// LockManager provides a distributed mutual-exclusion primitive keyed by
// string. Used to serialize execution per loop asset: at most one in-flight
// flash loan per asset, even across processes. Returns ErrLockHeld when the
// lock is taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls keyed by string, shared across processes.
// The aggregator uses it to stay inside venue API budgets.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// EventBus carries pipeline events (opportunities, execution outcomes)
// between processes. Payloads are opaque bytes, JSON by convention.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
