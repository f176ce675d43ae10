package domain

import "errors"

var (
	// Venue data errors. Recovered locally by the aggregator: the affected
	// venue is excluded from the snapshot, never propagated as fatal.
	ErrVenueUnavailable      = errors.New("venue unavailable")
	ErrStaleData             = errors.New("stale venue data")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrSigningFailed = errors.New("signing failed")
)
