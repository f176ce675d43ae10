package executor

import (
	"sync"
	"time"
)

// Dedup prevents an opportunity from being executed more than once within
// a configurable time-to-live window. The scorer re-emits deterministic
// IDs when upstream quotes have not moved, so the coordinator must treat a
// repeated ID as already handled. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // opportunity ID -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that considers an ID a duplicate if it has been
// seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the ID has been seen within the TTL window.
// If the ID has not been seen (or has expired), it is recorded and false
// is returned.
func (d *Dedup) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[id]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[id] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. Called
// periodically by the coordinator to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
