package ledger

import "sync"

// reliabilityWindow is how many recent quote outcomes are kept per venue.
const reliabilityWindow = 50

// reliabilityTracker keeps a ring of recent per-venue quote outcomes in
// memory. It backs the scorer's reliability term and the status surface;
// it is deliberately not persisted, a restart starts every venue clean.
type reliabilityTracker struct {
	mu     sync.Mutex
	venues map[string]*outcomeRing
}

type outcomeRing struct {
	outcomes [reliabilityWindow]bool
	next     int
	filled   int
}

func newReliabilityTracker() *reliabilityTracker {
	return &reliabilityTracker{venues: make(map[string]*outcomeRing)}
}

func (t *reliabilityTracker) record(venueID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring, exists := t.venues[venueID]
	if !exists {
		ring = &outcomeRing{}
		t.venues[venueID] = ring
	}
	ring.outcomes[ring.next] = ok
	ring.next = (ring.next + 1) % reliabilityWindow
	if ring.filled < reliabilityWindow {
		ring.filled++
	}
}

// failureRate returns the fraction of failed outcomes in the window.
// Unknown venues score 0: no evidence is not negative evidence.
func (t *reliabilityTracker) failureRate(venueID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring, exists := t.venues[venueID]
	if !exists || ring.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < ring.filled; i++ {
		if !ring.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(ring.filled)
}

// rates returns a copy of every tracked venue's failure rate.
func (t *reliabilityTracker) rates() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]float64, len(t.venues))
	for id, ring := range t.venues {
		if ring.filled == 0 {
			out[id] = 0
			continue
		}
		failures := 0
		for i := 0; i < ring.filled; i++ {
			if !ring.outcomes[i] {
				failures++
			}
		}
		out[id] = float64(failures) / float64(ring.filled)
	}
	return out
}
