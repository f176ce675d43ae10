// Package domain defines the core types shared across the arbitrage
// pipeline: pairs, quotes, snapshots, routes, opportunities, execution
// records, and the capability interfaces the pipeline consumes.
package domain

import (
	"fmt"
	"strings"
)

// Pair is an ordered (base, quote) asset tuple. It is immutable and usable
// as a map key.
type Pair struct {
	Base  string
	Quote string
}

// NewPair builds a Pair from base and quote asset symbols.
func NewPair(base, quote string) Pair {
	return Pair{Base: base, Quote: quote}
}

// String returns the canonical "BASE/QUOTE" form.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Reversed returns the pair with base and quote swapped.
func (p Pair) Reversed() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// ParsePair parses the canonical "BASE/QUOTE" form.
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return Pair{}, fmt.Errorf("domain: malformed pair %q", s)
	}
	return Pair{Base: base, Quote: quote}, nil
}
