package ledger

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLedger() *Ledger {
	return New(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVenueFailureRateUnknownVenueIsZero(t *testing.T) {
	l := testLedger()
	assert.Zero(t, l.VenueFailureRate("alpha"))
}

func TestVenueFailureRateFraction(t *testing.T) {
	l := testLedger()
	l.RecordVenueResult("alpha", true)
	l.RecordVenueResult("alpha", true)
	l.RecordVenueResult("alpha", false)
	l.RecordVenueResult("alpha", false)

	assert.InDelta(t, 0.5, l.VenueFailureRate("alpha"), 1e-9)
}

func TestVenueFailureRateWindowEvictsOldOutcomes(t *testing.T) {
	l := testLedger()
	for i := 0; i < reliabilityWindow; i++ {
		l.RecordVenueResult("alpha", false)
	}
	assert.InDelta(t, 1.0, l.VenueFailureRate("alpha"), 1e-9)

	// A full window of successes overwrites every failure.
	for i := 0; i < reliabilityWindow; i++ {
		l.RecordVenueResult("alpha", true)
	}
	assert.Zero(t, l.VenueFailureRate("alpha"))
}

func TestVenueFailureRatesPerVenue(t *testing.T) {
	l := testLedger()
	l.RecordVenueResult("alpha", true)
	l.RecordVenueResult("beta", false)

	rates := l.VenueFailureRates()
	assert.InDelta(t, 0.0, rates["alpha"], 1e-9)
	assert.InDelta(t, 1.0, rates["beta"], 1e-9)
	assert.Len(t, rates, 2)
}
