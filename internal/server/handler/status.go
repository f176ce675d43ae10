package handler

import (
	"net/http"
	"time"
)

// RiskState exposes the live risk-gate state for the status endpoint.
type RiskState interface {
	BreakerOpen() bool
	DailyLossUSD() float64
}

// VenueHealth exposes per-venue rolling failure rates.
type VenueHealth interface {
	VenueFailureRates() map[string]float64
}

// StatusHandler serves the backend status (mode, risk state, venue health).
type StatusHandler struct {
	Mode      string
	risk      RiskState   // optional
	venues    VenueHealth // optional
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string) *StatusHandler {
	return &StatusHandler{Mode: mode, startedAt: time.Now().UTC()}
}

// WithRiskState sets the risk-gate source for breaker and loss reporting.
func (h *StatusHandler) WithRiskState(risk RiskState) *StatusHandler {
	h.risk = risk
	return h
}

// WithVenueHealth sets the venue failure-rate source.
func (h *StatusHandler) WithVenueHealth(venues VenueHealth) *StatusHandler {
	h.venues = venues
	return h
}

// GetStatus responds with the current run mode and pipeline health.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.risk != nil {
		resp["breaker_open"] = h.risk.BreakerOpen()
		resp["daily_loss_usd"] = h.risk.DailyLossUSD()
	}
	if h.venues != nil {
		rates := h.venues.VenueFailureRates()
		if rates == nil {
			rates = map[string]float64{}
		}
		resp["venue_failure_rates"] = rates
	}

	writeJSON(w, http.StatusOK, resp)
}
