package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"flasharb/internal/domain"
)

// ExecutionService defines the methods that the execution handler requires.
type ExecutionService interface {
	RecentExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
	Execution(ctx context.Context, id string) (domain.ExecutionRecord, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// ExecutionHandler serves execution-history HTTP endpoints.
type ExecutionHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler with the given service and logger.
func NewExecutionHandler(svc ExecutionService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{svc: svc, logger: logger}
}

// ListRecent returns recently completed executions.
// GET /api/executions/recent?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	list, err := h.svc.RecentExecutions(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	if list == nil {
		list = []domain.ExecutionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": list})
}

// Get returns a single execution record by id.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	rec, err := h.svc.Execution(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Profit returns realized PnL summed from a given date.
// GET /api/executions/profit?since=2026-01-01
func (h *ExecutionHandler) Profit(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
			since = t
		}
	}

	totalPnL, err := h.svc.RealizedPnLSince(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: realized pnl failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute profit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":            since.Format(time.RFC3339),
		"realized_pnl_usd": totalPnL,
	})
}
