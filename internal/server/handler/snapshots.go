package handler

import (
	"context"
	"log/slog"
	"net/http"

	"flasharb/internal/domain"
)

// SnapshotService defines the methods that the snapshot handler requires.
type SnapshotService interface {
	SnapshotsByPair(ctx context.Context, pair domain.Pair, opts domain.ListOpts) ([]domain.Snapshot, error)
}

// SnapshotHandler serves stored quote-snapshot history.
type SnapshotHandler struct {
	svc    SnapshotService
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler with the given service and logger.
func NewSnapshotHandler(svc SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{svc: svc, logger: logger}
}

// ListByPair returns snapshot history for one trading pair.
// GET /api/snapshots?pair=WETH/USDC&limit=50&offset=0
func (h *SnapshotHandler) ListByPair(w http.ResponseWriter, r *http.Request) {
	pair, err := domain.ParsePair(r.URL.Query().Get("pair"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing pair")
		return
	}

	snaps, err := h.svc.SnapshotsByPair(r.Context(), pair, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list snapshots failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	if snaps == nil {
		snaps = []domain.Snapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}
