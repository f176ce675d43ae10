package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"flasharb/internal/domain"
)

// ArchiveHandler lists archived execution batches from blob storage.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob reader.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// List returns archived execution batch objects under the archive prefix.
// GET /api/archives?prefix=archive/executions/2026-08&limit=100
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/executions/"
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}

	blobs, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	if len(blobs) > limit {
		blobs = blobs[:limit]
	}
	if blobs == nil {
		blobs = []domain.BlobInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": blobs})
}
