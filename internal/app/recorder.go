package app

import (
	"context"
	"log/slog"

	"flasharb/internal/domain"
	"flasharb/internal/ledger"
	"flasharb/internal/notify"
	"flasharb/internal/server/ws"
)

// executionRecorder persists terminal execution records and fans them out
// to live consumers. Persistence is the only hard dependency; broadcast
// and notification failures are logged and swallowed so an unreachable
// Telegram API never blocks the coordinator.
type executionRecorder struct {
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	bus      domain.EventBus
	logger   *slog.Logger
}

// RecordExecution implements the coordinator's recorder.
func (r *executionRecorder) RecordExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	err := r.ledger.RecordExecution(ctx, rec)

	publishJSON(ctx, r.bus, ws.ChannelExecutions, rec, r.logger)

	if nErr := r.notifier.ExecutionFinished(ctx, rec); nErr != nil {
		r.logger.WarnContext(ctx, "execution notification failed",
			slog.String("id", rec.ID),
			slog.String("error", nErr.Error()),
		)
	}

	return err
}
