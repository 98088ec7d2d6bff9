// Package worker runs periodic background jobs for the billing service.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Publisher rebuilds and writes the billing summary.
type Publisher interface {
	Publish(ctx context.Context) error
}

// ExportWorker republishes the billing summary on an interval, so the
// exported sheet stays current even when no uploads arrive.
type ExportWorker struct {
	publisher Publisher
	interval  time.Duration
}

// NewExportWorker creates a new ExportWorker.
func NewExportWorker(publisher Publisher, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		publisher: publisher,
		interval:  interval,
	}
}

// Run starts the export worker loop. It blocks until the context is cancelled.
func (w *ExportWorker) Run(ctx context.Context) {
	slog.Info("ExportWorker: starting", "interval", w.interval)

	// Publish immediately on startup
	if err := w.publisher.Publish(ctx); err != nil {
		slog.Error("ExportWorker: initial publish failed", "error", err)
	} else {
		slog.Info("ExportWorker: initial publish completed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ExportWorker: shutting down")
			return
		case <-ticker.C:
			if err := w.publisher.Publish(ctx); err != nil {
				slog.Error("ExportWorker: publish failed", "error", err)
			} else {
				slog.Info("ExportWorker: publish completed")
			}
		}
	}
}
