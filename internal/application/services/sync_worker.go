package services

import (
	"context"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
)

// SyncWorker periodically replays deferred submissions. It stands in for
// the browser's background-sync retry.
type SyncWorker struct {
	gateway  *GatewayService
	interval time.Duration
	logger   *logging.ChanneledLogger
}

// NewSyncWorker creates a new sync worker with the given interval
func NewSyncWorker(gateway *GatewayService, interval time.Duration, logger *logging.ChanneledLogger) *SyncWorker {
	return &SyncWorker{
		gateway:  gateway,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sync routine, using the configured interval
func (w *SyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Gateway().Info("Sync worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Gateway().Info("Sync worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce signals every sync tag once.
func (w *SyncWorker) RunOnce(ctx context.Context) {
	if err := w.gateway.SyncAll(ctx); err != nil {
		w.logger.Gateway().Debug("Sync pass finished with pending records", "error", err.Error())
	}
}
