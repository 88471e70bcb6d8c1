// Package cleanup provides the background cache retention worker.
package cleanup

import (
	"context"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

// Worker evicts cache entries idle past their retention window.
type Worker struct {
	store  *caching.Store
	config *Config
	logger *logging.ChanneledLogger
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(store *caching.Store, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Start begins the cleanup worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.Cache().Info("Cache cleanup worker started",
		"interval", w.config.CleanupInterval, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.performCleanup()
		}
	}
}

func (w *Worker) performCleanup() {
	start := time.Now()
	evicted := w.store.EvictExpired()
	duration := time.Since(start)

	if evicted > 0 {
		w.logger.Cache().Info("Cache cleanup finished", "evicted", evicted, "duration", duration)
	} else if w.config.VerboseReporting {
		stats := w.store.Stats()
		w.logger.Cache().Debug("Cache cleanup completed, nothing expired",
			"entries", stats.Entries, "stale", stats.Stale, "duration", duration)
	}
}
