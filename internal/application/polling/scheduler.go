// Package polling provides the fixed-interval resync fallback for missed
// push events.
package polling

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

// Resyncer refetches the full resync set (cases, motions, orders).
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Scheduler ticks the resync set while a session is active. It is a
// degraded-mode fallback: ticks are skipped while the realtime channel is
// connected, and an in-flight resync suppresses the next tick rather than
// stacking.
type Scheduler struct {
	interval  time.Duration
	resyncer  Resyncer
	active    func() bool
	connected func() bool
	inFlight  atomic.Bool
	logger    *logging.ChanneledLogger
}

func NewScheduler(interval time.Duration, resyncer Resyncer, active, connected func() bool, logger *logging.ChanneledLogger) *Scheduler {
	return &Scheduler{
		interval:  interval,
		resyncer:  resyncer,
		active:    active,
		connected: connected,
		logger:    logger,
	}
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Poll().Info("Polling scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Poll().Info("Polling scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.active() {
		return
	}
	if s.connected() {
		s.logger.Poll().Debug("Tick skipped, realtime channel connected")
		return
	}
	s.run(ctx, "tick")
}

// Kick triggers one immediate resync, subject to the same overlap guard.
// Used on reconnect transitions.
func (s *Scheduler) Kick(ctx context.Context) {
	if !s.active() {
		return
	}
	s.run(ctx, "kick")
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Poll().Debug("Resync still in flight, tick skipped", "reason", reason)
		return
	}

	go func() {
		defer s.inFlight.Store(false)

		start := time.Now()
		if err := s.resyncer.Resync(ctx); err != nil {
			s.logger.Poll().Warn("Resync failed", "reason", reason, "error", err.Error())
			return
		}
		s.logger.Poll().Debug("Resync completed", "reason", reason, "duration", time.Since(start))
	}()
}
