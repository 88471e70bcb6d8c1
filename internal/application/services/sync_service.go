package services

import (
	"context"
	"errors"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

// SyncService runs the full resync set: the collections a client must hold
// current to be usable after missed push events. It backs both the polling
// fallback and the reconnect kick.
type SyncService struct {
	cases   *CaseService
	motions *MotionService
	orders  *OrderService
	logger  *logging.ChanneledLogger
}

func NewSyncService(cases *CaseService, motions *MotionService, orders *OrderService, logger *logging.ChanneledLogger) *SyncService {
	return &SyncService{cases: cases, motions: motions, orders: orders, logger: logger}
}

// Resync refetches every collection in the set. Partial failure still
// refreshes what it can; the combined error reports everything that failed.
func (s *SyncService) Resync(ctx context.Context) error {
	start := time.Now()

	err := errors.Join(
		s.cases.Refresh(ctx),
		s.motions.Refresh(ctx),
		s.orders.Refresh(ctx),
	)
	if err != nil {
		return err
	}

	s.logger.Sync().Info("Full resync completed", "duration", time.Since(start))
	return nil
}
