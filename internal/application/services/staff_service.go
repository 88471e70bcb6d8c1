package services

import (
	"context"

	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/comms"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// StaffService serves the court staff directory. Read-only; the directory
// changes rarely and plain TTL expiry is enough.
type StaffService struct {
	store  *caching.Store
	client *transport.Client
}

func NewStaffService(store *caching.Store, client *transport.Client) *StaffService {
	return &StaffService{store: store, client: client}
}

func (s *StaffService) Directory(ctx context.Context) ([]comms.StaffMember, error) {
	v, err := s.store.Read(ctx, caching.StaffDirectory(), func(fctx context.Context) (any, error) {
		var staff []comms.StaffMember
		if err := s.client.Get(fctx, "/staff", &staff); err != nil {
			return nil, err
		}
		return staff, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]comms.StaffMember), nil
}
