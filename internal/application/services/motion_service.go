package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/court"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// MotionService serves motions and the pending approval queue. Decisions
// patch both the motion detail and the queue optimistically, so an approved
// motion leaves the queue before the server confirms.
type MotionService struct {
	store       *caching.Store
	client      *transport.Client
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	session     *session.Session
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewMotionService(store *caching.Store, client *transport.Client, coordinator *mutation.Coordinator, policy *reconcile.Policy, sess *session.Session, logger *logging.ChanneledLogger) *MotionService {
	return &MotionService{
		store:       store,
		client:      client,
		coordinator: coordinator,
		policy:      policy,
		session:     sess,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MotionService) List(ctx context.Context, filters map[string]string) ([]court.Motion, error) {
	key := caching.MotionsList(filters)
	v, err := s.store.Read(ctx, key, func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, filters)
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Motion), nil
}

// Pending returns the approval queue.
func (s *MotionService) Pending(ctx context.Context) ([]court.Motion, error) {
	v, err := s.store.Read(ctx, caching.PendingMotions(), func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, map[string]string{"status": court.MotionPending})
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Motion), nil
}

func (s *MotionService) Get(ctx context.Context, id string) (*court.Motion, error) {
	v, err := s.store.Read(ctx, caching.MotionDetail(id), func(fctx context.Context) (any, error) {
		var m court.Motion
		if err := s.client.Get(fctx, "/motions/"+url.PathEscape(id), &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*court.Motion), nil
}

func (s *MotionService) fetchList(ctx context.Context, filters map[string]string) (any, error) {
	path := "/motions"
	if len(filters) > 0 {
		q := url.Values{}
		for k, v := range filters {
			q.Set(k, v)
		}
		path += "?" + q.Encode()
	}

	var motions []court.Motion
	if err := s.client.Get(ctx, path, &motions); err != nil {
		return nil, err
	}
	return motions, nil
}

type FileMotionArgs struct {
	CaseID  string `json:"caseId" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Grounds string `json:"grounds,omitempty"`
}

// File submits a new motion. The pending queue gains it immediately.
func (s *MotionService) File(ctx context.Context, args FileMotionArgs) (*court.Motion, error) {
	pendingKey := caching.PendingMotions()
	filedBy := ""
	if user := s.session.User(); user != nil {
		filedBy = user.ID
	}
	optimistic := court.Motion{
		ID:      court.NewTempID(s.now()),
		CaseID:  args.CaseID,
		Type:    args.Type,
		Status:  court.MotionPending,
		FiledBy: filedBy,
		Grounds: args.Grounds,
		FiledAt: s.now(),
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationMotionFile,
		Args:               args,
		AffectedKeys:       []caching.Key{pendingKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationMotionFile, ""),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(pendingKey); ok && e.HasValue() {
				motions, _ := e.Value.([]court.Motion)
				out := make([]court.Motion, 0, len(motions)+1)
				out = append(out, motions...)
				store.Set(pendingKey, append(out, optimistic))
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var filed court.Motion
			if err := s.client.Post(cctx, "/motions", args, &filed); err != nil {
				return nil, err
			}
			return &filed, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			filed := result.(*court.Motion)
			if e, ok := store.Get(pendingKey); ok && e.HasValue() {
				store.Set(pendingKey, swapMotion(e.Value, optimistic.ID, *filed))
			}
			store.Set(caching.MotionDetail(filed.ID), filed)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Motion), nil
}

// Approve decides a motion in favor. The detail flips to approved and the
// motion leaves the pending queue synchronously; a failed call restores
// both.
func (s *MotionService) Approve(ctx context.Context, id string) (*court.Motion, error) {
	return s.decide(ctx, id, court.MotionApproved, reconcile.MutationMotionApprove, "/approve")
}

// Deny decides a motion against.
func (s *MotionService) Deny(ctx context.Context, id string) (*court.Motion, error) {
	return s.decide(ctx, id, court.MotionDenied, reconcile.MutationMotionDeny, "/deny")
}

func (s *MotionService) decide(ctx context.Context, id, status, mutationName, action string) (*court.Motion, error) {
	detailKey := caching.MotionDetail(id)
	pendingKey := caching.PendingMotions()
	decidedAt := s.now()
	decidedBy := ""
	if user := s.session.User(); user != nil {
		decidedBy = user.ID
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               mutationName,
		AffectedKeys:       []caching.Key{detailKey, pendingKey},
		InvalidateOnSettle: s.policy.ForMutation(mutationName, id),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(detailKey); ok && e.HasValue() {
				if m, ok := e.Value.(*court.Motion); ok {
					clone := *m
					clone.Status = status
					clone.DecidedAt = &decidedAt
					if decidedBy != "" {
						clone.DecidedBy = &decidedBy
					}
					store.Set(detailKey, &clone)
				}
			}
			if e, ok := store.Get(pendingKey); ok && e.HasValue() {
				store.Set(pendingKey, removeMotion(e.Value, id))
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var decided court.Motion
			if err := s.client.Post(cctx, "/motions/"+url.PathEscape(id)+action, nil, &decided); err != nil {
				return nil, err
			}
			return &decided, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			store.Set(detailKey, result.(*court.Motion))
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Motion), nil
}

// Refresh forces a fresh load of the pending queue.
func (s *MotionService) Refresh(ctx context.Context) error {
	_, err := s.store.Refetch(ctx, caching.PendingMotions(), func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, map[string]string{"status": court.MotionPending})
	})
	if err != nil {
		return fmt.Errorf("motion resync failed: %w", err)
	}
	return nil
}

func swapMotion(value any, tempID string, server court.Motion) []court.Motion {
	motions, _ := value.([]court.Motion)
	out := make([]court.Motion, 0, len(motions))

	present := false
	for _, m := range motions {
		if m.ID == server.ID {
			present = true
		}
	}
	for _, m := range motions {
		if m.ID == tempID {
			if present {
				continue
			}
			out = append(out, server)
			continue
		}
		out = append(out, m)
	}
	return out
}

func removeMotion(value any, id string) []court.Motion {
	motions, _ := value.([]court.Motion)
	out := make([]court.Motion, 0, len(motions))
	for _, m := range motions {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
