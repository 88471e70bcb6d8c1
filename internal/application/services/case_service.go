package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/court"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/persistence"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
	"github.com/kadunajudiciary/courtsync-go/pkg/config"
)

// CaseService serves the case list and case details through the cache and
// keeps the durable mirror in step with every committed change to the
// unfiltered case list.
type CaseService struct {
	store       *caching.Store
	client      *transport.Client
	mirror      *persistence.Mirror
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	channel     *realtime.Channel
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewCaseService(store *caching.Store, client *transport.Client, mirror *persistence.Mirror, coordinator *mutation.Coordinator, policy *reconcile.Policy, channel *realtime.Channel, logger *logging.ChanneledLogger) *CaseService {
	s := &CaseService{
		store:       store,
		client:      client,
		mirror:      mirror,
		coordinator: coordinator,
		policy:      policy,
		channel:     channel,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}

	// Every committed change to the unfiltered list flows to the mirror, so
	// a restart reopens on the last known case set.
	store.Subscribe(caching.CasesList(nil), func(e caching.Entry) {
		cases, ok := e.Value.([]court.Case)
		if !ok {
			return
		}
		if err := mirror.PutCases(cases); err != nil {
			logger.Mirror().Warn("Failed to mirror case list", "error", err.Error())
		}
	})

	return s
}

// SeedFromMirror loads the mirrored case list into the cache as an already
// stale entry: it serves immediately but the first read revalidates against
// the server.
func (s *CaseService) SeedFromMirror() {
	cases, ok := s.mirror.Cases()
	if !ok {
		return
	}

	now := s.now()
	s.store.Restore(caching.Entry{
		Key:        caching.CasesList(nil),
		Value:      cases,
		Status:     caching.StatusSuccess,
		FetchedAt:  now.Add(-config.StaleTTL),
		StaleAfter: now,
		GCAfter:    now.Add(config.GCTTL),
	})
	s.logger.Sync().Info("Case list seeded from mirror", "cases", len(cases))
}

// List returns cases matching the filters (nil for all), cached.
func (s *CaseService) List(ctx context.Context, filters map[string]string) ([]court.Case, error) {
	key := caching.CasesList(filters)
	v, err := s.store.Read(ctx, key, func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, filters)
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Case), nil
}

// Get returns one case by its case number, cached.
func (s *CaseService) Get(ctx context.Context, id string) (*court.Case, error) {
	v, err := s.store.Read(ctx, caching.CaseDetail(id), func(fctx context.Context) (any, error) {
		var c court.Case
		if err := s.client.Get(fctx, "/cases/"+url.PathEscape(id), &c); err != nil {
			return nil, err
		}
		return &c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*court.Case), nil
}

// Calendar returns the hearing calendar, cached. Filters narrow by
// courtroom or date range, passed through to the backend.
func (s *CaseService) Calendar(ctx context.Context, filters map[string]string) ([]court.Hearing, error) {
	key := caching.Calendar(filters)
	v, err := s.store.Read(ctx, key, func(fctx context.Context) (any, error) {
		path := "/calendar"
		if len(filters) > 0 {
			q := url.Values{}
			for k, v := range filters {
				q.Set(k, v)
			}
			path += "?" + q.Encode()
		}
		var hearings []court.Hearing
		if err := s.client.Get(fctx, path, &hearings); err != nil {
			return nil, err
		}
		return hearings, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Hearing), nil
}

func (s *CaseService) fetchList(ctx context.Context, filters map[string]string) (any, error) {
	path := "/cases"
	if len(filters) > 0 {
		q := url.Values{}
		for k, v := range filters {
			q.Set(k, v)
		}
		path += "?" + q.Encode()
	}

	var server []court.Case
	if err := s.client.Get(ctx, path, &server); err != nil {
		return nil, err
	}

	// The unfiltered list reconciles against the mirror so optimistic
	// creations the server has not seen yet are not lost.
	if len(filters) == 0 {
		if local, ok := s.mirror.Cases(); ok {
			server = persistence.MergeCases(local, server)
		}
	}
	return server, nil
}

type CreateCaseArgs struct {
	Title    string        `json:"title" validate:"required"`
	Category string        `json:"category" validate:"required"`
	Parties  []court.Party `json:"parties,omitempty"`
}

// Create files a new case optimistically: the list gains an entry under a
// temporary id immediately, and the server-assigned case number replaces it
// when the call settles.
func (s *CaseService) Create(ctx context.Context, args CreateCaseArgs) (*court.Case, error) {
	listKey := caching.CasesList(nil)
	tempID := court.NewTempID(s.now())
	optimistic := court.Case{
		ID:       tempID,
		Title:    args.Title,
		Category: args.Category,
		Status:   "filed",
		Parties:  args.Parties,
		FiledAt:  s.now(),
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationCaseCreate,
		Args:               args,
		AffectedKeys:       []caching.Key{listKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationCaseCreate, ""),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				store.Set(listKey, appendCase(e.Value, optimistic))
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var created court.Case
			if err := s.client.Post(cctx, "/cases", args, &created); err != nil {
				return nil, err
			}
			return &created, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			created := result.(*court.Case)
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				store.Set(listKey, swapCase(e.Value, tempID, *created))
			}
			store.Set(caching.CaseDetail(created.ID), created)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Case), nil
}

type ScheduleHearingArgs struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	Courtroom   string    `json:"courtroom" validate:"required"`
	Purpose     string    `json:"purpose,omitempty"`
}

// ScheduleHearing sets the next hearing date on a case. The detail view
// reflects the new date before the server confirms.
func (s *CaseService) ScheduleHearing(ctx context.Context, caseID string, args ScheduleHearingArgs) (*court.Hearing, error) {
	detailKey := caching.CaseDetail(caseID)

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationHearingSchedule,
		Args:               args,
		AffectedKeys:       []caching.Key{detailKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationHearingSchedule, caseID),
		Patch: func(store *caching.Store) {
			patchCase(store, detailKey, func(c *court.Case) {
				at := args.ScheduledAt
				c.NextHearing = &at
			})
		},
		Call: func(cctx context.Context) (any, error) {
			var hearing court.Hearing
			if err := s.client.Post(cctx, "/cases/"+url.PathEscape(caseID)+"/hearings", args, &hearing); err != nil {
				return nil, err
			}
			return &hearing, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Hearing), nil
}

type UpdateCaseStatusArgs struct {
	Status string `json:"status" validate:"required,oneof=filed assigned hearing adjourned closed"`
}

// UpdateStatus transitions a case's status and announces it on the channel
// so other connected clients invalidate promptly.
func (s *CaseService) UpdateStatus(ctx context.Context, caseID, status string) (*court.Case, error) {
	args := UpdateCaseStatusArgs{Status: status}
	detailKey := caching.CaseDetail(caseID)

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationCaseUpdate,
		Args:               args,
		AffectedKeys:       []caching.Key{detailKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationCaseUpdate, caseID),
		Patch: func(store *caching.Store) {
			patchCase(store, detailKey, func(c *court.Case) {
				c.Status = status
			})
		},
		Call: func(cctx context.Context) (any, error) {
			var updated court.Case
			if err := s.client.Put(cctx, "/cases/"+url.PathEscape(caseID), args, &updated); err != nil {
				return nil, err
			}
			return &updated, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			store.Set(detailKey, result.(*court.Case))
		},
	})
	if err != nil {
		return nil, err
	}

	if emitErr := s.channel.Emit(realtime.EventCaseUpdate, map[string]string{"caseId": caseID, "status": status}); emitErr != nil {
		s.logger.Realtime().Debug("Case update announcement skipped", "error", emitErr.Error())
	}
	return result.(*court.Case), nil
}

// Refresh forces a fresh load of the unfiltered case list, superseding any
// fetch in flight.
func (s *CaseService) Refresh(ctx context.Context) error {
	_, err := s.store.Refetch(ctx, caching.CasesList(nil), func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, nil)
	})
	if err != nil {
		return fmt.Errorf("case resync failed: %w", err)
	}
	return nil
}

// patchCase rewrites a cached case detail entry through fn without mutating
// the stored value in place.
func patchCase(store *caching.Store, key caching.Key, fn func(*court.Case)) {
	e, ok := store.Get(key)
	if !ok || !e.HasValue() {
		return
	}
	c, ok := e.Value.(*court.Case)
	if !ok {
		return
	}
	clone := *c
	fn(&clone)
	store.Set(key, &clone)
}

func appendCase(value any, c court.Case) []court.Case {
	cases, _ := value.([]court.Case)
	out := make([]court.Case, 0, len(cases)+1)
	out = append(out, cases...)
	return append(out, c)
}

// swapCase replaces the entry under tempID with the server version. If the
// server version already appears (a push event landed first), the temporary
// entry is dropped so the list holds exactly one copy.
func swapCase(value any, tempID string, server court.Case) []court.Case {
	cases, _ := value.([]court.Case)
	out := make([]court.Case, 0, len(cases))

	present := false
	for _, c := range cases {
		if c.ID == server.ID {
			present = true
		}
	}
	for _, c := range cases {
		if c.ID == tempID {
			if present {
				continue
			}
			out = append(out, server)
			continue
		}
		out = append(out, c)
	}
	return out
}
