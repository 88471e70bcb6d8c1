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

// OrderService serves court orders: issuing drafts and signing them.
type OrderService struct {
	store       *caching.Store
	client      *transport.Client
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	session     *session.Session
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewOrderService(store *caching.Store, client *transport.Client, coordinator *mutation.Coordinator, policy *reconcile.Policy, sess *session.Session, logger *logging.ChanneledLogger) *OrderService {
	return &OrderService{
		store:       store,
		client:      client,
		coordinator: coordinator,
		policy:      policy,
		session:     sess,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) List(ctx context.Context, filters map[string]string) ([]court.Order, error) {
	key := caching.OrdersList(filters)
	v, err := s.store.Read(ctx, key, func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, filters)
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Order), nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*court.Order, error) {
	v, err := s.store.Read(ctx, caching.OrderDetail(id), func(fctx context.Context) (any, error) {
		var o court.Order
		if err := s.client.Get(fctx, "/orders/"+url.PathEscape(id), &o); err != nil {
			return nil, err
		}
		return &o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*court.Order), nil
}

func (s *OrderService) fetchList(ctx context.Context, filters map[string]string) (any, error) {
	path := "/orders"
	if len(filters) > 0 {
		q := url.Values{}
		for k, v := range filters {
			q.Set(k, v)
		}
		path += "?" + q.Encode()
	}

	var orders []court.Order
	if err := s.client.Get(ctx, path, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type IssueOrderArgs struct {
	CaseID string `json:"caseId" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Body   string `json:"body" validate:"required"`
}

// Issue drafts a new order against a case. The order list gains it under a
// temporary id until the server assigns one.
func (s *OrderService) Issue(ctx context.Context, args IssueOrderArgs) (*court.Order, error) {
	listKey := caching.OrdersList(nil)
	optimistic := court.Order{
		ID:       court.NewTempID(s.now()),
		CaseID:   args.CaseID,
		Title:    args.Title,
		Body:     args.Body,
		IssuedAt: s.now(),
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationOrderIssue,
		Args:               args,
		AffectedKeys:       []caching.Key{listKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationOrderIssue, ""),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				orders, _ := e.Value.([]court.Order)
				out := make([]court.Order, 0, len(orders)+1)
				out = append(out, orders...)
				store.Set(listKey, append(out, optimistic))
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var issued court.Order
			if err := s.client.Post(cctx, "/orders", args, &issued); err != nil {
				return nil, err
			}
			return &issued, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			issued := result.(*court.Order)
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				store.Set(listKey, swapOrder(e.Value, optimistic.ID, *issued))
			}
			store.Set(caching.OrderDetail(issued.ID), issued)
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Order), nil
}

// Sign records the sitting judge's signature on an order.
func (s *OrderService) Sign(ctx context.Context, id string) (*court.Order, error) {
	detailKey := caching.OrderDetail(id)
	signedAt := s.now()
	signedBy := ""
	if user := s.session.User(); user != nil {
		signedBy = user.ID
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationOrderSign,
		AffectedKeys:       []caching.Key{detailKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationOrderSign, id),
		Patch: func(store *caching.Store) {
			e, ok := store.Get(detailKey)
			if !ok || !e.HasValue() {
				return
			}
			if o, ok := e.Value.(*court.Order); ok {
				clone := *o
				clone.SignedAt = &signedAt
				if signedBy != "" {
					clone.SignedBy = &signedBy
				}
				store.Set(detailKey, &clone)
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var signed court.Order
			if err := s.client.Post(cctx, "/orders/"+url.PathEscape(id)+"/sign", nil, &signed); err != nil {
				return nil, err
			}
			return &signed, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			store.Set(detailKey, result.(*court.Order))
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Order), nil
}

// Refresh forces a fresh load of the order list.
func (s *OrderService) Refresh(ctx context.Context) error {
	_, err := s.store.Refetch(ctx, caching.OrdersList(nil), func(fctx context.Context) (any, error) {
		return s.fetchList(fctx, nil)
	})
	if err != nil {
		return fmt.Errorf("order resync failed: %w", err)
	}
	return nil
}

func swapOrder(value any, tempID string, server court.Order) []court.Order {
	orders, _ := value.([]court.Order)
	out := make([]court.Order, 0, len(orders))

	present := false
	for _, o := range orders {
		if o.ID == server.ID {
			present = true
		}
	}
	for _, o := range orders {
		if o.ID == tempID {
			if present {
				continue
			}
			out = append(out, server)
			continue
		}
		out = append(out, o)
	}
	return out
}
