package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/comms"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// NotificationService serves the notification feed and unread counter.
// Inbound push notifications land in the cache without a network round trip.
type NotificationService struct {
	store       *caching.Store
	client      *transport.Client
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	channel     *realtime.Channel
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewNotificationService(store *caching.Store, client *transport.Client, coordinator *mutation.Coordinator, policy *reconcile.Policy, channel *realtime.Channel, logger *logging.ChanneledLogger) *NotificationService {
	return &NotificationService{
		store:       store,
		client:      client,
		coordinator: coordinator,
		policy:      policy,
		channel:     channel,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *NotificationService) List(ctx context.Context) ([]comms.Notification, error) {
	v, err := s.store.Read(ctx, caching.NotificationsList(), func(fctx context.Context) (any, error) {
		var items []comms.Notification
		if err := s.client.Get(fctx, "/notifications", &items); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]comms.Notification), nil
}

// UnreadCount returns the number of unread notifications, cached separately
// from the feed so the badge stays cheap to read.
func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	v, err := s.store.Read(ctx, caching.NotificationsUnread(), func(fctx context.Context) (any, error) {
		var payload struct {
			Count int `json:"count"`
		}
		if err := s.client.Get(fctx, "/notifications/unread", &payload); err != nil {
			return nil, err
		}
		return payload.Count, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// MarkRead flags one notification read. The feed and the counter both flip
// optimistically.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	listKey := caching.NotificationsList()
	unreadKey := caching.NotificationsUnread()

	_, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationNotificationRead,
		AffectedKeys:       []caching.Key{listKey, unreadKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationNotificationRead, id),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				items, _ := e.Value.([]comms.Notification)
				out := make([]comms.Notification, len(items))
				flipped := false
				for i, n := range items {
					if n.ID == id && !n.Read {
						n.Read = true
						flipped = true
					}
					out[i] = n
				}
				store.Set(listKey, out)
				if flipped {
					decrementUnread(store, unreadKey)
				}
			}
		},
		Call: func(cctx context.Context) (any, error) {
			return nil, s.client.Post(cctx, "/notifications/"+id+"/read", nil, nil)
		},
	})
	return err
}

type SendNotificationArgs struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Body        string `json:"body,omitempty"`
}

// Send pushes a notification to another staff member over the channel.
func (s *NotificationService) Send(args SendNotificationArgs) error {
	return s.channel.Emit(realtime.EventNotificationSend, args)
}

// HandleInbound applies a pushed notification to the cache: the feed gains
// it and the unread counter ticks up. Malformed payloads fall back to the
// policy-level invalidation done by the dispatcher.
func (s *NotificationService) HandleInbound(ev realtime.Event) {
	var n comms.Notification
	if err := json.Unmarshal(ev.Data, &n); err != nil || n.ID == "" {
		s.logger.Sync().Warn("Unusable notification payload, relying on invalidation")
		return
	}

	listKey := caching.NotificationsList()
	if e, ok := s.store.Get(listKey); ok && e.HasValue() {
		items, _ := e.Value.([]comms.Notification)
		for _, existing := range items {
			if existing.ID == n.ID {
				return
			}
		}
		out := make([]comms.Notification, 0, len(items)+1)
		out = append(out, n)
		s.store.Set(listKey, append(out, items...))
	}

	unreadKey := caching.NotificationsUnread()
	if e, ok := s.store.Get(unreadKey); ok && e.HasValue() {
		if count, ok := e.Value.(int); ok {
			s.store.Set(unreadKey, count+1)
		}
	}
}

func decrementUnread(store *caching.Store, key caching.Key) {
	e, ok := store.Get(key)
	if !ok || !e.HasValue() {
		return
	}
	count, ok := e.Value.(int)
	if !ok || count <= 0 {
		return
	}
	store.Set(key, count-1)
}
