package services

import (
	"encoding/json"

	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
)

// EventDispatcher routes inbound push events: direct cache application
// where a service can use the payload, plus the policy's invalidation so a
// stale or partial payload still converges on the next read.
type EventDispatcher struct {
	store         *caching.Store
	policy        *reconcile.Policy
	chat          *ChatService
	notifications *NotificationService
	logger        *logging.ChanneledLogger
}

func NewEventDispatcher(store *caching.Store, policy *reconcile.Policy, chat *ChatService, notifications *NotificationService, logger *logging.ChanneledLogger) *EventDispatcher {
	return &EventDispatcher{
		store:         store,
		policy:        policy,
		chat:          chat,
		notifications: notifications,
		logger:        logger,
	}
}

// Dispatch is registered as the channel's event handler. It runs on the
// read loop goroutine, one event at a time.
func (d *EventDispatcher) Dispatch(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventChatMessage:
		d.chat.HandleInbound(ev)
	case realtime.EventNotificationReceived:
		d.notifications.HandleInbound(ev)
	case realtime.EventCaseUpdated:
		// No direct application; the payload may be a bare hint.
	case realtime.EventAuthenticate:
		d.logger.Realtime().Debug("Authentication acknowledged")
		return
	default:
		d.logger.Realtime().Debug("Unhandled event", "event", string(ev.Type))
		return
	}

	d.policy.Apply(d.store, d.policy.ForEvent(ev.Type, eventEntityID(ev)))
}

// eventEntityID pulls the target entity id out of an event payload, when
// the payload carries one.
func eventEntityID(ev realtime.Event) string {
	if len(ev.Data) == 0 {
		return ""
	}
	var payload struct {
		CaseID string `json:"caseId"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return ""
	}
	if payload.CaseID != "" {
		return payload.CaseID
	}
	return payload.ID
}
