// Package reconcile maps mutations and push events to the cache key
// families they invalidate.
package reconcile

import (
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
)

// Mutation names used across the coordinator and the invalidation tables.
const (
	MutationCaseCreate       = "case:create"
	MutationCaseUpdate       = "case:update"
	MutationHearingSchedule  = "hearing:schedule"
	MutationMotionFile       = "motion:file"
	MutationMotionApprove    = "motion:approve"
	MutationMotionDeny       = "motion:deny"
	MutationOrderIssue       = "order:issue"
	MutationOrderSign        = "order:sign"
	MutationDocumentUpload   = "document:upload"
	MutationNotificationRead = "notification:read"
	MutationChatSend         = "chat:send"
	MutationChatRead         = "chat:read"
)

// Policy is a pure lookup; it owns no state beyond its tables.
type Policy struct {
	mutations map[string]func(id string) []caching.Prefix
	events    map[realtime.EventType]func(id string) []caching.Prefix
	logger    *logging.ChanneledLogger
}

func NewPolicy(logger *logging.ChanneledLogger) *Policy {
	p := &Policy{
		mutations: make(map[string]func(id string) []caching.Prefix),
		events:    make(map[realtime.EventType]func(id string) []caching.Prefix),
		logger:    logger,
	}

	p.mutations[MutationCaseCreate] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.CasesListPrefix()}
	}
	p.mutations[MutationCaseUpdate] = func(id string) []caching.Prefix {
		return []caching.Prefix{caching.CaseDetailPrefix(id), caching.CasesListPrefix()}
	}
	p.mutations[MutationHearingSchedule] = func(id string) []caching.Prefix {
		return []caching.Prefix{caching.CaseDetailPrefix(id), caching.CalendarPrefix()}
	}
	p.mutations[MutationMotionFile] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.MotionsListPrefix()}
	}
	p.mutations[MutationMotionApprove] = func(id string) []caching.Prefix {
		return []caching.Prefix{caching.MotionDetailPrefix(id), caching.MotionsListPrefix()}
	}
	p.mutations[MutationMotionDeny] = p.mutations[MutationMotionApprove]
	p.mutations[MutationOrderIssue] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.OrdersPrefix()}
	}
	p.mutations[MutationOrderSign] = p.mutations[MutationOrderIssue]
	p.mutations[MutationDocumentUpload] = func(id string) []caching.Prefix {
		return []caching.Prefix{caching.DocumentsPrefix(), caching.CaseDetailPrefix(id)}
	}
	p.mutations[MutationNotificationRead] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.NotificationsPrefix()}
	}
	p.mutations[MutationChatSend] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.ChatPrefix()}
	}
	p.mutations[MutationChatRead] = p.mutations[MutationChatSend]

	p.events[realtime.EventChatMessage] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.ChatPrefix()}
	}
	p.events[realtime.EventCaseUpdated] = func(id string) []caching.Prefix {
		if id == "" {
			return []caching.Prefix{caching.CasesPrefix(), caching.CalendarPrefix()}
		}
		return []caching.Prefix{caching.CaseDetailPrefix(id), caching.CasesListPrefix(), caching.CalendarPrefix()}
	}
	p.events[realtime.EventNotificationReceived] = func(string) []caching.Prefix {
		return []caching.Prefix{caching.NotificationsPrefix()}
	}

	return p
}

// ForMutation returns the settle-time invalidation set for a mutation. The
// id narrows detail-key families where the mutation targets one entity.
func (p *Policy) ForMutation(name, id string) []caching.Prefix {
	fn, ok := p.mutations[name]
	if !ok {
		p.logger.Sync().Warn("No invalidation entry for mutation", "mutation", name)
		return nil
	}
	return fn(id)
}

// ForEvent returns the invalidation set for an inbound push event.
func (p *Policy) ForEvent(t realtime.EventType, id string) []caching.Prefix {
	fn, ok := p.events[t]
	if !ok {
		return nil
	}
	return fn(id)
}

// Apply marks every family in the set stale.
func (p *Policy) Apply(store *caching.Store, prefixes []caching.Prefix) {
	for _, prefix := range prefixes {
		store.Invalidate(prefix)
	}
}
