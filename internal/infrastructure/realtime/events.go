// Package realtime maintains the duplex push channel to the backend.
package realtime

import "encoding/json"

// EventType names a wire event on the realtime channel.
type EventType string

// Outbound events.
const (
	EventAuthenticate     EventType = "authenticate"
	EventJoinCase         EventType = "join:case"
	EventLeaveCase        EventType = "leave:case"
	EventChatSend         EventType = "chat:send"
	EventChatRead         EventType = "chat:read"
	EventNotificationSend EventType = "notification:send"
	EventCaseUpdate       EventType = "case:update"
)

// Inbound events consumed by the reconciliation policy.
const (
	EventChatMessage          EventType = "chat:message"
	EventCaseUpdated          EventType = "case:updated"
	EventNotificationReceived EventType = "notification:received"
)

// Event is one frame on the wire.
type Event struct {
	Type EventType       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals a payload into an Event frame.
func NewEvent(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: raw}, nil
}
