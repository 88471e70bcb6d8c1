// Package comms defines chat, notification and staff-directory entities.
package comms

import "time"

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // case_update, motion_decision, hearing_reminder, chat
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatMessage struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId,omitempty"` // ULID assigned by the sender before delivery confirmation
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
	Delivered      bool      `json:"delivered"`
}

type Conversation struct {
	ID            string       `json:"id"`
	Participants  []string     `json:"participants"`
	LastMessage   *ChatMessage `json:"lastMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	LastMessageAt *time.Time   `json:"lastMessageAt,omitempty"`
}

type StaffMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"` // judge, registrar, clerk, bailiff
	Chambers string `json:"chambers,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}
