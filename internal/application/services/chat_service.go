package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/comms"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/security"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// ChatService runs staff chat over the realtime channel. Sends are
// optimistic like any other mutation, but the network step is a channel
// emit rather than an HTTP call: a disconnected channel fails the send and
// rolls the optimistic message back.
type ChatService struct {
	store       *caching.Store
	client      *transport.Client
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	channel     *realtime.Channel
	session     *session.Session
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewChatService(store *caching.Store, client *transport.Client, coordinator *mutation.Coordinator, policy *reconcile.Policy, channel *realtime.Channel, sess *session.Session, logger *logging.ChanneledLogger) *ChatService {
	return &ChatService{
		store:       store,
		client:      client,
		coordinator: coordinator,
		policy:      policy,
		channel:     channel,
		session:     sess,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChatService) Conversations(ctx context.Context) ([]comms.Conversation, error) {
	v, err := s.store.Read(ctx, caching.Conversations(), func(fctx context.Context) (any, error) {
		var convos []comms.Conversation
		if err := s.client.Get(fctx, "/chat/conversations", &convos); err != nil {
			return nil, err
		}
		return convos, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]comms.Conversation), nil
}

func (s *ChatService) Messages(ctx context.Context, conversationID string) ([]comms.ChatMessage, error) {
	v, err := s.store.Read(ctx, caching.ConversationMessages(conversationID), func(fctx context.Context) (any, error) {
		var messages []comms.ChatMessage
		if err := s.client.Get(fctx, "/chat/conversations/"+conversationID+"/messages", &messages); err != nil {
			return nil, err
		}
		return messages, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]comms.ChatMessage), nil
}

// UnreadTotal returns the unread message count across all conversations.
func (s *ChatService) UnreadTotal(ctx context.Context) (int, error) {
	v, err := s.store.Read(ctx, caching.ChatUnread(), func(fctx context.Context) (any, error) {
		var payload struct {
			Count int `json:"count"`
		}
		if err := s.client.Get(fctx, "/chat/unread", &payload); err != nil {
			return nil, err
		}
		return payload.Count, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

type SendMessageArgs struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Body           string `json:"body" validate:"required"`
}

// Send emits a chat message. The conversation gains the message immediately
// with a client-assigned id and Delivered false; the inbound echo carrying
// the server id marks it delivered. A disconnected channel rolls the
// message back and returns the error.
func (s *ChatService) Send(ctx context.Context, args SendMessageArgs) (*comms.ChatMessage, error) {
	messagesKey := caching.ConversationMessages(args.ConversationID)
	senderID := ""
	if user := s.session.User(); user != nil {
		senderID = user.ID
	}
	optimistic := comms.ChatMessage{
		ClientID:       security.GenerateULID(),
		ConversationID: args.ConversationID,
		SenderID:       senderID,
		Body:           args.Body,
		SentAt:         s.now(),
	}

	_, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationChatSend,
		Args:               args,
		AffectedKeys:       []caching.Key{messagesKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationChatSend, ""),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(messagesKey); ok && e.HasValue() {
				messages, _ := e.Value.([]comms.ChatMessage)
				out := make([]comms.ChatMessage, 0, len(messages)+1)
				out = append(out, messages...)
				store.Set(messagesKey, append(out, optimistic))
			}
		},
		Call: func(context.Context) (any, error) {
			payload := map[string]string{
				"clientId":       optimistic.ClientID,
				"conversationId": args.ConversationID,
				"body":           args.Body,
			}
			if err := s.channel.Emit(realtime.EventChatSend, payload); err != nil {
				return nil, &transport.NetworkError{URL: "channel", Err: err}
			}
			return nil, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &optimistic, nil
}

// MarkRead clears a conversation's unread count locally and tells the
// backend over the channel.
func (s *ChatService) MarkRead(ctx context.Context, conversationID string) error {
	convosKey := caching.Conversations()
	unreadKey := caching.ChatUnread()

	_, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationChatRead,
		AffectedKeys:       []caching.Key{convosKey, unreadKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationChatRead, conversationID),
		Patch: func(store *caching.Store) {
			cleared := 0
			if e, ok := store.Get(convosKey); ok && e.HasValue() {
				convos, _ := e.Value.([]comms.Conversation)
				out := make([]comms.Conversation, len(convos))
				for i, convo := range convos {
					if convo.ID == conversationID {
						cleared = convo.UnreadCount
						convo.UnreadCount = 0
					}
					out[i] = convo
				}
				store.Set(convosKey, out)
			}
			if cleared > 0 {
				if e, ok := store.Get(unreadKey); ok && e.HasValue() {
					if count, ok := e.Value.(int); ok {
						if count -= cleared; count < 0 {
							count = 0
						}
						store.Set(unreadKey, count)
					}
				}
			}
		},
		Call: func(context.Context) (any, error) {
			payload := map[string]string{"conversationId": conversationID}
			if err := s.channel.Emit(realtime.EventChatRead, payload); err != nil {
				return nil, &transport.NetworkError{URL: "channel", Err: err}
			}
			return nil, nil
		},
	})
	return err
}

// HandleInbound applies a pushed chat message directly to the cache. Echoes
// of our own sends are matched by client id and marked delivered; messages
// from others bump the conversation's unread count and the global counter.
func (s *ChatService) HandleInbound(ev realtime.Event) {
	var msg comms.ChatMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil || msg.ConversationID == "" {
		s.logger.Sync().Warn("Unusable chat payload, relying on invalidation")
		return
	}
	msg.Delivered = true

	ownEcho := s.applyToMessages(msg)
	s.applyToConversations(msg, ownEcho)

	if !ownEcho {
		if e, ok := s.store.Get(caching.ChatUnread()); ok && e.HasValue() {
			if count, ok := e.Value.(int); ok {
				s.store.Set(caching.ChatUnread(), count+1)
			}
		}
	}
}

// applyToMessages merges the inbound message into the conversation's
// message list and reports whether it was the echo of a local send.
func (s *ChatService) applyToMessages(msg comms.ChatMessage) bool {
	key := caching.ConversationMessages(msg.ConversationID)
	e, ok := s.store.Get(key)
	if !ok || !e.HasValue() {
		return s.isOwn(msg)
	}

	messages, _ := e.Value.([]comms.ChatMessage)
	out := make([]comms.ChatMessage, 0, len(messages)+1)
	matched := false
	for _, existing := range messages {
		if msg.ClientID != "" && existing.ClientID == msg.ClientID {
			out = append(out, msg)
			matched = true
			continue
		}
		if msg.ID != "" && existing.ID == msg.ID {
			matched = true
		}
		out = append(out, existing)
	}
	if !matched {
		out = append(out, msg)
	}
	s.store.Set(key, out)

	return matched || s.isOwn(msg)
}

func (s *ChatService) applyToConversations(msg comms.ChatMessage, ownEcho bool) {
	key := caching.Conversations()
	e, ok := s.store.Get(key)
	if !ok || !e.HasValue() {
		return
	}

	convos, _ := e.Value.([]comms.Conversation)
	out := make([]comms.Conversation, len(convos))
	for i, convo := range convos {
		if convo.ID == msg.ConversationID {
			m := msg
			convo.LastMessage = &m
			at := msg.SentAt
			convo.LastMessageAt = &at
			if !ownEcho {
				convo.UnreadCount++
			}
		}
		out[i] = convo
	}
	s.store.Set(key, out)
}

func (s *ChatService) isOwn(msg comms.ChatMessage) bool {
	user := s.session.User()
	return user != nil && msg.SenderID == user.ID
}
