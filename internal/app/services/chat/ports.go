package chat

import (
	"context"
	"time"
)

// Event names published to the broker.
const (
	EventConversationCreated = "conversation.created"
	EventMessageSent         = "message.sent"
)

// Event is the payload emitted for conversation activity. Publishing is
// best-effort; chat operations never fail because the broker is down.
type Event struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	At             time.Time `json:"at"`
}

// EventPublisher delivers chat events to interested consumers.
type EventPublisher interface {
	PublishChatEvent(ctx context.Context, event Event) error
}

// BadgeCache caches per-user unread totals for badge rendering. A miss is
// signaled by ok=false, not an error.
type BadgeCache interface {
	GetUnreadTotal(ctx context.Context, userID string) (total int, ok bool, err error)
	SetUnreadTotal(ctx context.Context, userID string, total int) error
	InvalidateUnreadTotal(ctx context.Context, userID string) error
}
