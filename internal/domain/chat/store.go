package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConversationNotFound is returned when a conversation id resolves to nothing.
	ErrConversationNotFound = errors.New("chat: conversation not found")
	// ErrMessageNotFound is returned when a message id resolves to nothing.
	ErrMessageNotFound = errors.New("chat: message not found")
)

// ConversationFilter narrows and pages a conversation listing. The store
// orders results by LastMessageAt descending. A zero Limit means no paging.
type ConversationFilter struct {
	// UserID restricts to threads where the user is initiator or participant.
	UserID string
	Type   ConversationType
	Status ConversationStatus
	// Search is a case-insensitive substring match ORed across subject,
	// last message preview and initiator name.
	Search string
	Limit  int
	Offset int
}

// ConversationPatch is a partial update; nil fields are left untouched.
type ConversationPatch struct {
	Status             *ConversationStatus
	LastMessagePreview *string
	LastMessageAt      *time.Time
	LastMessageBy      *string
	TotalMessages      *int
	UnreadCount        *int
	IsStarred          *bool
	IsMuted            *bool
	ArchivedAt         *time.Time
}

// MessageFilter narrows and pages a message listing. The store orders
// results newest-first; callers wanting chronological order reverse the page.
// Soft-deleted messages are excluded unless IncludeDeleted is set.
type MessageFilter struct {
	ConversationID string
	// Before keeps only messages created strictly before the given instant;
	// zero means no cursor.
	Before time.Time
	// SenderNot excludes messages authored by the given user.
	SenderNot string
	// StatusNot excludes messages in the given status.
	StatusNot      MessageStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// MessagePatch is a partial update; nil fields are left untouched.
type MessagePatch struct {
	Content   *string
	Status    *MessageStatus
	ReadBy    *string
	IsEdited  *bool
	EditedAt  *time.Time
	IsDeleted *bool
}

// Store is the document-store boundary for conversations and messages.
// Implementations assign ids and creation timestamps on create and return
// ErrConversationNotFound / ErrMessageNotFound from id lookups and patches.
// No implementation offers transactions across the two collections; callers
// own the read-modify-write sequences and their documented races.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]Conversation, int, error)
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (*Conversation, error)

	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
	UpdateMessage(ctx context.Context, id string, patch MessagePatch) (*Message, error)
}
