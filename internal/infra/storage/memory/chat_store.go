package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "nestly/internal/domain/chat"
)

// ChatStore is an in-memory chat.Store used for tests and local demo runs.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	messages      map[string]*domainchat.Message
	now           func() time.Time
}

// NewChatStore builds an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*domainchat.Conversation),
		messages:      make(map[string]*domainchat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the creation-timestamp source. Test hook.
func (s *ChatStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateConversation assigns an id and start timestamp and stores a copy.
func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *conv
	stored.ID = uuid.NewString()
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.now()
	}
	stored.Participants = append([]string(nil), conv.Participants...)
	s.conversations[stored.ID] = &stored
	out := stored
	out.Participants = append([]string(nil), stored.Participants...)
	return &out, nil
}

// GetConversation returns a conversation or ErrConversationNotFound.
func (s *ChatStore) GetConversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	return &out, nil
}

// ListConversations filters, sorts by last activity descending and pages.
// The returned total counts all matches before paging.
func (s *ChatStore) ListConversations(ctx context.Context, filter domainchat.ConversationFilter) ([]domainchat.Conversation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if filter.UserID != "" && !conv.HasParticipant(filter.UserID) {
			continue
		}
		if filter.Type != "" && conv.Type != filter.Type {
			continue
		}
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		if !conv.MatchesSearch(filter.Search) {
			continue
		}
		copied := *conv
		copied.Participants = append([]string(nil), conv.Participants...)
		matched = append(matched, copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return lastActivity(matched[i]).After(lastActivity(matched[j]))
	})
	total := len(matched)
	matched = pageConversations(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

// UpdateConversation applies a partial update and returns the new state.
func (s *ChatStore) UpdateConversation(ctx context.Context, id string, patch domainchat.ConversationPatch) (*domainchat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	if patch.Status != nil {
		conv.Status = *patch.Status
	}
	if patch.LastMessagePreview != nil {
		conv.LastMessagePreview = *patch.LastMessagePreview
	}
	if patch.LastMessageAt != nil {
		conv.LastMessageAt = *patch.LastMessageAt
	}
	if patch.LastMessageBy != nil {
		conv.LastMessageBy = *patch.LastMessageBy
	}
	if patch.TotalMessages != nil {
		conv.TotalMessages = *patch.TotalMessages
	}
	if patch.UnreadCount != nil {
		conv.UnreadCount = *patch.UnreadCount
	}
	if patch.IsStarred != nil {
		conv.IsStarred = *patch.IsStarred
	}
	if patch.IsMuted != nil {
		conv.IsMuted = *patch.IsMuted
	}
	if patch.ArchivedAt != nil {
		conv.ArchivedAt = *patch.ArchivedAt
	}
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	return &out, nil
}

// CreateMessage assigns an id and creation timestamp and stores a copy.
func (s *ChatStore) CreateMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *msg
	stored.ID = uuid.NewString()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.Attachments = append([]domainchat.Attachment(nil), msg.Attachments...)
	s.messages[stored.ID] = &stored
	out := stored
	out.Attachments = append([]domainchat.Attachment(nil), stored.Attachments...)
	return &out, nil
}

// GetMessage returns a message or ErrMessageNotFound. Soft-deleted messages
// are still returned here; only lists hide them.
func (s *ChatStore) GetMessage(ctx context.Context, id string) (*domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	out := *msg
	out.Attachments = append([]domainchat.Attachment(nil), msg.Attachments...)
	return &out, nil
}

// ListMessages filters, sorts newest-first and pages.
func (s *ChatStore) ListMessages(ctx context.Context, filter domainchat.MessageFilter) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domainchat.Message, 0)
	for _, msg := range s.messages {
		if filter.ConversationID != "" && msg.ConversationID != filter.ConversationID {
			continue
		}
		if !filter.IncludeDeleted && msg.IsDeleted {
			continue
		}
		if !filter.Before.IsZero() && !msg.CreatedAt.Before(filter.Before) {
			continue
		}
		if filter.SenderNot != "" && msg.SenderID == filter.SenderNot {
			continue
		}
		if filter.StatusNot != "" && msg.Status == filter.StatusNot {
			continue
		}
		copied := *msg
		copied.Attachments = append([]domainchat.Attachment(nil), msg.Attachments...)
		matched = append(matched, copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			// Stable tiebreak for messages stored within the same instant.
			return strings.Compare(matched[i].ID, matched[j].ID) > 0
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	matched = pageMessages(matched, filter.Offset, filter.Limit)
	return matched, nil
}

// UpdateMessage applies a partial update and returns the new state.
func (s *ChatStore) UpdateMessage(ctx context.Context, id string, patch domainchat.MessagePatch) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if patch.ReadBy != nil {
		msg.ReadBy = *patch.ReadBy
	}
	if patch.IsEdited != nil {
		msg.IsEdited = *patch.IsEdited
	}
	if patch.EditedAt != nil {
		msg.EditedAt = *patch.EditedAt
	}
	if patch.IsDeleted != nil {
		msg.IsDeleted = *patch.IsDeleted
	}
	out := *msg
	out.Attachments = append([]domainchat.Attachment(nil), msg.Attachments...)
	return &out, nil
}

func lastActivity(c domainchat.Conversation) time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.StartedAt
}

func pageConversations(items []domainchat.Conversation, offset, limit int) []domainchat.Conversation {
	if offset > 0 {
		if offset >= len(items) {
			return []domainchat.Conversation{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func pageMessages(items []domainchat.Message, offset, limit int) []domainchat.Message {
	if offset > 0 {
		if offset >= len(items) {
			return []domainchat.Message{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
