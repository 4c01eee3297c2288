package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "nestly/internal/domain/chat"
)

// ErrNoActiveConversation is returned when a thread action runs before a
// conversation was selected.
var ErrNoActiveConversation = errors.New("chat: no conversation selected")

// Inbox is the client-side view of one user's conversations and the
// currently open thread. It keeps the on-screen state consistent with user
// actions without waiting for round-trips: sends land in the cached thread
// optimistically and read marks zero the cached counters immediately.
//
// All cached state is guarded by one mutex; the server stores stay the
// source of truth and a Refresh replaces whatever the cache drifted into.
type Inbox struct {
	directory *Directory
	thread    *Thread
	logger    *slog.Logger
	user      InboxUser

	mu            sync.Mutex
	conversations []domainchat.Conversation
	activeID      string
	messages      []domainchat.Message
}

// InboxUser identifies the signed-in user an Inbox belongs to. The fields
// are stamped onto every message the inbox sends.
type InboxUser struct {
	ID        string
	Name      string
	Role      domainchat.Role
	AvatarURL string
}

// NewInbox builds an inbox for one signed-in user.
func NewInbox(directory *Directory, thread *Thread, logger *slog.Logger, user InboxUser) *Inbox {
	return &Inbox{
		directory: directory,
		thread:    thread,
		logger:    logger,
		user:      user,
	}
}

// Refresh reloads the conversation list from the directory, replacing the
// cached copy. This is also what heals any stale optimistic patches.
func (in *Inbox) Refresh(ctx context.Context, opts ListOptions) error {
	page, err := in.directory.List(ctx, in.user.ID, opts)
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.conversations = page.Items
	in.mu.Unlock()
	return nil
}

// Conversations returns a snapshot of the cached conversation list.
func (in *Inbox) Conversations() []domainchat.Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domainchat.Conversation(nil), in.conversations...)
}

// Messages returns a snapshot of the cached active thread.
func (in *Inbox) Messages() []domainchat.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domainchat.Message(nil), in.messages...)
}

// ActiveConversationID returns the id of the open thread, if any.
func (in *Inbox) ActiveConversationID() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.activeID
}

// Select opens a conversation: fetch its messages, mark it read best-effort,
// and zero the cached unread counter without waiting for the mark to land.
func (in *Inbox) Select(ctx context.Context, conversationID string) error {
	msgs, err := in.thread.List(ctx, conversationID, ThreadListOptions{})
	if err != nil {
		return err
	}
	// Best effort; a failed mark-read is invisible to the user and the
	// local counters are zeroed regardless.
	if err := in.thread.MarkRead(ctx, conversationID, in.user.ID); err != nil && in.logger != nil {
		in.logger.Warn("mark read failed", "error", err, "conversation_id", conversationID)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.activeID = conversationID
	in.messages = msgs
	for i := range in.conversations {
		if in.conversations[i].ID == conversationID {
			in.conversations[i].UnreadCount = 0
		}
	}
	return nil
}

// Send performs an optimistic send into the active thread: a placeholder
// message with a client-generated id lands in the cached thread and the
// cached conversation summary immediately. On success the thread is
// refetched so server truth replaces the placeholder; on failure only the
// placeholder is removed. The conversation-list patch is not rolled back and
// stays stale until the next Refresh.
func (in *Inbox) Send(ctx context.Context, content string) (*domainchat.Message, error) {
	in.mu.Lock()
	conversationID := in.activeID
	if conversationID == "" {
		in.mu.Unlock()
		return nil, ErrNoActiveConversation
	}
	tempID := "local-" + uuid.NewString()
	now := time.Now().UTC()
	in.messages = append(in.messages, domainchat.Message{
		ID:              tempID,
		ConversationID:  conversationID,
		SenderID:        in.user.ID,
		SenderName:      in.user.Name,
		SenderRole:      in.user.Role,
		SenderAvatarURL: in.user.AvatarURL,
		Content:         content,
		Type:            domainchat.MessageText,
		Status:          domainchat.MessageSent,
		CreatedAt:       now,
	})
	for i := range in.conversations {
		if in.conversations[i].ID == conversationID {
			in.conversations[i].LastMessagePreview = trimPreview(content)
			in.conversations[i].LastMessageAt = now
			in.conversations[i].LastMessageBy = in.user.ID
		}
	}
	in.mu.Unlock()

	sent, err := in.thread.Send(ctx, SendParams{
		ConversationID:  conversationID,
		SenderID:        in.user.ID,
		SenderName:      in.user.Name,
		SenderRole:      in.user.Role,
		SenderAvatarURL: in.user.AvatarURL,
		Content:         content,
	})
	if err != nil {
		in.dropMessage(tempID)
		return nil, err
	}

	msgs, listErr := in.thread.List(ctx, conversationID, ThreadListOptions{})
	in.mu.Lock()
	defer in.mu.Unlock()
	if listErr == nil && in.activeID == conversationID {
		in.messages = msgs
	} else if listErr != nil && in.logger != nil {
		in.logger.Warn("thread refetch after send failed", "error", listErr, "conversation_id", conversationID)
	}
	return sent, nil
}

// ToggleStar flips the star on the server first, then mirrors the confirmed
// value into the cached list. Unlike sends, this is confirm-then-apply.
func (in *Inbox) ToggleStar(ctx context.Context, conversationID string, starred bool) error {
	conv, err := in.directory.ToggleStar(ctx, conversationID, starred)
	if err != nil {
		return err
	}
	in.patchConversation(*conv)
	return nil
}

// ToggleMute mirrors ToggleStar for the muted flag.
func (in *Inbox) ToggleMute(ctx context.Context, conversationID string, muted bool) error {
	conv, err := in.directory.ToggleMute(ctx, conversationID, muted)
	if err != nil {
		return err
	}
	in.patchConversation(*conv)
	return nil
}

func (in *Inbox) patchConversation(conv domainchat.Conversation) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.conversations {
		if in.conversations[i].ID == conv.ID {
			in.conversations[i] = conv
			return
		}
	}
}

func (in *Inbox) dropMessage(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	kept := in.messages[:0]
	for _, msg := range in.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	in.messages = kept
}
