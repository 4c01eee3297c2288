package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainchat "nestly/internal/domain/chat"
)

var (
	ErrContentRequired      = errors.New("chat: message content is required")
	ErrConversationRequired = errors.New("chat: conversation id is required")
	ErrSenderRequired       = errors.New("chat: sender id is required")
)

// previewLimit caps the denormalized last-message snippet kept on the
// conversation.
const previewLimit = 100

const defaultMessagePageSize = 50

// Thread lists, sends, edits, soft-deletes and reconciles read state for the
// messages of one conversation.
type Thread struct {
	Store     domainchat.Store
	Directory *Directory
	Events    EventPublisher
	Badges    BadgeCache
	Logger    *slog.Logger
}

// ThreadListOptions pages a message listing. Before fetches messages strictly
// older than the given instant, for backward infinite scroll.
type ThreadListOptions struct {
	Before time.Time
	Limit  int
	Offset int
}

// List returns non-deleted messages in chronological order. Storage hands
// back the newest page first so "latest N" stays cheap; the page is reversed
// in memory before returning.
func (t *Thread) List(ctx context.Context, conversationID string, opts ThreadListOptions) ([]domainchat.Message, error) {
	if conversationID == "" {
		return nil, ErrConversationRequired
	}
	limit := opts.Limit
	if limit < 0 {
		limit = defaultMessagePageSize
	}
	page, err := t.Store.ListMessages(ctx, domainchat.MessageFilter{
		ConversationID: conversationID,
		Before:         opts.Before,
		Limit:          limit,
		Offset:         opts.Offset,
	})
	if err != nil {
		t.logError("list messages failed", err, "conversation_id", conversationID)
		return nil, err
	}
	reverseMessages(page)
	return page, nil
}

// SendParams describes an outgoing message.
type SendParams struct {
	ConversationID   string
	SenderID         string
	SenderName       string
	SenderRole       domainchat.Role
	SenderAvatarURL  string
	Content          string
	Type             domainchat.MessageType
	PropertyID       string
	PropertyTitle    string
	PropertyImageURL string
	ReplyToID        string
	Attachments      []domainchat.Attachment
	IsInternalNote   bool
}

// Send inserts the message, then folds it into the parent conversation's
// denormalized summary. The two steps are separate writes and the summary
// update is a plain read-modify-write, so near-simultaneous sends from both
// participants can lose a counter increment. Accepted: conversations here
// have two people in them and they rarely type at the same instant.
func (t *Thread) Send(ctx context.Context, params SendParams) (*domainchat.Message, error) {
	if params.ConversationID == "" {
		return nil, ErrConversationRequired
	}
	if strings.TrimSpace(params.SenderID) == "" {
		return nil, ErrSenderRequired
	}
	content := strings.TrimSpace(params.Content)
	if content == "" && len(params.Attachments) == 0 {
		return nil, ErrContentRequired
	}
	msgType := params.Type
	if msgType == "" {
		msgType = domainchat.MessageText
	}

	msg := &domainchat.Message{
		ConversationID:   params.ConversationID,
		SenderID:         params.SenderID,
		SenderName:       params.SenderName,
		SenderRole:       params.SenderRole,
		SenderAvatarURL:  params.SenderAvatarURL,
		Content:          content,
		Type:             msgType,
		Status:           domainchat.MessageSent,
		PropertyID:       params.PropertyID,
		PropertyTitle:    params.PropertyTitle,
		PropertyImageURL: params.PropertyImageURL,
		ReplyToID:        params.ReplyToID,
		Attachments:      params.Attachments,
		IsInternalNote:   params.IsInternalNote,
	}
	if params.ReplyToID != "" {
		// Cached snippet only; there is no referential check on the target.
		if replied, err := t.Store.GetMessage(ctx, params.ReplyToID); err == nil {
			msg.ReplyToPreview = trimPreview(replied.Content)
		}
	}

	created, err := t.Store.CreateMessage(ctx, msg)
	if err != nil {
		t.logError("send message failed", err, "conversation_id", params.ConversationID, "sender_id", params.SenderID)
		return nil, err
	}

	conv, err := t.Store.GetConversation(ctx, params.ConversationID)
	if err != nil {
		t.logError("load conversation for summary update failed", err, "conversation_id", params.ConversationID)
		return nil, err
	}
	preview := trimPreview(content)
	total := conv.TotalMessages + 1
	unread := conv.UnreadCount + 1
	if _, err := t.Store.UpdateConversation(ctx, params.ConversationID, domainchat.ConversationPatch{
		LastMessagePreview: &preview,
		LastMessageAt:      &created.CreatedAt,
		LastMessageBy:      &created.SenderID,
		TotalMessages:      &total,
		UnreadCount:        &unread,
	}); err != nil {
		t.logError("conversation summary update failed", err, "conversation_id", params.ConversationID)
		return nil, err
	}

	t.publish(ctx, Event{
		Type:           EventMessageSent,
		ConversationID: created.ConversationID,
		MessageID:      created.ID,
		ActorID:        created.SenderID,
		At:             created.CreatedAt,
	})
	t.invalidateBadges(ctx, conv, created.SenderID)
	return created, nil
}

// Get fetches a single message, deleted ones included.
func (t *Thread) Get(ctx context.Context, messageID string) (*domainchat.Message, error) {
	msg, err := t.Store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit replaces message content in place. No history is kept.
func (t *Thread) Edit(ctx context.Context, messageID, content string) (*domainchat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrContentRequired
	}
	edited := true
	now := time.Now().UTC()
	msg, err := t.Store.UpdateMessage(ctx, messageID, domainchat.MessagePatch{
		Content:  &content,
		IsEdited: &edited,
		EditedAt: &now,
	})
	if err != nil {
		t.logError("edit message failed", err, "message_id", messageID)
		return nil, err
	}
	return msg, nil
}

// Delete flips the soft-delete flag. The parent conversation's preview is
// deliberately left alone even when the deleted message was the latest one;
// the stale snippet heals on the next send.
func (t *Thread) Delete(ctx context.Context, messageID string) error {
	deleted := true
	if _, err := t.Store.UpdateMessage(ctx, messageID, domainchat.MessagePatch{IsDeleted: &deleted}); err != nil {
		t.logError("delete message failed", err, "message_id", messageID)
		return err
	}
	return nil
}

// MarkRead flips every message the user has not authored to read, one update
// per message, then zeroes the conversation's unread counter. Opening a
// conversation with many unread messages pays N round-trips here.
func (t *Thread) MarkRead(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" {
		return ErrConversationRequired
	}
	if userID == "" {
		return ErrSenderRequired
	}
	unread, err := t.Store.ListMessages(ctx, domainchat.MessageFilter{
		ConversationID: conversationID,
		SenderNot:      userID,
		StatusNot:      domainchat.MessageRead,
	})
	if err != nil {
		t.logError("mark read scan failed", err, "conversation_id", conversationID, "user_id", userID)
		return err
	}
	read := domainchat.MessageRead
	for _, msg := range unread {
		if _, err := t.Store.UpdateMessage(ctx, msg.ID, domainchat.MessagePatch{
			Status: &read,
			ReadBy: &userID,
		}); err != nil {
			t.logError("mark read update failed", err, "message_id", msg.ID, "user_id", userID)
			return err
		}
	}
	zero := 0
	if _, err := t.Store.UpdateConversation(ctx, conversationID, domainchat.ConversationPatch{UnreadCount: &zero}); err != nil {
		t.logError("unread counter reset failed", err, "conversation_id", conversationID)
		return err
	}
	if t.Badges != nil {
		if err := t.Badges.InvalidateUnreadTotal(ctx, userID); err != nil {
			t.logWarn("badge invalidation failed", err, "user_id", userID)
		}
	}
	return nil
}

// InquiryParams starts a property-scoped conversation with its first message.
type InquiryParams struct {
	FromID           string
	FromName         string
	FromRole         domainchat.Role
	FromAvatarURL    string
	AgentID          string
	PropertyID       string
	PropertyTitle    string
	PropertyImageURL string
	Subject          string
	Content          string
}

// StartPropertyInquiry is the entry point used when a visitor contacts an
// agent from a listing page: get or create the property-scoped conversation,
// then send the opening message into it.
func (t *Thread) StartPropertyInquiry(ctx context.Context, params InquiryParams) (*domainchat.Conversation, *domainchat.Message, error) {
	if t.Directory == nil {
		return nil, nil, errors.New("chat: directory is not configured")
	}
	subject := params.Subject
	if subject == "" && params.PropertyTitle != "" {
		subject = "Inquiry about " + params.PropertyTitle
	}
	conv, err := t.Directory.GetOrCreate(ctx, CreateParams{
		InitiatorID:   params.FromID,
		InitiatorName: params.FromName,
		InitiatorRole: params.FromRole,
		Type:          domainchat.TypeInquiry,
		Subject:       subject,
		PropertyID:    params.PropertyID,
		PropertyTitle: params.PropertyTitle,
	}, params.AgentID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := t.Send(ctx, SendParams{
		ConversationID:   conv.ID,
		SenderID:         params.FromID,
		SenderName:       params.FromName,
		SenderRole:       params.FromRole,
		SenderAvatarURL:  params.FromAvatarURL,
		Content:          params.Content,
		PropertyID:       params.PropertyID,
		PropertyTitle:    params.PropertyTitle,
		PropertyImageURL: params.PropertyImageURL,
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

func (t *Thread) publish(ctx context.Context, event Event) {
	if t.Events == nil {
		return
	}
	if err := t.Events.PublishChatEvent(ctx, event); err != nil {
		t.logWarn("chat event publish failed", err, "event", event.Type, "conversation_id", event.ConversationID)
	}
}

func (t *Thread) invalidateBadges(ctx context.Context, conv *domainchat.Conversation, senderID string) {
	if t.Badges == nil {
		return
	}
	for _, participant := range conv.Participants {
		if participant == senderID {
			continue
		}
		if err := t.Badges.InvalidateUnreadTotal(ctx, participant); err != nil {
			t.logWarn("badge invalidation failed", err, "user_id", participant)
		}
	}
}

func (t *Thread) logError(msg string, err error, attrs ...any) {
	if t.Logger != nil {
		t.Logger.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}

func (t *Thread) logWarn(msg string, err error, attrs ...any) {
	if t.Logger != nil {
		t.Logger.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}

func trimPreview(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= previewLimit {
		return string(runes)
	}
	return string(runes[:previewLimit])
}

func reverseMessages(msgs []domainchat.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
