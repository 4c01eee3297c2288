package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	domainchat "nestly/internal/domain/chat"
)

// ChatStore wraps Scylla queries for conversations and messages. Lookups by
// anything except the row key go through ALLOW FILTERING scans and finish
// filtering, sorting and paging in memory; per-user conversation counts stay
// small enough for that to hold up.
type ChatStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewChatStore builds a ChatStore.
func NewChatStore(session *gocql.Session, logger *slog.Logger) *ChatStore {
	return &ChatStore{session: session, logger: logger}
}

const conversationColumns = `id, reference_code, initiator_id, initiator_name, initiator_role, participants, type, subject, property_id, property_title, status, last_message_preview, last_message_at, last_message_by, total_messages, unread_count, is_starred, is_muted, started_at, archived_at`

const messageColumns = `id, conversation_id, sender_id, sender_name, sender_role, sender_avatar_url, content, type, status, property_id, property_title, property_image_url, reply_to_id, reply_to_preview, attachments, is_edited, edited_at, is_deleted, is_internal_note, read_by, created_at`

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	stored := *conv
	stored.ID = gocql.TimeUUID().String()
	if stored.StartedAt.IsZero() {
		stored.StartedAt = time.Now().UTC()
	}
	if err := s.session.
		Query(`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.ReferenceCode, stored.InitiatorID, stored.InitiatorName, string(stored.InitiatorRole),
			stored.Participants, string(stored.Type), stored.Subject, stored.PropertyID, stored.PropertyTitle,
			string(stored.Status), stored.LastMessagePreview, stored.LastMessageAt, stored.LastMessageBy,
			stored.TotalMessages, stored.UnreadCount, stored.IsStarred, stored.IsMuted, stored.StartedAt, stored.ArchivedAt).
		WithContext(ctx).
		Exec(); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	conv, err := s.scanConversation(s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, id).
		WithContext(ctx))
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *ChatStore) ListConversations(ctx context.Context, filter domainchat.ConversationFilter) ([]domainchat.Conversation, int, error) {
	if s.session == nil {
		return nil, 0, errors.New("scylla session not initialized")
	}
	// CQL has no OR, so initiator-or-participant visibility takes two
	// filtered scans merged by id.
	var queries []*gocql.Query
	if filter.UserID != "" {
		queries = []*gocql.Query{
			s.session.Query(`SELECT `+conversationColumns+` FROM conversations WHERE participants CONTAINS ? ALLOW FILTERING`, filter.UserID),
			s.session.Query(`SELECT `+conversationColumns+` FROM conversations WHERE initiator_id = ? ALLOW FILTERING`, filter.UserID),
		}
	} else {
		queries = []*gocql.Query{
			s.session.Query(`SELECT ` + conversationColumns + ` FROM conversations`),
		}
	}

	seen := make(map[string]struct{})
	matched := make([]domainchat.Conversation, 0)
	for _, q := range queries {
		iter := q.WithContext(ctx).Iter()
		for {
			conv, ok, err := nextConversation(iter)
			if err != nil {
				iter.Close()
				return nil, 0, err
			}
			if !ok {
				break
			}
			if _, dup := seen[conv.ID]; dup {
				continue
			}
			seen[conv.ID] = struct{}{}
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
			matched = append(matched, *conv)
		}
		if err := iter.Close(); err != nil {
			return nil, 0, err
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return lastActivity(matched[i]).After(lastActivity(matched[j]))
	})
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *ChatStore) UpdateConversation(ctx context.Context, id string, patch domainchat.ConversationPatch) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	// Scylla UPDATE is an upsert; verify the row first so missing ids keep
	// surfacing as not-found.
	if _, err := s.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	assignments := make([]string, 0, 8)
	values := make([]any, 0, 9)
	appendSet := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		values = append(values, value)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.LastMessagePreview != nil {
		appendSet("last_message_preview", *patch.LastMessagePreview)
	}
	if patch.LastMessageAt != nil {
		appendSet("last_message_at", *patch.LastMessageAt)
	}
	if patch.LastMessageBy != nil {
		appendSet("last_message_by", *patch.LastMessageBy)
	}
	if patch.TotalMessages != nil {
		appendSet("total_messages", *patch.TotalMessages)
	}
	if patch.UnreadCount != nil {
		appendSet("unread_count", *patch.UnreadCount)
	}
	if patch.IsStarred != nil {
		appendSet("is_starred", *patch.IsStarred)
	}
	if patch.IsMuted != nil {
		appendSet("is_muted", *patch.IsMuted)
	}
	if patch.ArchivedAt != nil {
		appendSet("archived_at", *patch.ArchivedAt)
	}
	if len(assignments) > 0 {
		values = append(values, id)
		cql := "UPDATE conversations SET " + strings.Join(assignments, ", ") + " WHERE id = ?"
		if err := s.session.Query(cql, values...).WithContext(ctx).Exec(); err != nil {
			return nil, err
		}
	}
	return s.GetConversation(ctx, id)
}

func (s *ChatStore) CreateMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	stored := *msg
	stored.ID = gocql.TimeUUID().String()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	attachments, err := encodeAttachments(stored.Attachments)
	if err != nil {
		return nil, err
	}
	if err := s.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.ConversationID, stored.SenderID, stored.SenderName, string(stored.SenderRole),
			stored.SenderAvatarURL, stored.Content, string(stored.Type), string(stored.Status),
			stored.PropertyID, stored.PropertyTitle, stored.PropertyImageURL, stored.ReplyToID, stored.ReplyToPreview,
			attachments, stored.IsEdited, stored.EditedAt, stored.IsDeleted, stored.IsInternalNote, stored.ReadBy, stored.CreatedAt).
		WithContext(ctx).
		Exec(); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *ChatStore) GetMessage(ctx context.Context, id string) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	msg, err := s.scanMessage(s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE id = ? LIMIT 1`, id).
		WithContext(ctx))
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *ChatStore) ListMessages(ctx context.Context, filter domainchat.MessageFilter) ([]domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	var iter *gocql.Iter
	if filter.ConversationID != "" {
		iter = s.session.
			Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ALLOW FILTERING`, filter.ConversationID).
			WithContext(ctx).
			Iter()
	} else {
		iter = s.session.
			Query(`SELECT ` + messageColumns + ` FROM messages`).
			WithContext(ctx).
			Iter()
	}

	matched := make([]domainchat.Message, 0)
	for {
		msg, ok, err := nextMessage(iter)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
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
		matched = append(matched, *msg)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *ChatStore) UpdateMessage(ctx context.Context, id string, patch domainchat.MessagePatch) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	if _, err := s.GetMessage(ctx, id); err != nil {
		return nil, err
	}
	assignments := make([]string, 0, 6)
	values := make([]any, 0, 7)
	appendSet := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		values = append(values, value)
	}
	if patch.Content != nil {
		appendSet("content", *patch.Content)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.ReadBy != nil {
		appendSet("read_by", *patch.ReadBy)
	}
	if patch.IsEdited != nil {
		appendSet("is_edited", *patch.IsEdited)
	}
	if patch.EditedAt != nil {
		appendSet("edited_at", *patch.EditedAt)
	}
	if patch.IsDeleted != nil {
		appendSet("is_deleted", *patch.IsDeleted)
	}
	if len(assignments) > 0 {
		values = append(values, id)
		cql := "UPDATE messages SET " + strings.Join(assignments, ", ") + " WHERE id = ?"
		if err := s.session.Query(cql, values...).WithContext(ctx).Exec(); err != nil {
			return nil, err
		}
	}
	return s.GetMessage(ctx, id)
}

func (s *ChatStore) scanConversation(q *gocql.Query) (*domainchat.Conversation, error) {
	var (
		conv          domainchat.Conversation
		role          string
		convType      string
		status        string
		lastMessageAt time.Time
		startedAt     time.Time
		archivedAt    time.Time
	)
	if err := q.Scan(&conv.ID, &conv.ReferenceCode, &conv.InitiatorID, &conv.InitiatorName, &role,
		&conv.Participants, &convType, &conv.Subject, &conv.PropertyID, &conv.PropertyTitle,
		&status, &conv.LastMessagePreview, &lastMessageAt, &conv.LastMessageBy,
		&conv.TotalMessages, &conv.UnreadCount, &conv.IsStarred, &conv.IsMuted, &startedAt, &archivedAt); err != nil {
		return nil, err
	}
	conv.InitiatorRole = domainchat.Role(role)
	conv.Type = domainchat.ConversationType(convType)
	conv.Status = domainchat.ConversationStatus(status)
	conv.LastMessageAt = normalizeTimestamp(lastMessageAt)
	conv.StartedAt = normalizeTimestamp(startedAt)
	conv.ArchivedAt = normalizeTimestamp(archivedAt)
	return &conv, nil
}

func nextConversation(iter *gocql.Iter) (*domainchat.Conversation, bool, error) {
	var (
		conv          domainchat.Conversation
		role          string
		convType      string
		status        string
		lastMessageAt time.Time
		startedAt     time.Time
		archivedAt    time.Time
	)
	if !iter.Scan(&conv.ID, &conv.ReferenceCode, &conv.InitiatorID, &conv.InitiatorName, &role,
		&conv.Participants, &convType, &conv.Subject, &conv.PropertyID, &conv.PropertyTitle,
		&status, &conv.LastMessagePreview, &lastMessageAt, &conv.LastMessageBy,
		&conv.TotalMessages, &conv.UnreadCount, &conv.IsStarred, &conv.IsMuted, &startedAt, &archivedAt) {
		return nil, false, nil
	}
	conv.InitiatorRole = domainchat.Role(role)
	conv.Type = domainchat.ConversationType(convType)
	conv.Status = domainchat.ConversationStatus(status)
	conv.LastMessageAt = normalizeTimestamp(lastMessageAt)
	conv.StartedAt = normalizeTimestamp(startedAt)
	conv.ArchivedAt = normalizeTimestamp(archivedAt)
	return &conv, true, nil
}

func (s *ChatStore) scanMessage(q *gocql.Query) (*domainchat.Message, error) {
	var (
		msg         domainchat.Message
		role        string
		msgType     string
		status      string
		attachments []string
		editedAt    time.Time
		createdAt   time.Time
	)
	if err := q.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &role,
		&msg.SenderAvatarURL, &msg.Content, &msgType, &status,
		&msg.PropertyID, &msg.PropertyTitle, &msg.PropertyImageURL, &msg.ReplyToID, &msg.ReplyToPreview,
		&attachments, &msg.IsEdited, &editedAt, &msg.IsDeleted, &msg.IsInternalNote, &msg.ReadBy, &createdAt); err != nil {
		return nil, err
	}
	decoded, err := decodeAttachments(attachments)
	if err != nil {
		return nil, err
	}
	msg.SenderRole = domainchat.Role(role)
	msg.Type = domainchat.MessageType(msgType)
	msg.Status = domainchat.MessageStatus(status)
	msg.Attachments = decoded
	msg.EditedAt = normalizeTimestamp(editedAt)
	msg.CreatedAt = normalizeTimestamp(createdAt)
	return &msg, nil
}

func nextMessage(iter *gocql.Iter) (*domainchat.Message, bool, error) {
	var (
		msg         domainchat.Message
		role        string
		msgType     string
		status      string
		attachments []string
		editedAt    time.Time
		createdAt   time.Time
	)
	if !iter.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &role,
		&msg.SenderAvatarURL, &msg.Content, &msgType, &status,
		&msg.PropertyID, &msg.PropertyTitle, &msg.PropertyImageURL, &msg.ReplyToID, &msg.ReplyToPreview,
		&attachments, &msg.IsEdited, &editedAt, &msg.IsDeleted, &msg.IsInternalNote, &msg.ReadBy, &createdAt) {
		return nil, false, nil
	}
	decoded, err := decodeAttachments(attachments)
	if err != nil {
		return nil, false, err
	}
	msg.SenderRole = domainchat.Role(role)
	msg.Type = domainchat.MessageType(msgType)
	msg.Status = domainchat.MessageStatus(status)
	msg.Attachments = decoded
	msg.EditedAt = normalizeTimestamp(editedAt)
	msg.CreatedAt = normalizeTimestamp(createdAt)
	return &msg, true, nil
}

func encodeAttachments(attachments []domainchat.Attachment) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(attachments))
	for _, a := range attachments {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out = append(out, string(raw))
	}
	return out, nil
}

func decodeAttachments(raw []string) ([]domainchat.Attachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]domainchat.Attachment, 0, len(raw))
	for _, item := range raw {
		var a domainchat.Attachment
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func normalizeTimestamp(t time.Time) time.Time {
	if t.IsZero() || t.Unix() == 0 {
		return time.Time{}
	}
	return t.UTC()
}

func lastActivity(c domainchat.Conversation) time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.StartedAt
}

var _ domainchat.Store = (*ChatStore)(nil)
