package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "nestly/internal/domain/chat"
)

var (
	ErrInitiatorRequired   = errors.New("chat: initiator is required")
	ErrParticipantRequired = errors.New("chat: at least one other participant is required")
)

const defaultConversationPageSize = 20

// Directory lists, filters and mutates the conversations visible to a user.
type Directory struct {
	Store  domainchat.Store
	Events EventPublisher
	Badges BadgeCache
	Logger *slog.Logger
}

// ListOptions narrows a conversation listing.
type ListOptions struct {
	Type   domainchat.ConversationType
	Status domainchat.ConversationStatus
	Search string
	Limit  int
	Offset int
}

// ConversationPage is one page of a user's conversation list, most recently
// active first.
type ConversationPage struct {
	Items   []domainchat.Conversation
	Total   int
	HasMore bool
}

// List returns conversations where the user is the initiator or a
// participant, ordered by last activity descending.
func (d *Directory) List(ctx context.Context, userID string, opts ListOptions) (*ConversationPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultConversationPageSize
	}
	items, total, err := d.Store.ListConversations(ctx, domainchat.ConversationFilter{
		UserID: userID,
		Type:   opts.Type,
		Status: opts.Status,
		Search: opts.Search,
		Limit:  limit,
		Offset: opts.Offset,
	})
	if err != nil {
		d.logError("list conversations failed", err, "user_id", userID)
		return nil, err
	}
	return &ConversationPage{
		Items:   items,
		Total:   total,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

// GetOne fetches a conversation by id. A missing conversation is normal
// control flow for callers, so it returns (nil, nil) instead of an error.
func (d *Directory) GetOne(ctx context.Context, conversationID string) (*domainchat.Conversation, error) {
	conv, err := d.Store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, nil
		}
		d.logError("get conversation failed", err, "conversation_id", conversationID)
		return nil, err
	}
	return conv, nil
}

// CreateParams describes a new conversation.
type CreateParams struct {
	InitiatorID   string
	InitiatorName string
	InitiatorRole domainchat.Role
	Participants  []string
	Type          domainchat.ConversationType
	Subject       string
	PropertyID    string
	PropertyTitle string
}

// Create stores a new conversation with zeroed summary fields and a
// best-effort human-readable reference code for support lookups.
func (d *Directory) Create(ctx context.Context, params CreateParams) (*domainchat.Conversation, error) {
	initiator := strings.TrimSpace(params.InitiatorID)
	if initiator == "" {
		return nil, ErrInitiatorRequired
	}
	participants := normalizeParticipants(append([]string{initiator}, params.Participants...))
	if len(participants) < 2 {
		return nil, ErrParticipantRequired
	}
	convType := params.Type
	if convType == "" {
		convType = domainchat.TypeGeneral
	}
	conv := &domainchat.Conversation{
		ReferenceCode: newReferenceCode(),
		InitiatorID:   initiator,
		InitiatorName: strings.TrimSpace(params.InitiatorName),
		InitiatorRole: params.InitiatorRole,
		Participants:  participants,
		Type:          convType,
		Subject:       strings.TrimSpace(params.Subject),
		PropertyID:    params.PropertyID,
		PropertyTitle: params.PropertyTitle,
		Status:        domainchat.StatusActive,
		LastMessageBy: initiator,
	}
	created, err := d.Store.CreateConversation(ctx, conv)
	if err != nil {
		d.logError("create conversation failed", err, "initiator_id", initiator)
		return nil, err
	}
	d.publish(ctx, Event{
		Type:           EventConversationCreated,
		ConversationID: created.ID,
		ActorID:        initiator,
		At:             created.StartedAt,
	})
	return created, nil
}

// GetOrCreate finds the conversation connecting userA and userB, optionally
// scoped to a property, creating one when none exists. The lookup and the
// create are two separate calls, so two concurrent callers can still race a
// duplicate into existence; per-pair traffic is low enough to accept that.
func (d *Directory) GetOrCreate(ctx context.Context, params CreateParams, otherUserID string) (*domainchat.Conversation, error) {
	userA := strings.TrimSpace(params.InitiatorID)
	userB := strings.TrimSpace(otherUserID)
	if userA == "" {
		return nil, ErrInitiatorRequired
	}
	if userB == "" || userB == userA {
		return nil, ErrParticipantRequired
	}
	existing, _, err := d.Store.ListConversations(ctx, domainchat.ConversationFilter{UserID: userA})
	if err != nil {
		d.logError("get-or-create lookup failed", err, "user_id", userA)
		return nil, err
	}
	for _, conv := range existing {
		if conv.IsBetween(userA, userB, params.PropertyID) {
			found := conv
			return &found, nil
		}
	}
	params.Participants = append(params.Participants, userB)
	return d.Create(ctx, params)
}

// Archive transitions a conversation to archived and stamps the time.
func (d *Directory) Archive(ctx context.Context, conversationID string) error {
	status := domainchat.StatusArchived
	now := time.Now().UTC()
	if _, err := d.Store.UpdateConversation(ctx, conversationID, domainchat.ConversationPatch{
		Status:     &status,
		ArchivedAt: &now,
	}); err != nil {
		d.logError("archive conversation failed", err, "conversation_id", conversationID)
		return err
	}
	return nil
}

// ToggleStar sets the shared starred flag. The flag lives on the
// conversation, not per participant.
func (d *Directory) ToggleStar(ctx context.Context, conversationID string, starred bool) (*domainchat.Conversation, error) {
	conv, err := d.Store.UpdateConversation(ctx, conversationID, domainchat.ConversationPatch{IsStarred: &starred})
	if err != nil {
		d.logError("toggle star failed", err, "conversation_id", conversationID)
		return nil, err
	}
	return conv, nil
}

// ToggleMute sets the shared muted flag.
func (d *Directory) ToggleMute(ctx context.Context, conversationID string, muted bool) (*domainchat.Conversation, error) {
	conv, err := d.Store.UpdateConversation(ctx, conversationID, domainchat.ConversationPatch{IsMuted: &muted})
	if err != nil {
		d.logError("toggle mute failed", err, "conversation_id", conversationID)
		return nil, err
	}
	return conv, nil
}

// UnreadCountForUser sums unread counters across the user's conversations
// for badge rendering. The scan is client-side, so the badge cache fronts it
// when configured.
func (d *Directory) UnreadCountForUser(ctx context.Context, userID string) (int, error) {
	if d.Badges != nil {
		if total, ok, err := d.Badges.GetUnreadTotal(ctx, userID); err == nil && ok {
			return total, nil
		} else if err != nil {
			d.logWarn("badge cache read failed", err, "user_id", userID)
		}
	}
	conversations, _, err := d.Store.ListConversations(ctx, domainchat.ConversationFilter{UserID: userID})
	if err != nil {
		d.logError("unread count scan failed", err, "user_id", userID)
		return 0, err
	}
	total := 0
	for _, conv := range conversations {
		if conv.UnreadCount > 0 {
			total += conv.UnreadCount
		}
	}
	if d.Badges != nil {
		if err := d.Badges.SetUnreadTotal(ctx, userID, total); err != nil {
			d.logWarn("badge cache write failed", err, "user_id", userID)
		}
	}
	return total, nil
}

func (d *Directory) publish(ctx context.Context, event Event) {
	if d.Events == nil {
		return
	}
	if err := d.Events.PublishChatEvent(ctx, event); err != nil {
		d.logWarn("chat event publish failed", err, "event", event.Type, "conversation_id", event.ConversationID)
	}
}

func (d *Directory) logError(msg string, err error, attrs ...any) {
	if d.Logger != nil {
		d.Logger.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}

func (d *Directory) logWarn(msg string, err error, attrs ...any) {
	if d.Logger != nil {
		d.Logger.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}

// newReferenceCode derives a display code from the current time plus a short
// random suffix. Uniqueness is best-effort; the code is not a key.
func newReferenceCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("NST-%d-%s", time.Now().UnixMilli(), suffix)
}

func normalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
