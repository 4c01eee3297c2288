package dto

import (
	"time"

	domainchat "nestly/internal/domain/chat"
)

// Conversation describes a thread plus its denormalized summary fields.
type Conversation struct {
	ID                 string    `json:"id"`
	ReferenceCode      string    `json:"reference_code,omitempty"`
	InitiatorID        string    `json:"initiator_id"`
	InitiatorName      string    `json:"initiator_name,omitempty"`
	InitiatorRole      string    `json:"initiator_role,omitempty"`
	Participants       []string  `json:"participants"`
	Type               string    `json:"type"`
	Subject            string    `json:"subject,omitempty"`
	PropertyID         string    `json:"property_id,omitempty"`
	PropertyTitle      string    `json:"property_title,omitempty"`
	Status             string    `json:"status"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at,omitempty"`
	LastMessageBy      string    `json:"last_message_by,omitempty"`
	TotalMessages      int       `json:"total_messages"`
	UnreadCount        int       `json:"unread_count"`
	IsStarred          bool      `json:"is_starred"`
	IsMuted            bool      `json:"is_muted"`
	StartedAt          time.Time `json:"started_at"`
	ArchivedAt         time.Time `json:"archived_at,omitempty"`
}

// ConversationList is one page of a conversation listing.
type ConversationList struct {
	Items   []Conversation `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID               string                  `json:"id"`
	ConversationID   string                  `json:"conversation_id"`
	SenderID         string                  `json:"sender_id"`
	SenderName       string                  `json:"sender_name,omitempty"`
	SenderRole       string                  `json:"sender_role,omitempty"`
	SenderAvatarURL  string                  `json:"sender_avatar_url,omitempty"`
	Content          string                  `json:"content"`
	Type             string                  `json:"type"`
	Status           string                  `json:"status"`
	PropertyID       string                  `json:"property_id,omitempty"`
	PropertyTitle    string                  `json:"property_title,omitempty"`
	PropertyImageURL string                  `json:"property_image_url,omitempty"`
	ReplyToID        string                  `json:"reply_to_id,omitempty"`
	ReplyToPreview   string                  `json:"reply_to_preview,omitempty"`
	Attachments      []domainchat.Attachment `json:"attachments,omitempty"`
	IsEdited         bool                    `json:"is_edited,omitempty"`
	EditedAt         time.Time               `json:"edited_at,omitempty"`
	IsDeleted        bool                    `json:"is_deleted,omitempty"`
	IsInternalNote   bool                    `json:"is_internal_note,omitempty"`
	ReadBy           string                  `json:"read_by,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// ChatMessageList is a chronologically ordered message page.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

// PropertyInquiry is the created pair returned from a listing-page contact.
type PropertyInquiry struct {
	Conversation Conversation `json:"conversation"`
	Message      ChatMessage  `json:"message"`
}

// FromConversation maps the domain aggregate to its wire shape.
func FromConversation(c domainchat.Conversation) Conversation {
	return Conversation{
		ID:                 c.ID,
		ReferenceCode:      c.ReferenceCode,
		InitiatorID:        c.InitiatorID,
		InitiatorName:      c.InitiatorName,
		InitiatorRole:      string(c.InitiatorRole),
		Participants:       append([]string(nil), c.Participants...),
		Type:               string(c.Type),
		Subject:            c.Subject,
		PropertyID:         c.PropertyID,
		PropertyTitle:      c.PropertyTitle,
		Status:             string(c.Status),
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt,
		LastMessageBy:      c.LastMessageBy,
		TotalMessages:      c.TotalMessages,
		UnreadCount:        c.UnreadCount,
		IsStarred:          c.IsStarred,
		IsMuted:            c.IsMuted,
		StartedAt:          c.StartedAt,
		ArchivedAt:         c.ArchivedAt,
	}
}

// FromMessage maps the domain message to its wire shape.
func FromMessage(m domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		SenderRole:       string(m.SenderRole),
		SenderAvatarURL:  m.SenderAvatarURL,
		Content:          m.Content,
		Type:             string(m.Type),
		Status:           string(m.Status),
		PropertyID:       m.PropertyID,
		PropertyTitle:    m.PropertyTitle,
		PropertyImageURL: m.PropertyImageURL,
		ReplyToID:        m.ReplyToID,
		ReplyToPreview:   m.ReplyToPreview,
		Attachments:      append([]domainchat.Attachment(nil), m.Attachments...),
		IsEdited:         m.IsEdited,
		EditedAt:         m.EditedAt,
		IsDeleted:        m.IsDeleted,
		IsInternalNote:   m.IsInternalNote,
		ReadBy:           m.ReadBy,
		CreatedAt:        m.CreatedAt,
	}
}
