package chat

import "time"

// MessageType classifies a message body.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// MessageStatus is the read state of a message, not its transport state.
// The only transition is sent -> read.
type MessageStatus string

const (
	MessageSent MessageStatus = "sent"
	MessageRead MessageStatus = "read"
)

// Attachment references an uploaded file carried with a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is one unit of content within a conversation. Deletion is a
// visibility flag, never erasure: soft-deleted messages are excluded from
// list queries but remain fetchable by id.
type Message struct {
	ID             string
	ConversationID string

	SenderID        string
	SenderName      string
	SenderRole      Role
	SenderAvatarURL string

	Content string
	Type    MessageType
	Status  MessageStatus

	PropertyID       string
	PropertyTitle    string
	PropertyImageURL string

	ReplyToID      string
	ReplyToPreview string

	Attachments []Attachment

	IsEdited       bool
	EditedAt       time.Time
	IsDeleted      bool
	IsInternalNote bool

	// ReadBy holds the single reader that flipped Status to read. This only
	// models two-participant threads correctly; group reads would need a
	// per-user read record instead.
	ReadBy string

	CreatedAt time.Time
}
