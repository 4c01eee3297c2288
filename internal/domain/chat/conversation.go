package chat

import (
	"strings"
	"time"
)

// Role identifies what kind of account a participant holds.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleAgency Role = "agency"
	RoleAdmin  Role = "admin"
)

// ConversationType classifies why a thread exists.
type ConversationType string

const (
	TypeInquiry ConversationType = "inquiry"
	TypeGeneral ConversationType = "general"
	TypeSupport ConversationType = "support"
)

// ConversationStatus is the lifecycle state of a thread.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusResolved ConversationStatus = "resolved"
)

// Conversation is a persistent thread between an initiator and one or more
// participants, optionally scoped to a property listing. The lastMessage*
// fields, TotalMessages and UnreadCount are denormalized copies maintained on
// every send so conversation lists render without joining into messages.
type Conversation struct {
	ID            string
	ReferenceCode string

	InitiatorID   string
	InitiatorName string
	InitiatorRole Role
	Participants  []string

	Type    ConversationType
	Subject string

	PropertyID    string
	PropertyTitle string

	Status ConversationStatus

	LastMessagePreview string
	LastMessageAt      time.Time
	LastMessageBy      string
	TotalMessages      int
	UnreadCount        int

	IsStarred bool
	IsMuted   bool

	StartedAt  time.Time
	ArchivedAt time.Time
}

// HasParticipant reports whether the user may read or write the thread,
// either as the initiator or as a listed participant.
func (c Conversation) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if c.InitiatorID == userID {
		return true
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsBetween reports whether the thread connects exactly the given pair,
// in either initiator/participant direction, and matches the property scope
// when one is supplied.
func (c Conversation) IsBetween(userA, userB, propertyID string) bool {
	if propertyID != "" && c.PropertyID != propertyID {
		return false
	}
	if c.InitiatorID == userA && containsID(c.Participants, userB) {
		return true
	}
	return c.InitiatorID == userB && containsID(c.Participants, userA)
}

func containsID(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// MatchesSearch performs the case-insensitive substring match used by the
// conversation list: OR across subject, last message preview and initiator
// name.
func (c Conversation) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{c.Subject, c.LastMessagePreview, c.InitiatorName} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
