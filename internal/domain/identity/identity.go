package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	domainchat "nestly/internal/domain/chat"
)

var (
	ErrEmailRequired    = errors.New("identity: email is required")
	ErrNameRequired     = errors.New("identity: name is required")
	ErrEmailAlreadyUsed = errors.New("identity: email already used")
	ErrUserNotFound     = errors.New("identity: user not found")
	ErrTokenRequired    = errors.New("identity: token is required")
	ErrSessionNotFound  = errors.New("identity: session not found")
	ErrSessionExpired   = errors.New("identity: session expired")
)

// User is a marketplace account. The chat component only needs the stable
// id, display name, role and avatar from here.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         domainchat.Role
	AvatarURL    string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository stores users.
type Repository interface {
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

// Session is an opaque bearer token bound to a user.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its TTL.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore stores sessions by token.
type SessionStore interface {
	ByToken(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, token string) error
}

// NormalizeEmail lowercases and trims an address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
