package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "nestly/internal/domain/chat"
	domainidentity "nestly/internal/domain/identity"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenGenerator interface {
	NewToken() (string, error)
}

// Service issues and resolves the opaque sessions that give the chat
// component its stable caller identity.
type Service struct {
	Users      domainidentity.Repository
	Sessions   domainidentity.SessionStore
	Passwords  PasswordHasher
	Tokens     TokenGenerator
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Role     domainchat.Role
}

type AuthResult struct {
	User  *domainidentity.User
	Token string
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	email := domainidentity.NormalizeEmail(params.Email)
	if email == "" {
		return nil, domainidentity.ErrEmailRequired
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, domainidentity.ErrNameRequired
	}
	if len(params.Password) < 8 {
		return nil, ErrPasswordTooShort
	}
	if existing, err := s.Users.ByEmail(ctx, email); err == nil && existing != nil {
		return nil, domainidentity.ErrEmailAlreadyUsed
	} else if err != nil && !errors.Is(err, domainidentity.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	role := params.Role
	if role == "" {
		role = domainchat.RoleUser
	}
	user := &domainidentity.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", "user_id", user.ID, "role", string(user.Role))
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Users.ByEmail(ctx, domainidentity.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domainidentity.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.Passwords.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainidentity.ErrTokenRequired
	}
	return s.Sessions.Delete(ctx, token)
}

// ResolveToken maps a bearer token to its user, enforcing expiry.
func (s *Service) ResolveToken(ctx context.Context, token string) (*domainidentity.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainidentity.ErrTokenRequired
	}
	session, err := s.Sessions.ByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		_ = s.Sessions.Delete(ctx, token)
		return nil, domainidentity.ErrSessionExpired
	}
	return s.Users.ByID(ctx, session.UserID)
}

func (s *Service) issueSession(ctx context.Context, userID string) (string, error) {
	token, err := s.Tokens.NewToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	ttl := s.SessionTTL
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	session := &domainidentity.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}
