package memory

import (
	"context"
	"sync"

	domainidentity "nestly/internal/domain/identity"
)

// UserRepository is an in-memory identity.Repository.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domainidentity.User
	byEmail map[string]*domainidentity.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domainidentity.User),
		byEmail: make(map[string]*domainidentity.User),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainidentity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domainidentity.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainidentity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byEmail[domainidentity.NormalizeEmail(email)]
	if !ok {
		return nil, domainidentity.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domainidentity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[domainidentity.NormalizeEmail(stored.Email)] = &stored
	return nil
}

// SessionStore is an in-memory identity.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domainidentity.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domainidentity.Session)}
}

func (s *SessionStore) ByToken(ctx context.Context, token string) (*domainidentity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, domainidentity.ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

func (s *SessionStore) Save(ctx context.Context, session *domainidentity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	s.sessions[stored.Token] = &stored
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
