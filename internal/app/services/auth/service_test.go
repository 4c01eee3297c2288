package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "nestly/internal/domain/chat"
	domainidentity "nestly/internal/domain/identity"
	"nestly/internal/infra/security"
	"nestly/internal/infra/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		Users:      memory.NewUserRepository(),
		Sessions:   memory.NewSessionStore(),
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: time.Hour,
	}
}

func TestRegisterAndResolve(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{
		Email:    "  Alice@Example.COM ",
		Name:     "Alice",
		Password: "correct horse",
		Role:     domainchat.RoleAgent,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Token == "" {
		t.Fatal("expected session token")
	}
	if result.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", result.User.Email)
	}
	if result.User.Role != domainchat.RoleAgent {
		t.Fatalf("unexpected role %q", result.User.Role)
	}
	if result.User.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear")
	}

	user, err := svc.ResolveToken(ctx, result.Token)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != result.User.ID {
		t.Fatalf("token resolved to wrong user: %q", user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterParams{Name: "x", Password: "long enough"}); !errors.Is(err, domainidentity.ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Password: "long enough"}); !errors.Is(err, domainidentity.ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "x", Password: "short"}); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "x", Password: "long enough"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Email: "A@B.C", Name: "y", Password: "long enough"}); !errors.Is(err, domainidentity.ErrEmailAlreadyUsed) {
		t.Fatalf("expected ErrEmailAlreadyUsed, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "x", Password: "long enough"}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Login(ctx, "a@b.c", "long enough")
	if err != nil {
		t.Fatal(err)
	}
	if result.Token == "" {
		t.Fatal("expected session token")
	}

	if _, err := svc.Login(ctx, "a@b.c", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@b.c", "long enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "x", Password: "long enough"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, result.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ResolveToken(ctx, result.Token); !errors.Is(err, domainidentity.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "x", Password: "long enough"})
	if err != nil {
		t.Fatal(err)
	}
	// Age the session past its deadline.
	if err := svc.Sessions.Save(ctx, &domainidentity.Session{
		Token:     result.Token,
		UserID:    result.User.ID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ResolveToken(ctx, result.Token); !errors.Is(err, domainidentity.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
