package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"sikap/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	for _, role := range []string{"admin", "editor", "viewer"} {
		if _, err := mem.EnsureRole(context.Background(), role); err != nil {
			t.Fatalf("EnsureRole(%s): %v", role, err)
		}
	}
	return NewService(mem, bcrypt.MinCost), mem
}

func TestSignUp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Name: "Ana", Email: "Ana@Example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Role != "viewer" || !user.IsActive || user.Email != "ana@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "secret1" {
		t.Fatal("password stored in plaintext")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate SignUp error = %v, want ErrEmailTaken", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"missing name", SignUpRequest{Email: "a@b.c", Password: "secret1"}, ErrMissingFields},
		{"missing email", SignUpRequest{Name: "A", Password: "secret1"}, ErrMissingFields},
		{"short password", SignUpRequest{Name: "A", Email: "a@b.c", Password: "12345"}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	active, err := svc.SignUp(ctx, SignUpRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	inactive, err := svc.SignUp(ctx, SignUpRequest{Name: "Ina", Email: "ina@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	inactive.IsActive = false
	if err := mem.UpdateUser(ctx, inactive); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"valid", "ANA@example.com", "secret1", nil},
		{"wrong password", "ana@example.com", "nope", ErrInvalidCredentials},
		{"unknown email", "ghost@example.com", "secret1", ErrInvalidCredentials},
		{"inactive correct password", "ina@example.com", "secret1", ErrAccountInactive},
		{"inactive wrong password", "ina@example.com", "nope", ErrInvalidCredentials},
		{"empty", "", "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.SignIn(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SignIn() error = %v, want %v", err, tt.want)
			}
			if tt.want == nil && user.ID != active.ID {
				t.Fatalf("SignIn() user = %d, want %d", user.ID, active.ID)
			}
		})
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	mem.Now = func() time.Time { return now }

	if _, err := svc.SignUp(ctx, SignUpRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, ok, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
	if err != nil || ok {
		t.Fatalf("unknown email: ok=%v err=%v, want silent miss", ok, err)
	}

	ticket, ok, err := svc.RequestPasswordReset(ctx, "ana@example.com")
	if err != nil || !ok {
		t.Fatalf("RequestPasswordReset: ok=%v err=%v", ok, err)
	}
	if len(ticket.Token) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(ticket.Token))
	}
	if !ticket.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %v, want %v", ticket.ExpiresAt, now.Add(time.Hour))
	}

	if _, err := svc.ResetPassword(ctx, ticket.Token, "123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password error = %v", err)
	}
	if _, err := svc.ResetPassword(ctx, "bogus", "newsecret"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("bogus token error = %v", err)
	}
	if _, err := svc.ResetPassword(ctx, ticket.Token, "newsecret"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.ResetPassword(ctx, ticket.Token, "another1"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("reused token error = %v, want ErrInvalidResetToken", err)
	}

	if _, err := svc.SignIn(ctx, "ana@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := svc.SignIn(ctx, "ana@example.com", "newsecret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	stale, _, err := svc.RequestPasswordReset(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	now = now.Add(ResetTokenTTL + time.Minute)
	if _, err := svc.ResetPassword(ctx, stale.Token, "latersecret"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expired token error = %v, want ErrInvalidResetToken", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "wrong", "newsecret"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current password error = %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "secret1", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password error = %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "secret1", "newsecret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.SignIn(ctx, "ana@example.com", "newsecret"); err != nil {
		t.Fatalf("SignIn with new password: %v", err)
	}
}
