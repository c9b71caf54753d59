// Package authpw provides email/password authentication and password reset.
package authpw

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"sikap/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	ResetTokenTTL     = time.Hour
	DefaultRole       = "viewer"
)

var (
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash []byte
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	GetUserByResetToken(ctx context.Context, token string) (store.User, error)
	GetRoleByName(ctx context.Context, name string) (store.Role, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	SetPasswordResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
}

// NewService creates a new auth service. A cost of zero uses bcrypt's default.
func NewService(users UserStore, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("sikap-placeholder"), cost)
	return &Service{
		store:     users,
		cost:      cost,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// HashPassword hashes a plaintext password with the service cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

// SignUp creates an active viewer account.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return store.User{}, ErrMissingFields
	}
	if len(req.Password) < MinPasswordLength {
		return store.User{}, ErrWeakPassword
	}

	role, err := s.store.GetRoleByName(ctx, DefaultRole)
	if err != nil {
		return store.User{}, fmt.Errorf("resolve default role: %w", err)
	}
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return store.User{}, err
	}

	user, err := s.store.CreateUser(ctx, store.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrEmailTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn authenticates a user. Unknown emails and wrong passwords produce the
// same error; an inactive account is reported only after the password matched.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return store.User{}, ErrAccountInactive
	}
	return user, nil
}

// ResetTicket is a freshly issued password reset token.
type ResetTicket struct {
	User      store.User
	Token     string
	ExpiresAt time.Time
}

// RequestPasswordReset issues a reset token. It returns ok=false without an
// error when the email is unknown so callers can respond identically.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (ResetTicket, bool, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return ResetTicket{}, false, nil
	}
	if err != nil {
		return ResetTicket{}, false, fmt.Errorf("lookup user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return ResetTicket{}, false, fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.now().Add(ResetTokenTTL)
	if err := s.store.SetPasswordResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return ResetTicket{}, false, fmt.Errorf("store reset token: %w", err)
	}
	return ResetTicket{User: user, Token: token, ExpiresAt: expiresAt}, true, nil
}

// ResetPassword sets a new password using an unexpired reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (store.User, error) {
	if strings.TrimSpace(token) == "" {
		return store.User{}, ErrInvalidResetToken
	}
	if len(newPassword) < MinPasswordLength {
		return store.User{}, ErrWeakPassword
	}

	user, err := s.store.GetUserByResetToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidResetToken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return store.User{}, fmt.Errorf("update password: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
