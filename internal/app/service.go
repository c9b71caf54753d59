package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"sikap/api/internal/auth"
	"sikap/api/internal/authpw"
	"sikap/api/internal/config"
	"sikap/api/internal/export"
	"sikap/api/internal/rbac"
	"sikap/api/internal/search"
	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

// Session is the server-verified identity of a request. Handlers receive it
// explicitly; it is never read back from client-controlled state.
type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Name         string
	Email        string
	Role         rbac.Role
	Photo        string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) principal() rbac.Principal {
	return rbac.Principal{UserID: s.UserID, Role: s.Role}
}

func (s Session) can(action rbac.Action) bool {
	return rbac.Can(s.Role, action)
}

// DataStore is everything the service reads and writes. Both
// store.PostgresStore and store.MemoryStore implement it.
type DataStore interface {
	Ping(ctx context.Context) error
	EnsureRole(context.Context, string) (store.Role, error)
	GetRoleByName(context.Context, string) (store.Role, error)
	GetRoleByID(context.Context, int64) (store.Role, error)
	ListRoles(context.Context) ([]store.Role, error)
	Stats(context.Context) (store.DashboardStats, error)

	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, int64) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByResetToken(context.Context, string) (store.User, error)
	ListUsers(context.Context, store.ListParams) ([]store.User, int, error)
	UpdateUser(context.Context, store.User) error
	UpdateUserProfile(context.Context, int64, string, string, string) error
	UpdateUserPassword(context.Context, int64, string) error
	SetPasswordResetToken(context.Context, int64, string, time.Time) error
	DeleteUsers(context.Context, []int64) (int64, error)
	SearchContacts(context.Context, store.ContactQuery) ([]store.User, error)
	ListAdmins(context.Context) ([]store.User, error)

	CreateFolder(context.Context, store.Folder) (store.Folder, error)
	GetFolder(context.Context, int64) (store.Folder, error)
	ListFolders(context.Context, store.FolderFilter) ([]store.Folder, int, error)
	ListSubfolders(context.Context, int64) ([]store.Folder, error)
	RenameFolder(context.Context, int64, string) error
	DeleteFolders(context.Context, []int64) ([]string, error)
	ReplaceFolderShares(context.Context, int64, []int64) error
	ListFolderShares(context.Context, int64) ([]store.User, error)

	CreateArchive(context.Context, store.Archive) (store.Archive, error)
	GetArchive(context.Context, int64) (store.Archive, error)
	GetArchives(context.Context, []int64) ([]store.Archive, error)
	ListFolderArchives(context.Context, int64) ([]store.Archive, error)
	DeleteArchives(context.Context, []int64) (int64, error)
	ReplaceArchiveShares(context.Context, int64, []int64) error
	ListArchiveShares(context.Context, int64) ([]store.User, error)
	SearchArchives(context.Context, store.ArchiveQuery) ([]store.Archive, error)

	ListCategories(context.Context, store.ListParams) ([]store.Category, int, error)
	ListAllCategories(context.Context) ([]store.Category, error)
	GetCategory(context.Context, int64) (store.Category, error)
	GetCategoryByName(context.Context, string) (store.Category, error)
	CreateCategory(context.Context, store.Category) (store.Category, error)
	UpdateCategory(context.Context, store.Category) error
	DeleteCategories(context.Context, []int64) (int64, error)

	ListLinks(context.Context, store.LinkFilter) ([]store.Link, int, error)
	ListActiveLinks(context.Context) ([]store.Link, error)
	GetLink(context.Context, int64) (store.Link, error)
	CreateLink(context.Context, store.Link) (store.Link, error)
	UpdateLink(context.Context, store.Link) error
	DeleteLinks(context.Context, []int64) (int64, error)

	CreateMessage(context.Context, store.Message) (store.Message, error)
	GetMessage(context.Context, int64) (store.Message, error)
	ListMessagesBetween(context.Context, int64, int64) ([]store.Message, error)
	ListMessagesFor(context.Context, int64) ([]store.Message, error)
	MarkMessagesRead(context.Context, int64, int64) (int64, error)
	DeleteMessage(context.Context, int64) error

	CreateNotification(context.Context, store.Notification) (store.Notification, error)
	ListNotifications(context.Context, int64, int) ([]store.Notification, error)
	CountUnreadNotifications(context.Context, int64) (int, error)
	MarkNotificationsRead(context.Context, int64) (int64, error)
	DeleteNotifications(context.Context, int64, store.NotificationWindow) (int64, error)

	SessionStore
}

// SessionStore keeps refresh sessions and revoked access token ids. The data
// store implements it; session.RedisStore replaces it when Redis is configured.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, int64, time.Time) error
	LookupRefreshSession(context.Context, string) (int64, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

var (
	_ DataStore = (*store.PostgresStore)(nil)
	_ DataStore = (*store.MemoryStore)(nil)
)

// Notifier delivers in-app notifications after the primary write committed.
type Notifier interface {
	Dispatch(userID int64, title, message, link string)
}

// Mailer sends transactional email.
type Mailer interface {
	IsConfigured() bool
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Deps struct {
	Config   config.Config
	Store    DataStore
	Sessions SessionStore
	Auth     *authpw.Service
	Search   *search.Service
	Files    storage.Storage
	Notifier Notifier
	Mailer   Mailer
	Exports  *export.Service
	Log      zerolog.Logger
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions SessionStore
	auth     *authpw.Service
	search   *search.Service
	files    storage.Storage
	notifier Notifier
	mailer   Mailer
	exports  *export.Service
	log      zerolog.Logger
	now      func() time.Time
}

func New(deps Deps) *Service {
	svc := &Service{
		cfg:      deps.Config,
		store:    deps.Store,
		sessions: deps.Sessions,
		auth:     deps.Auth,
		search:   deps.Search,
		files:    deps.Files,
		notifier: deps.Notifier,
		mailer:   deps.Mailer,
		exports:  deps.Exports,
		log:      deps.Log,
		now:      time.Now,
	}
	if svc.sessions == nil {
		svc.sessions = deps.Store
	}
	if svc.auth == nil {
		svc.auth = authpw.NewService(deps.Store, 0)
	}
	if svc.search == nil {
		svc.search = search.NewService(nil, deps.Store, deps.Log)
	}
	if svc.exports == nil {
		svc.exports = export.NewService(deps.Store)
	}
	if svc.notifier == nil {
		svc.notifier = discardNotifier{}
	}
	return svc
}

type discardNotifier struct{}

func (discardNotifier) Dispatch(int64, string, string, string) {}

// Bootstrap seeds the roles and the default admin account.
func (s *Service) Bootstrap(ctx context.Context) error {
	var adminRole store.Role
	for _, name := range []rbac.Role{rbac.RoleAdmin, rbac.RoleEditor, rbac.RoleViewer} {
		role, err := s.store.EnsureRole(ctx, string(name))
		if err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
		if name == rbac.RoleAdmin {
			adminRole = role
		}
	}

	if s.cfg.SeedAdminEmail == "" {
		return nil
	}
	_, err := s.store.GetUserByEmail(ctx, s.cfg.SeedAdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup seed admin: %w", err)
	}
	hash, err := s.auth.HashPassword(s.cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	_, err = s.store.CreateUser(ctx, store.User{
		Name:         "Administrator",
		Email:        s.cfg.SeedAdminEmail,
		PasswordHash: hash,
		RoleID:       adminRole.ID,
		IsActive:     true,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.log.Info().Str("email", s.cfg.SeedAdminEmail).Msg("seeded default admin")
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReindexSearch pushes every archive into the search index.
func (s *Service) ReindexSearch(ctx context.Context) error {
	return s.search.Reindex(ctx)
}

// Sessions

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := uuid.NewString()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret),
		auth.NewClaims(user.ID, user.Name, user.Role, user.Photo, jti, expiresAt))
	if err != nil {
		return Session{}, err
	}

	refresh := uuid.NewString() + uuid.NewString()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         rbac.Normalize(user.Role),
		Photo:        user.Photo,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken verifies an access token and reloads its user. Revoked
// tokens and inactive or deleted users are rejected.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      rbac.Normalize(user.Role),
		Photo:     user.Photo,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Register(ctx context.Context, name, email, password string) (map[string]any, error) {
	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, authError(err)
	}
	return userPayload(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, authError(err)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token into a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, errUnauthorized
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, errUnauthorized
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil || !user.IsActive {
		return Session{}, errUnauthorized
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.Warn().Err(err).Msg("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn().Err(err).Msg("revoke refresh token")
		}
	}
	return nil
}

const forgotPasswordMessage = "If the email is registered, a reset link has been sent"

// ForgotPassword answers identically whether or not the email exists. Only in
// development mode without SMTP is the token echoed back.
func (s *Service) ForgotPassword(ctx context.Context, email string) (map[string]any, error) {
	response := map[string]any{"message": forgotPasswordMessage}
	ticket, ok, err := s.auth.RequestPasswordReset(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return response, nil
	}

	if s.mailer == nil || !s.mailer.IsConfigured() {
		if s.cfg.DevMode() {
			response["devResetToken"] = ticket.Token
		} else {
			s.log.Warn().Int64("user_id", ticket.User.ID).Msg("password reset requested but SMTP is not configured")
		}
		return response, nil
	}
	resetURL := s.cfg.AppBaseURL + "/reset-password?token=" + ticket.Token
	if err := s.mailer.SendPasswordResetEmail(ticket.User.Email, ticket.User.Name, resetURL); err != nil {
		s.log.Error().Err(err).Int64("user_id", ticket.User.ID).Msg("send password reset email")
	}
	return response, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if _, err := s.auth.ResetPassword(ctx, token, password); err != nil {
		return authError(err)
	}
	return nil
}

func authError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return validationError(err.Error())
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case errors.Is(err, authpw.ErrAccountInactive):
		return domainError(http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive", nil)
	case errors.Is(err, authpw.ErrInvalidResetToken):
		return domainError(http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired reset token", nil)
	case errors.Is(err, authpw.ErrWrongPassword):
		return domainError(http.StatusBadRequest, "INVALID_CURRENT_PASSWORD", "Current password is incorrect", nil)
	default:
		return err
	}
}
