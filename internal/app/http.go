package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"sikap/api/internal/auth"
	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

const sessionCookie = "session"

type HTTPOptions struct {
	CORSOrigin string
	// UploadDir is served under storage.PublicPrefix when files live on local disk.
	UploadDir string
	// Metrics exposes Prometheus request metrics on /metrics.
	Metrics bool
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	Log           zerolog.Logger
}

type HTTPServer struct {
	service *Service
	opts    HTTPOptions
	log     zerolog.Logger
	engine  *gin.Engine
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	s := &HTTPServer{service: service, opts: opts, log: opts.Log}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.withMiddleware())
	if opts.Metrics {
		p := ginprometheus.NewWithConfig(ginprometheus.Config{
			Subsystem: "gin",
		})
		p.Use(engine)
	}
	// Uploaded files are public by URL. Keys carry a random uuid prefix, so
	// access control on archives covers metadata and listings only.
	if opts.UploadDir != "" {
		engine.Static(strings.TrimSuffix(storage.PublicPrefix, "/"), opts.UploadDir)
	}
	s.engine = engine
	s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// sessionHandler receives the verified session explicitly.
type sessionHandler func(c *gin.Context, session Session)

func (s *HTTPServer) authed(h sessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := s.requireSession(c)
		if !ok {
			return
		}
		c.Set("user_id", session.UserID)
		h(c, session)
	}
}

func (s *HTTPServer) routes() {
	r := s.engine
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.HEAD("/health", s.handleHealth)
	api.GET("/ready", s.handleReady)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/refresh", s.handleRefresh)
	authGroup.POST("/logout", s.handleLogout)
	authGroup.GET("/session", s.handleSession)
	authGroup.POST("/forgot-password", s.handleForgotPassword)
	authGroup.POST("/reset-password", s.handleResetPassword)

	api.PUT("/profile", s.authed(s.handleUpdateProfile))
	api.PUT("/profile/password", s.authed(s.handleChangePassword))

	users := api.Group("/users")
	users.GET("", s.authed(s.handleListUsers))
	users.POST("", s.authed(s.handleCreateUser))
	users.POST("/bulk-delete", s.authed(s.handleBulkDeleteUsers))
	users.POST("/import", s.authed(s.handleImportUsers))
	users.GET("/:id", s.authed(s.handleGetUser))
	users.PUT("/:id", s.authed(s.handleUpdateUser))
	users.DELETE("/:id", s.authed(s.handleDeleteUser))

	folders := api.Group("/folders")
	folders.GET("", s.authed(s.handleListFolders))
	folders.POST("", s.authed(s.handleCreateFolder))
	folders.POST("/bulk-delete", s.authed(s.handleBulkDeleteFolders))
	folders.GET("/:id", s.authed(s.handleGetFolder))
	folders.PUT("/:id", s.authed(s.handleUpdateFolder))
	folders.DELETE("/:id", s.authed(s.handleDeleteFolder))
	folders.GET("/:id/shares", s.authed(s.handleFolderShares))
	folders.PUT("/:id/shares", s.authed(s.handleShareFolder))

	archives := api.Group("/archives")
	archives.POST("", s.authed(s.handleUploadArchive))
	archives.GET("/search", s.authed(s.handleSearchArchives))
	archives.POST("/bulk-delete", s.authed(s.handleBulkDeleteArchives))
	archives.GET("/:id", s.authed(s.handleGetArchive))
	archives.DELETE("/:id", s.authed(s.handleDeleteArchive))
	archives.GET("/:id/shares", s.authed(s.handleArchiveShares))
	archives.PUT("/:id/shares", s.authed(s.handleShareArchive))

	categories := api.Group("/categories")
	categories.GET("", s.authed(s.handleListCategories))
	categories.POST("", s.authed(s.handleCreateCategory))
	categories.POST("/bulk-delete", s.authed(s.handleBulkDeleteCategories))
	categories.GET("/export", s.authed(s.handleExportCategories))
	categories.GET("/export.pdf", s.authed(s.handleExportLinkDirectory))
	categories.GET("/:id", s.authed(s.handleGetCategory))
	categories.PUT("/:id", s.authed(s.handleUpdateCategory))
	categories.DELETE("/:id", s.authed(s.handleDeleteCategory))

	links := api.Group("/links")
	links.GET("", s.authed(s.handleListLinks))
	links.POST("", s.authed(s.handleCreateLink))
	links.POST("/bulk-delete", s.authed(s.handleBulkDeleteLinks))
	links.POST("/import", s.authed(s.handleImportLinks))
	links.GET("/:id", s.authed(s.handleGetLink))
	links.PUT("/:id", s.authed(s.handleUpdateLink))
	links.DELETE("/:id", s.authed(s.handleDeleteLink))
	api.GET("/landing/links", s.handleLandingLinks)

	messages := api.Group("/messages")
	messages.POST("", s.authed(s.handleSendMessage))
	messages.GET("", s.authed(s.handleMessages))
	messages.GET("/conversations", s.authed(s.handleConversations))
	messages.PUT("/read", s.authed(s.handleMarkMessagesRead))
	messages.GET("/contacts", s.authed(s.handleContacts))
	messages.GET("/admins", s.authed(s.handleAdmins))
	messages.DELETE("/:id", s.authed(s.handleDeleteMessage))

	notifications := api.Group("/notifications")
	notifications.GET("", s.authed(s.handleListNotifications))
	notifications.PUT("/read", s.authed(s.handleMarkNotificationsRead))
	notifications.DELETE("", s.authed(s.handleDeleteNotifications))

	api.GET("/dashboard/stats", s.authed(s.handleDashboardStats))
	api.GET("/contents/recent", s.authed(s.handleRecentContents))
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(c, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(c *gin.Context) (Session, bool) {
	token := requestToken(c)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("session lookup failed")
		writeError(c, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		started := time.Now()
		setCORSHeaders(c.Writer.Header(), s.opts.CORSOrigin)
		c.Header("X-Request-ID", requestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
		} else {
			c.Next()
		}

		event := s.log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Int64("user_id", c.GetInt64("user_id")).
			Msg("request")
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(c, status, response)
	c.Abort()
}

// fail maps err to a response. Internal errors are logged and hidden.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", c.GetString("request_id")).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	writeError(c, status, code, message, details)
}

func (s *HTTPServer) respond(c *gin.Context, payload any, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, payload)
}

func decodeBody(c *gin.Context, target any) error {
	if c.Request.Body == nil {
		return nil
	}
	defer c.Request.Body.Close()
	decoder := json.NewDecoder(c.Request.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// bind decodes the JSON body or writes a 400.
func bind(c *gin.Context, target any) bool {
	if err := decodeBody(c, target); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func requestToken(c *gin.Context) string {
	if token := bearerToken(c.Request); token != "" {
		return token
	}
	token, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return token
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

// pathID reads the :id route parameter or writes a 400.
func pathID(c *gin.Context) (int64, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid id", nil)
		return 0, false
	}
	return id, true
}

// optionalID reads an optional numeric query parameter.
func optionalID(c *gin.Context, name string) (*int64, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return nil, true
	}
	id, err := parseID(value)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid "+name, nil)
		return nil, false
	}
	return &id, true
}

func listParams(c *gin.Context) store.ListParams {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return store.ListParams{Search: strings.TrimSpace(c.Query("search")), Page: page, Limit: limit}.Normalize()
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrReferenced) {
		return http.StatusConflict, "CONFLICT", "Conflicts with existing data", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
