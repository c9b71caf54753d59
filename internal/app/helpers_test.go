package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"sikap/api/internal/authpw"
	"sikap/api/internal/config"
	"sikap/api/internal/rbac"
	"sikap/api/internal/storage"
	"sikap/api/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sentNotification struct {
	UserID  int64
	Title   string
	Message string
	Link    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Dispatch(userID int64, title, message, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Message: message, Link: link})
}

func (n *recordingNotifier) sentTo(userID int64) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotification, 0)
	for _, sent := range n.sent {
		if sent.UserID == userID {
			out = append(out, sent)
		}
	}
	return out
}

type testEnv struct {
	t        *testing.T
	mem      *store.MemoryStore
	svc      *Service
	server   *HTTPServer
	notifier *recordingNotifier
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		AppBaseURL:     "http://localhost:3000",
		MaxUploadBytes: 1 << 20,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, testConfig())
}

func newTestEnvWith(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	notifier := &recordingNotifier{}
	svc := New(Deps{
		Config:   cfg,
		Store:    mem,
		Auth:     authpw.NewService(mem, bcrypt.MinCost),
		Files:    files,
		Notifier: notifier,
		Log:      zerolog.Nop(),
	})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	server := NewHTTPServer(svc, HTTPOptions{CORSOrigin: "*", Log: zerolog.Nop()})
	return &testEnv{t: t, mem: mem, svc: svc, server: server, notifier: notifier}
}

// seedUser creates an active user with password "secret123".
func (e *testEnv) seedUser(name, email, role string) store.User {
	e.t.Helper()
	ctx := context.Background()
	r, err := e.mem.GetRoleByName(ctx, role)
	if err != nil {
		e.t.Fatalf("role %s: %v", role, err)
	}
	hash, err := e.svc.auth.HashPassword("secret123")
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	user, err := e.mem.CreateUser(ctx, store.User{Name: name, Email: email, PasswordHash: hash, RoleID: r.ID, IsActive: true})
	if err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	return user
}

func (e *testEnv) login(email string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "secret123"})
	if rr.Code != http.StatusOK {
		e.t.Fatalf("login %s: status %d body=%s", email, rr.Code, rr.Body.String())
	}
	token, _ := decode(e.t, rr)["accessToken"].(string)
	if token == "" {
		e.t.Fatalf("login %s: missing accessToken", email)
	}
	return token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	if got, _ := decode(t, rr)["code"].(string); got != code {
		t.Fatalf("expected code %s, got %q", code, got)
	}
}

func items(t *testing.T, rr *httptest.ResponseRecorder) []any {
	t.Helper()
	list, ok := decode(t, rr)["items"].([]any)
	if !ok {
		t.Fatalf("expected items array, body=%s", rr.Body.String())
	}
	return list
}

func sessionFor(user store.User) Session {
	return Session{UserID: user.ID, Name: user.Name, Email: user.Email, Role: rbac.Normalize(user.Role)}
}
