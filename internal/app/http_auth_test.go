package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoginReturnsSessionAndCookie(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "editor")

	rr := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "avery@example.com", "password": "secret123"})
	expectStatus(t, rr, http.StatusOK)

	payload := decode(t, rr)
	token, _ := payload["accessToken"].(string)
	if token == "" {
		t.Fatalf("expected accessToken")
	}
	if refresh, _ := payload["refreshToken"].(string); refresh == "" {
		t.Fatalf("expected refreshToken")
	}
	user, _ := payload["user"].(map[string]any)
	if user["role"] != "editor" || user["name"] != "Avery" {
		t.Fatalf("unexpected user payload: %#v", user)
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != token || !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie carrying the access token, got %#v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	sessionRR := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(sessionRR, req)
	expectStatus(t, sessionRR, http.StatusOK)
	if decode(t, sessionRR)["authenticated"] != true {
		t.Fatalf("expected cookie session to authenticate, body=%s", sessionRR.Body.String())
	}
}

func TestSessionWithoutTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/api/auth/session", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if decode(t, rr)["authenticated"] != false {
		t.Fatalf("expected authenticated=false, body=%s", rr.Body.String())
	}
}

func TestLoginDoesNotRevealUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "viewer")

	unknown := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "secret123"})
	wrong := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "avery@example.com", "password": "nope-nope"})

	expectCode(t, unknown, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	expectCode(t, wrong, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("Sam", "sam@example.com", "viewer")
	user.IsActive = false
	if err := env.mem.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rr := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "sam@example.com", "password": "secret123"})
	expectCode(t, rr, http.StatusForbidden, "ACCOUNT_INACTIVE")
}

func TestLoginRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	expectCode(t, rr, http.StatusBadRequest, "INVALID_BODY")
}

func TestRegisterCreatesViewer(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "New Person", "email": "new@example.com", "password": "secret123",
	})
	expectStatus(t, rr, http.StatusCreated)
	user, _ := decode(t, rr)["user"].(map[string]any)
	if user["role"] != "viewer" {
		t.Fatalf("expected viewer role, got %#v", user)
	}

	again := env.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Dup", "email": "NEW@example.com", "password": "secret123",
	})
	expectCode(t, again, http.StatusConflict, "EMAIL_EXISTS")

	short := env.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Short", "email": "short@example.com", "password": "123",
	})
	expectCode(t, short, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	expectCode(t, env.do(http.MethodGet, "/api/notifications", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	expectCode(t, env.do(http.MethodGet, "/api/notifications", "not-a-jwt", nil), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "viewer")
	token := env.login("avery@example.com")

	expectStatus(t, env.do(http.MethodGet, "/api/notifications", token, nil), http.StatusOK)

	logout := env.do(http.MethodPost, "/api/auth/logout", token, map[string]any{})
	expectStatus(t, logout, http.StatusOK)
	cleared := false
	for _, c := range logout.Result().Cookies() {
		if c.Name == sessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected logout to clear the session cookie")
	}

	expectCode(t, env.do(http.MethodGet, "/api/notifications", token, nil), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestDeactivatedUserTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("Avery", "avery@example.com", "viewer")
	token := env.login("avery@example.com")

	user.IsActive = false
	if err := env.mem.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	expectStatus(t, env.do(http.MethodGet, "/api/notifications", token, nil), http.StatusUnauthorized)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "viewer")
	rr := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "avery@example.com", "password": "secret123"})
	refresh, _ := decode(t, rr)["refreshToken"].(string)

	first := env.do(http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	expectStatus(t, first, http.StatusOK)
	if next, _ := decode(t, first)["refreshToken"].(string); next == "" || next == refresh {
		t.Fatalf("expected a new refresh token, got %q", next)
	}

	replay := env.do(http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	expectCode(t, replay, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "admin")

	unknown := env.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	expectStatus(t, unknown, http.StatusOK)
	known := env.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "avery@example.com"})
	expectStatus(t, known, http.StatusOK)
	if unknown.Body.String() != known.Body.String() {
		t.Fatalf("responses differ: unknown=%s known=%s", unknown.Body.String(), known.Body.String())
	}
	if _, ok := decode(t, known)["devResetToken"]; ok {
		t.Fatalf("reset token leaked outside development mode: %s", known.Body.String())
	}

	user, err := env.mem.GetUserByEmail(context.Background(), "avery@example.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	token := user.ResetToken
	if token == "" {
		t.Fatalf("expected a stored reset token")
	}

	reset := env.do(http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": token, "password": "brand-new"})
	expectStatus(t, reset, http.StatusOK)

	reuse := env.do(http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": token, "password": "another1"})
	expectCode(t, reuse, http.StatusBadRequest, "INVALID_RESET_TOKEN")

	login := env.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "avery@example.com", "password": "brand-new"})
	expectStatus(t, login, http.StatusOK)
}

func TestForgotPasswordEchoesTokenOnlyInDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "development"
	env := newTestEnvWith(t, cfg)
	env.seedUser("Avery", "avery@example.com", "viewer")

	rr := env.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "avery@example.com"})
	expectStatus(t, rr, http.StatusOK)
	token, _ := decode(t, rr)["devResetToken"].(string)
	if token == "" {
		t.Fatalf("expected devResetToken in development mode, body=%s", rr.Body.String())
	}

	unknown := env.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	if _, ok := decode(t, unknown)["devResetToken"]; ok {
		t.Fatalf("unknown email must not receive a token")
	}
}

func TestChangePasswordNotifies(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("Avery", "avery@example.com", "viewer")
	token := env.login("avery@example.com")

	wrong := env.do(http.MethodPut, "/api/profile/password", token, map[string]any{"currentPassword": "nope", "newPassword": "brand-new"})
	expectCode(t, wrong, http.StatusBadRequest, "INVALID_CURRENT_PASSWORD")

	ok := env.do(http.MethodPut, "/api/profile/password", token, map[string]any{"currentPassword": "secret123", "newPassword": "brand-new"})
	expectStatus(t, ok, http.StatusOK)

	sent := env.notifier.sentTo(user.ID)
	if len(sent) != 1 || sent[0].Title != "Account Security" {
		t.Fatalf("expected one security notification, got %#v", sent)
	}
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("Avery", "avery@example.com", "viewer")
	env.seedUser("Blake", "blake@example.com", "viewer")
	token := env.login("avery@example.com")

	rr := env.do(http.MethodPut, "/api/profile", token, map[string]any{"name": "Avery", "email": "blake@example.com"})
	expectCode(t, rr, http.StatusConflict, "EMAIL_EXISTS")

	rr = env.do(http.MethodPut, "/api/profile", token, map[string]any{"name": "Avery Q", "email": "avery@example.com"})
	expectStatus(t, rr, http.StatusOK)
	updated, err := env.mem.GetUserByEmail(context.Background(), "avery@example.com")
	if err != nil || updated.Name != "Avery Q" {
		t.Fatalf("expected renamed user, got %#v err=%v", updated, err)
	}
}
