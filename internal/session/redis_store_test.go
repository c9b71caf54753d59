package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("::not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "test-token-hash", 123, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	userID, err := store.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if userID != 123 {
		t.Errorf("expected user ID 123, got %d", userID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expired-token", 456, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := store.LookupRefreshSession(ctx, "expired-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	if _, err := store.LookupRefreshSession(context.Background(), "non-existent-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "token-to-revoke", 789, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}

	if err := store.RevokeRefreshSession(ctx, "non-existent-token"); err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	for hash, id := range map[string]int64{"token-1": 1, "token-2": 2} {
		if err := store.SaveRefreshSession(ctx, hash, id, expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession %s failed: %v", hash, err)
		}
	}
	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); err == nil {
		t.Error("expected error for revoked token-1, got nil")
	}
	userID, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if userID != 2 {
		t.Errorf("expected user 2 after revoke, got %d", userID)
	}
}

func TestRevokedAccessTokens(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsAccessTokenRevoked(jti-1) = %v, %v; want true", revoked, err)
	}
	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-2")
	if err != nil || revoked {
		t.Fatalf("IsAccessTokenRevoked(jti-2) = %v, %v; want false", revoked, err)
	}

	s.FastForward(2 * time.Minute)
	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("revocation should lapse with the token, got %v, %v", revoked, err)
	}
}
