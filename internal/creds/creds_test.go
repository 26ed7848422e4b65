package creds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	c := &Credentials{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
		TeamSlug:         "platform",
		ServerURL:        "https://sync.example.com",
	}
	require.NoError(t, s.WithLock(ctx, func() error { return s.Save(ctx, c) }))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.AccessToken, got.AccessToken)
	assert.Equal(t, c.TeamSlug, got.TeamSlug)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "credentials file must be private")
	}

	require.NoError(t, s.WithLock(ctx, func() error { return s.Clear(ctx) }))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestManager_Login(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/token/", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["username"] != "mira" || body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access":           "access-token",
			"refresh":          "refresh-token",
			"access_lifetime":  900,
			"refresh_lifetime": 604800,
			"team_slug":        "platform",
		})
	}))
	defer srv.Close()

	store := newFileStore(t)
	m := NewManager(store)

	c, err := m.Login(ctx, srv.URL, "mira", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "access-token", c.AccessToken)
	assert.Equal(t, "platform", c.TeamSlug)
	assert.Equal(t, srv.URL, c.ServerURL)

	// Persisted.
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-token", loaded.AccessToken)

	// Bad password is an AuthError and stores nothing new.
	_, err = m.Login(ctx, srv.URL, "mira", "wrong")
	assert.True(t, IsAuthError(err))
}

func TestManager_ValidAccessToken_FastPath(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.WithLock(ctx, func() error {
		return store.Save(ctx, &Credentials{
			AccessToken:      "live-token",
			RefreshToken:     "refresh",
			AccessExpiresAt:  time.Now().Add(time.Hour),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
			ServerURL:        "https://unused.example.com",
		})
	}))

	m := NewManager(store)
	tok, err := m.ValidAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live-token", tok)
}

func TestManager_ValidAccessToken_SilentRefresh(t *testing.T) {
	ctx := context.Background()

	var refreshCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/token/refresh/", r.URL.Path)
		refreshCalls++
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "old-refresh", body["refresh"])
		json.NewEncoder(w).Encode(map[string]any{
			"access":          "new-access",
			"refresh":         "new-refresh",
			"access_lifetime": 900,
		})
	}))
	defer srv.Close()

	store := newFileStore(t)
	require.NoError(t, store.WithLock(ctx, func() error {
		return store.Save(ctx, &Credentials{
			AccessToken:      "stale-access",
			RefreshToken:     "old-refresh",
			AccessExpiresAt:  time.Now().Add(-time.Minute),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
			TeamSlug:         "platform",
			ServerURL:        srv.URL,
		})
	}))

	m := NewManager(store)
	tok, err := m.ValidAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	assert.Equal(t, 1, refreshCalls)

	// New tokens persisted; team slug carried over.
	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-access", c.AccessToken)
	assert.Equal(t, "new-refresh", c.RefreshToken)
	assert.Equal(t, "platform", c.TeamSlug)

	// Second call should use the refreshed token without another refresh.
	tok, err = m.ValidAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	assert.Equal(t, 1, refreshCalls)
}

func TestManager_ValidAccessToken_RefreshRejectedClearsCredentials(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "refresh token revoked"})
	}))
	defer srv.Close()

	store := newFileStore(t)
	require.NoError(t, store.WithLock(ctx, func() error {
		return store.Save(ctx, &Credentials{
			AccessToken:      "stale-access",
			RefreshToken:     "revoked-refresh",
			AccessExpiresAt:  time.Now().Add(-time.Minute),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
			ServerURL:        srv.URL,
		})
	}))

	m := NewManager(store)
	_, err := m.ValidAccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	// Everything cleared: caller must re-authenticate.
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestManager_ValidAccessToken_ForbiddenKeepsCredentials(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "account suspended"})
	}))
	defer srv.Close()

	store := newFileStore(t)
	require.NoError(t, store.WithLock(ctx, func() error {
		return store.Save(ctx, &Credentials{
			AccessToken:      "stale-access",
			RefreshToken:     "live-refresh",
			AccessExpiresAt:  time.Now().Add(-time.Minute),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
			ServerURL:        srv.URL,
		})
	}))

	m := NewManager(store)
	_, err := m.ValidAccessToken(ctx)
	require.Error(t, err)
	assert.False(t, IsAuthError(err), "403 is not a credential-clearing failure")

	// Only a 401 clears the stored credentials.
	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live-refresh", c.RefreshToken)
}

func TestManager_ValidAccessToken_RefreshExpiredLocally(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.WithLock(ctx, func() error {
		return store.Save(ctx, &Credentials{
			AccessToken:      "stale-access",
			RefreshToken:     "stale-refresh",
			AccessExpiresAt:  time.Now().Add(-time.Hour),
			RefreshExpiresAt: time.Now().Add(-time.Minute),
			ServerURL:        "https://unused.example.com",
		})
	}))

	m := NewManager(store)
	_, err := m.ValidAccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestManager_ExpiryFromJWTClaim(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(42 * time.Minute).Truncate(time.Second)
	access := signedToken(t, exp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No lifetimes in the response: expiry must come from the claim.
		json.NewEncoder(w).Encode(map[string]any{
			"access":  access,
			"refresh": "opaque-refresh",
		})
	}))
	defer srv.Close()

	m := NewManager(newFileStore(t))
	c, err := m.Login(ctx, srv.URL, "mira", "hunter2")
	require.NoError(t, err)
	assert.True(t, c.AccessExpiresAt.Equal(exp), "expiry should come from the exp claim, got %v want %v", c.AccessExpiresAt, exp)

	// Opaque refresh token has no claim: falls back to the default.
	assert.True(t, c.RefreshExpiresAt.After(time.Now().Add(6*24*time.Hour)))
}
