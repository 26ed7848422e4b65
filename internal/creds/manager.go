package creds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fallback lifetimes when the server sends no lifetime and the token
// carries no exp claim. Conservative: better to refresh early than to
// present a dead token.
const (
	defaultAccessLifetime  = 15 * time.Minute
	defaultRefreshLifetime = 7 * 24 * time.Hour
)

// Manager drives the credential lifecycle against the token endpoints.
type Manager struct {
	store  *FileStore
	client *http.Client
	now    func() time.Time
	log    *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithNow overrides the wall-clock source (for tests).
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger overrides the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a credential manager over the given store.
func NewManager(store *FileStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tokenResponse is the shape of both token endpoints' success bodies.
type tokenResponse struct {
	Access          string `json:"access"`
	Refresh         string `json:"refresh"`
	AccessLifetime  int64  `json:"access_lifetime,omitempty"`
	RefreshLifetime int64  `json:"refresh_lifetime,omitempty"`
	TeamSlug        string `json:"team_slug,omitempty"`
}

// Login authenticates with username/password and persists the resulting
// token set.
func (m *Manager) Login(ctx context.Context, serverURL, username, password string) (*Credentials, error) {
	serverURL = strings.TrimRight(serverURL, "/")

	tok, err := m.postToken(ctx, serverURL+"/api/v1/token/", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	c := m.credentialsFrom(tok, serverURL)
	if err := m.store.WithLock(ctx, func() error {
		return m.store.Save(ctx, c)
	}); err != nil {
		return nil, err
	}

	m.log.Info("logged in", "server", serverURL, "team", c.TeamSlug)
	return c, nil
}

// Logout clears the stored credentials.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.WithLock(ctx, func() error {
		return m.store.Clear(ctx)
	})
}

// Current returns the stored credentials without refreshing.
func (m *Manager) Current(ctx context.Context) (*Credentials, error) {
	return m.store.Load(ctx)
}

// ServerURL returns the server the stored credentials belong to.
func (m *Manager) ServerURL(ctx context.Context) (string, error) {
	c, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return c.ServerURL, nil
}

// ValidAccessToken returns a usable access token, silently refreshing
// through the refresh token when the access token has expired.
//
// When the refresh is rejected (401) the stored credentials are cleared
// and ErrNoCredentials is returned: the caller must re-authenticate.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	// Fast path: no lock needed to present an unexpired token.
	c, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if c.AccessValid(m.now()) {
		return c.AccessToken, nil
	}

	var token string
	err = m.store.WithLock(ctx, func() error {
		// Reload under the lock: another process may have refreshed
		// while we waited.
		c, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		if c.AccessValid(m.now()) {
			token = c.AccessToken
			return nil
		}
		if !c.RefreshValid(m.now()) {
			m.log.Warn("refresh token expired, clearing credentials")
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				return clearErr
			}
			return ErrNoCredentials
		}

		tok, err := m.postToken(ctx, c.ServerURL+"/api/v1/token/refresh/", map[string]string{
			"refresh": c.RefreshToken,
		})
		if err != nil {
			if IsAuthError(err) {
				// Refresh rejected: invalidate everything.
				m.log.Warn("token refresh rejected, clearing credentials", "error", err)
				if clearErr := m.store.Clear(ctx); clearErr != nil {
					return clearErr
				}
				return ErrNoCredentials
			}
			return err
		}

		refreshed := m.credentialsFrom(tok, c.ServerURL)
		if refreshed.TeamSlug == "" {
			refreshed.TeamSlug = c.TeamSlug
		}
		if refreshed.RefreshToken == "" {
			// Server may rotate only the access token.
			refreshed.RefreshToken = c.RefreshToken
			refreshed.RefreshExpiresAt = c.RefreshExpiresAt
		}
		if err := m.store.Save(ctx, refreshed); err != nil {
			return err
		}

		m.log.Debug("access token refreshed", "expires_at", refreshed.AccessExpiresAt)
		token = refreshed.AccessToken
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// postToken POSTs a JSON body to a token endpoint and decodes the
// response. 401 responses become AuthError.
func (m *Manager) postToken(ctx context.Context, url string, body map[string]string) (*tokenResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	// Only 401 is an AuthError: it is the signal that the presented
	// token is dead and stored credentials may be cleared. A 403 is a
	// permission problem with live credentials and must not clear them.
	if resp.StatusCode == http.StatusUnauthorized {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &e)
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tok.Access == "" {
		return nil, fmt.Errorf("token response missing access token")
	}
	return &tok, nil
}

// credentialsFrom builds a Credentials from a token response, resolving
// expiries from (in order) the response lifetimes, the tokens' own exp
// claims, and conservative defaults.
func (m *Manager) credentialsFrom(tok *tokenResponse, serverURL string) *Credentials {
	now := m.now()

	accessExp := m.resolveExpiry(tok.Access, tok.AccessLifetime, now, defaultAccessLifetime)
	refreshExp := m.resolveExpiry(tok.Refresh, tok.RefreshLifetime, now, defaultRefreshLifetime)

	return &Credentials{
		AccessToken:      tok.Access,
		RefreshToken:     tok.Refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		TeamSlug:         tok.TeamSlug,
		ServerURL:        serverURL,
	}
}

func (m *Manager) resolveExpiry(token string, lifetimeSeconds int64, now time.Time, fallback time.Duration) time.Time {
	if lifetimeSeconds > 0 {
		return now.Add(time.Duration(lifetimeSeconds) * time.Second)
	}
	if exp, ok := jwtExpiry(token); ok {
		return exp
	}
	return now.Add(fallback)
}

// jwtExpiry extracts the exp claim without verifying the signature. The
// server signed the token; the client only uses exp to schedule
// refreshes, never to grant access.
func jwtExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
