// Package creds manages the JWT access/refresh credential lifecycle and
// its locked on-disk persistence.
//
// The state machine: NoCredentials -> Authenticated -> (access expired,
// refresh valid: silent refresh) -> Authenticated -> (refresh expired or
// rejected: cleared) -> NoCredentials. All mutation happens under a
// cross-process advisory lock so two concurrent CLI invocations never
// interleave a refresh.
package creds

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCredentials indicates no stored credentials, or credentials that
// were cleared after a failed refresh. The caller must prompt the user
// to re-authenticate.
var ErrNoCredentials = errors.New("no credentials stored: run 'chute login'")

// AuthError reports an authentication failure from the token endpoints.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed (HTTP %d)", e.StatusCode)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Credentials is the persisted token set. Created on login, mutated in
// place on refresh, cleared when a refresh is rejected.
type Credentials struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TeamSlug         string    `json:"team_slug,omitempty"`
	ServerURL        string    `json:"server_url"`
}

// expirySkew keeps us from presenting a token that expires mid-request.
const expirySkew = 30 * time.Second

// AccessValid reports whether the access token is usable at time now.
func (c *Credentials) AccessValid(now time.Time) bool {
	return c.AccessToken != "" && now.Add(expirySkew).Before(c.AccessExpiresAt)
}

// RefreshValid reports whether the refresh token is worth presenting.
func (c *Credentials) RefreshValid(now time.Time) bool {
	return c.RefreshToken != "" && now.Add(expirySkew).Before(c.RefreshExpiresAt)
}
