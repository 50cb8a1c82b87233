// Package session holds the per-browser session and the OAuth token bundle it owns.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"
)

const idLength = 32

var (
	ErrInvalidExpiry = errors.New("token bundle expires before it was issued")
	ErrNoScopes      = errors.New("token bundle has no scopes")
)

// NewID returns a random, URL-safe session identifier.
func NewID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenBundle is the credential set obtained from WHOOP for one session.
// Values are copied on read; only the auth coordinator and token manager build new ones.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
}

func (b TokenBundle) Validate() error {
	if !b.ExpiresAt.After(b.IssuedAt) {
		return ErrInvalidExpiry
	}
	if len(b.Scopes) == 0 {
		return ErrNoScopes
	}
	return nil
}

// FreshAt reports whether the access token is still usable at now with margin to spare.
func (b TokenBundle) FreshAt(now time.Time, margin time.Duration) bool {
	return now.Before(b.ExpiresAt.Add(-margin))
}

func (b TokenBundle) HasScope(scope string) bool {
	_, found := slices.BinarySearch(b.Scopes, scope)
	return found
}

func (b TokenBundle) clone() TokenBundle {
	b.Scopes = slices.Clone(b.Scopes)
	return b
}

// NormalizeScopes returns the scopes as a sorted set without empty entries.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

type Session struct {
	ID        string       `json:"id"`
	Token     *TokenBundle `json:"token,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Clone deep-copies the session so stores never hand out shared state.
func (s Session) Clone() Session {
	if s.Token != nil {
		t := s.Token.clone()
		s.Token = &t
	}
	return s
}

// WithToken returns a copy of s carrying bundle, stamped at now.
func (s Session) WithToken(bundle TokenBundle, now time.Time) Session {
	b := bundle.clone()
	s.Token = &b
	s.UpdatedAt = now
	return s
}
