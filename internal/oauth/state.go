package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const stateLength = 32

func GenerateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthorizationRequest is a pending login, keyed by its state nonce until the callback consumes it.
type AuthorizationRequest struct {
	StateNonce      string    `json:"state_nonce"`
	RequestedScopes []string  `json:"requested_scopes"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExpiredAt reports whether the request is older than ttl at now.
func (r AuthorizationRequest) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}
