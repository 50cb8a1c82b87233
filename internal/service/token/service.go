package token

import (
	"context"
	"fmt"

	"github.com/garrettladley/whoopweb/internal/session"
)

type Service interface {
	// EnsureFresh returns an access token for the session that is valid beyond the refresh margin,
	// refreshing it first if needed. Failures are *TokenRefreshError unless storage fails.
	EnsureFresh(ctx context.Context, sessionID string) (string, error)

	// EnsureFreshBundle is EnsureFresh returning the whole bundle, so callers can check scopes.
	EnsureFreshBundle(ctx context.Context, sessionID string) (session.TokenBundle, error)
}

type ErrorKind int

const (
	NoSession ErrorKind = iota
	RefreshRejected
	Transport
)

func (k ErrorKind) String() string {
	switch k {
	case NoSession:
		return "no_session"
	case RefreshRejected:
		return "refresh_rejected"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// TokenRefreshError means the caller has to authenticate again.
type TokenRefreshError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *TokenRefreshError) Error() string {
	msg := "token refresh failed: " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

func (e *TokenRefreshError) Is(target error) bool {
	t, ok := target.(*TokenRefreshError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoSession       = &TokenRefreshError{Kind: NoSession}
	ErrRefreshRejected = &TokenRefreshError{Kind: RefreshRejected}
	ErrTransport       = &TokenRefreshError{Kind: Transport}
)
