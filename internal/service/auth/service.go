package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/garrettladley/whoopweb/internal/session"
)

var (
	ErrUnsupportedScope   = errors.New("unsupported scope")
	ErrProfileUnsupported = errors.New("read:profile is not supported")
)

type Service interface {
	// BeginLogin records a pending authorization request and returns the WHOOP consent URL.
	// An empty scope list requests every configured scope.
	BeginLogin(ctx context.Context, scopes []string) (*BeginLoginResult, error)

	// HandleCallback consumes the pending request named by the state nonce, exchanges the code,
	// and persists a new session. Failures are *AuthorizationError unless storage fails.
	HandleCallback(ctx context.Context, req CallbackRequest) (*session.Session, error)

	Logout(ctx context.Context, sessionID string) error
}

type BeginLoginResult struct {
	AuthURL string
	State   string
}

type CallbackRequest struct {
	State     string
	Code      string
	ErrorCode string
	ErrorDesc string

	// PreviousSessionID is removed once the new session is stored.
	PreviousSessionID string
}

type ErrorKind int

const (
	InvalidState ErrorKind = iota
	ExchangeRejected
	AccessDenied
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidState:
		return "invalid_state"
	case ExchangeRejected:
		return "exchange_rejected"
	case AccessDenied:
		return "access_denied"
	default:
		return "unknown"
	}
}

type AuthorizationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthorizationError) Error() string {
	msg := "authorization failed: " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthorizationError of the same kind.
func (e *AuthorizationError) Is(target error) bool {
	t, ok := target.(*AuthorizationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidState     = &AuthorizationError{Kind: InvalidState}
	ErrExchangeRejected = &AuthorizationError{Kind: ExchangeRejected}
	ErrAccessDenied     = &AuthorizationError{Kind: AccessDenied}
)
