package storage

import (
	"context"
	"errors"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
)

var ErrNotFound = errors.New("not found")

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// SessionStore persists sessions by ID. Implementations must be safe for concurrent use;
// Get returns a copy the caller may modify freely.
type SessionStore interface {
	// Get returns ErrNotFound if the session does not exist or has expired.
	Get(ctx context.Context, id string) (session.Session, error)

	// Put creates or replaces the session stored under s.ID.
	Put(ctx context.Context, s session.Session) error

	// Update replaces an existing session and never creates one. Returns ErrNotFound if the
	// session was removed or has expired.
	Update(ctx context.Context, s session.Session) error

	// Remove deletes the session. Removing a missing session is not an error.
	Remove(ctx context.Context, id string) error
}

// StateStore holds pending authorization requests until the callback consumes them.
type StateStore interface {
	Set(ctx context.Context, state string, req oauth.AuthorizationRequest, ttl time.Duration) error

	// GetAndDelete atomically retrieves and removes a request.
	// Returns ErrNotFound if the state does not exist or has expired.
	GetAndDelete(ctx context.Context, state string) (oauth.AuthorizationRequest, error)
}

type Backend interface {
	SessionStore
	StateStore

	Close() error

	Ping(ctx context.Context) error
}

// Pruner is implemented by backends that need expired rows removed explicitly.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}
