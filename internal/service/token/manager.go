package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
	"github.com/garrettladley/whoopweb/internal/storage"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xslog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMargin  = 30 * time.Second
	defaultTimeout = 10 * time.Second
)

var _ Service = (*Manager)(nil)

// Manager keeps session access tokens fresh. Concurrent callers for one session share a
// single refresh grant; the grant outlives any one caller's context.
type Manager struct {
	config     *oauth2.Config
	configured []string
	sessions   storage.SessionStore
	httpClient *http.Client
	margin     time.Duration
	timeout    time.Duration
	now        func() time.Time

	refreshGroup singleflight.Group
}

type Option func(*Manager)

// WithMargin sets how long before expiry a token is refreshed.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.httpClient = client }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(oauthConfig *oauth2.Config, sessions storage.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		config:     oauthConfig,
		configured: session.NormalizeScopes(oauthConfig.Scopes),
		sessions:   sessions,
		httpClient: xhttp.NewHTTPClient(),
		margin:     defaultMargin,
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) EnsureFresh(ctx context.Context, sessionID string) (string, error) {
	bundle, err := m.EnsureFreshBundle(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return bundle.AccessToken, nil
}

func (m *Manager) EnsureFreshBundle(ctx context.Context, sessionID string) (session.TokenBundle, error) {
	bundle, err := m.load(ctx, sessionID)
	if err != nil {
		return session.TokenBundle{}, err
	}
	if bundle.FreshAt(m.now(), m.margin) {
		return bundle, nil
	}

	// The flight runs on a context detached from this caller so one client going away
	// does not fail the refresh for everyone waiting on it.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(sessionID, func() (any, error) {
		return m.refresh(flightCtx, sessionID)
	})

	select {
	case <-ctx.Done():
		return session.TokenBundle{}, fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return session.TokenBundle{}, res.Err
		}
		return res.Val.(session.TokenBundle), nil
	}
}

func (m *Manager) load(ctx context.Context, sessionID string) (session.TokenBundle, error) {
	if sessionID == "" {
		return session.TokenBundle{}, &TokenRefreshError{Kind: NoSession, Message: "missing session id"}
	}

	sess, err := m.sessions.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return session.TokenBundle{}, &TokenRefreshError{Kind: NoSession, Message: "session not found"}
	}
	if err != nil {
		return session.TokenBundle{}, fmt.Errorf("loading session: %w", err)
	}
	if sess.Token == nil {
		return session.TokenBundle{}, &TokenRefreshError{Kind: NoSession, Message: "session has no token"}
	}
	return *sess.Token, nil
}

func (m *Manager) refresh(ctx context.Context, sessionID string) (session.TokenBundle, error) {
	logger := xslog.FromContext(ctx).With(xslog.SessionID(sessionID))

	// Another flight may have finished between the caller's check and this one starting.
	sess, err := m.sessions.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && sess.Token == nil) {
		return session.TokenBundle{}, &TokenRefreshError{Kind: NoSession, Message: "session not found"}
	}
	if err != nil {
		return session.TokenBundle{}, fmt.Errorf("loading session: %w", err)
	}
	prev := *sess.Token
	if prev.FreshAt(m.now(), m.margin) {
		return prev, nil
	}

	if prev.RefreshToken == "" {
		return session.TokenBundle{}, &TokenRefreshError{Kind: RefreshRejected, Message: "no refresh token"}
	}

	next, err := m.grant(ctx, prev)
	if err != nil {
		logger.WarnContext(ctx, "token refresh failed", xslog.Error(err))
		return session.TokenBundle{}, err
	}

	// Update never recreates a session removed by a logout that raced this grant.
	err = m.sessions.Update(ctx, sess.WithToken(next, m.now()))
	if errors.Is(err, storage.ErrNotFound) {
		logger.InfoContext(ctx, "session removed during token refresh")
		return session.TokenBundle{}, &TokenRefreshError{Kind: NoSession, Message: "session removed during refresh"}
	}
	if err != nil {
		return session.TokenBundle{}, fmt.Errorf("storing refreshed session: %w", err)
	}

	logger.InfoContext(ctx, "token refreshed", xslog.ExpiresAt(next.ExpiresAt))
	return next, nil
}

func (m *Manager) grant(ctx context.Context, prev session.TokenBundle) (session.TokenBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	issuedAt := m.now()
	tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: prev.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return session.TokenBundle{}, &TokenRefreshError{Kind: RefreshRejected, Err: err}
		}
		return session.TokenBundle{}, &TokenRefreshError{Kind: Transport, Err: err}
	}

	lifetime := oauth.Lifetime(tok)
	if lifetime <= 0 {
		return session.TokenBundle{}, &TokenRefreshError{Kind: RefreshRejected, Message: "token response missing expires_in"}
	}

	next := session.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(lifetime),
		Scopes:       m.scopes(tok, prev.Scopes),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	if err := next.Validate(); err != nil {
		return session.TokenBundle{}, &TokenRefreshError{Kind: RefreshRejected, Err: err}
	}
	return next, nil
}

func (m *Manager) scopes(tok *oauth2.Token, prev []string) []string {
	var out []string
	for _, s := range oauth.GrantedScopes(tok) {
		if slices.Contains(m.configured, s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return slices.Clone(prev)
	}
	return session.NormalizeScopes(out)
}
