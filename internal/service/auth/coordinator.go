package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
	"github.com/garrettladley/whoopweb/internal/storage"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xslog"
	"golang.org/x/oauth2"
)

const (
	defaultStateTTL = 10 * time.Minute
	defaultTimeout  = 10 * time.Second
)

var _ Service = (*Coordinator)(nil)

// Coordinator runs the authorization code flow against WHOOP.
type Coordinator struct {
	config     *oauth2.Config
	configured []string
	states     storage.StateStore
	sessions   storage.SessionStore
	httpClient *http.Client
	stateTTL   time.Duration
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Coordinator)

func WithStateTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.stateTTL = d }
}

// WithTimeout bounds each token exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) { c.httpClient = client }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(
	oauthConfig *oauth2.Config,
	states storage.StateStore,
	sessions storage.SessionStore,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		config:     oauthConfig,
		configured: session.NormalizeScopes(oauthConfig.Scopes),
		states:     states,
		sessions:   sessions,
		httpClient: xhttp.NewHTTPClient(),
		stateTTL:   defaultStateTTL,
		timeout:    defaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) BeginLogin(ctx context.Context, scopes []string) (*BeginLoginResult, error) {
	requested, err := c.resolveScopes(scopes)
	if err != nil {
		return nil, err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	req := oauth.AuthorizationRequest{
		StateNonce:      state,
		RequestedScopes: requested,
		CreatedAt:       c.now(),
	}

	if err := c.states.Set(ctx, state, req, c.stateTTL); err != nil {
		return nil, fmt.Errorf("storing state: %w", err)
	}

	cfg := *c.config
	cfg.Scopes = requested

	xslog.FromContext(ctx).DebugContext(ctx, "authorization started", xslog.Scopes(requested))

	return &BeginLoginResult{
		AuthURL: cfg.AuthCodeURL(state),
		State:   state,
	}, nil
}

// resolveScopes keeps the caller's order but drops duplicates.
func (c *Coordinator) resolveScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return slices.Clone(c.config.Scopes), nil
	}

	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			continue
		case s == oauth.ScopeProfile:
			return nil, ErrProfileUnsupported
		case !slices.Contains(c.configured, s):
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScope, s)
		case slices.Contains(out, s):
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return slices.Clone(c.config.Scopes), nil
	}
	return out, nil
}

func (c *Coordinator) HandleCallback(ctx context.Context, req CallbackRequest) (*session.Session, error) {
	pending, err := c.consumeState(ctx, req.State)
	if err != nil {
		return nil, err
	}

	if req.ErrorCode != "" {
		return nil, &AuthorizationError{
			Kind:    AccessDenied,
			Message: describe(req.ErrorCode, req.ErrorDesc),
		}
	}

	if req.Code == "" {
		return nil, &AuthorizationError{
			Kind:    ExchangeRejected,
			Message: "missing authorization code",
		}
	}

	bundle, err := c.exchange(ctx, req.Code, pending.RequestedScopes)
	if err != nil {
		return nil, err
	}

	id, err := session.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := c.now()
	sess := session.Session{
		ID:        id,
		CreatedAt: now,
	}.WithToken(bundle, now)

	if err := c.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	logger := xslog.FromContext(ctx)
	if req.PreviousSessionID != "" && req.PreviousSessionID != id {
		if err := c.sessions.Remove(ctx, req.PreviousSessionID); err != nil {
			logger.WarnContext(ctx, "failed to remove previous session",
				xslog.SessionID(req.PreviousSessionID),
				xslog.Error(err),
			)
		}
	}

	logger.InfoContext(ctx, "session created",
		xslog.SessionID(id),
		xslog.Scopes(bundle.Scopes),
		xslog.ExpiresAt(bundle.ExpiresAt),
	)

	return &sess, nil
}

func (c *Coordinator) consumeState(ctx context.Context, state string) (oauth.AuthorizationRequest, error) {
	if state == "" {
		return oauth.AuthorizationRequest{}, &AuthorizationError{Kind: InvalidState, Message: "missing state"}
	}

	pending, err := c.states.GetAndDelete(ctx, state)
	if errors.Is(err, storage.ErrNotFound) {
		return oauth.AuthorizationRequest{}, &AuthorizationError{Kind: InvalidState, Message: "unknown or consumed state"}
	}
	if err != nil {
		return oauth.AuthorizationRequest{}, fmt.Errorf("retrieving state: %w", err)
	}

	if pending.ExpiredAt(c.now(), c.stateTTL) {
		return oauth.AuthorizationRequest{}, &AuthorizationError{Kind: InvalidState, Message: "authorization request expired"}
	}

	return pending, nil
}

func (c *Coordinator) exchange(ctx context.Context, code string, requested []string) (session.TokenBundle, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	issuedAt := c.now()
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return session.TokenBundle{}, &AuthorizationError{
				Kind:    ExchangeRejected,
				Message: retrieveMessage(rerr),
			}
		}
		return session.TokenBundle{}, &AuthorizationError{
			Kind:    ExchangeRejected,
			Message: "token endpoint unreachable",
			Err:     err,
		}
	}

	lifetime := oauth.Lifetime(tok)
	if lifetime <= 0 {
		return session.TokenBundle{}, &AuthorizationError{Kind: ExchangeRejected, Message: "token response missing expires_in"}
	}

	scopes := c.grantedScopes(tok, requested)
	if len(scopes) == 0 {
		return session.TokenBundle{}, &AuthorizationError{Kind: ExchangeRejected, Message: "no supported scopes granted"}
	}

	bundle := session.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(lifetime),
		Scopes:       scopes,
	}
	if err := bundle.Validate(); err != nil {
		return session.TokenBundle{}, &AuthorizationError{Kind: ExchangeRejected, Err: err}
	}
	return bundle, nil
}

// grantedScopes prefers the scope field of the token response and falls back to the request.
func (c *Coordinator) grantedScopes(tok *oauth2.Token, requested []string) []string {
	granted := oauth.GrantedScopes(tok)
	if len(granted) == 0 {
		granted = requested
	}
	return intersect(granted, c.configured)
}

func (c *Coordinator) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := c.sessions.Remove(ctx, sessionID); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	xslog.FromContext(ctx).InfoContext(ctx, "session removed", xslog.SessionID(sessionID))
	return nil
}

func intersect(scopes, allowed []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if slices.Contains(allowed, s) {
			out = append(out, s)
		}
	}
	return session.NormalizeScopes(out)
}

func retrieveMessage(err *oauth2.RetrieveError) string {
	if err.ErrorCode != "" {
		return describe(err.ErrorCode, err.ErrorDescription)
	}
	status := "token endpoint rejected the code"
	if err.Response != nil {
		status = fmt.Sprintf("token endpoint returned %d", err.Response.StatusCode)
	}
	if body := strings.TrimSpace(string(err.Body)); body != "" {
		return status + ": " + body
	}
	return status
}

func describe(code, desc string) string {
	if desc == "" {
		return code
	}
	return code + ": " + desc
}
