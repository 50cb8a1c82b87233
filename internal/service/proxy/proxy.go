package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
	"github.com/garrettladley/whoopweb/internal/service/token"
	"github.com/garrettladley/whoopweb/internal/xslog"
	go_json "github.com/goccy/go-json"
)

const defaultTimeout = 10 * time.Second

var errInvalidJSON = errors.New("response body is not valid JSON")

var _ Service = (*Proxy)(nil)

type Proxy struct {
	tokens  token.Service
	client  *whoop.Client
	timeout time.Duration
}

type Option func(*Proxy)

// WithTimeout bounds each upstream call, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.timeout = d }
}

func NewProxy(tokens token.Service, client *whoop.Client, opts ...Option) *Proxy {
	p := &Proxy{
		tokens:  tokens,
		client:  client,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Proxy) FetchResource(ctx context.Context, sessionID string, spec EndpointSpec, params *whoop.ListParams) (json.RawMessage, error) {
	bundle, err := p.tokens.EnsureFreshBundle(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !bundle.HasScope(spec.RequiredScope) {
		xslog.FromContext(ctx).WarnContext(ctx, "session lacks scope for endpoint",
			xslog.Endpoint(spec.Name),
			xslog.Scope(spec.RequiredScope),
			xslog.Scopes(bundle.Scopes),
		)
		return nil, &ScopeError{
			Endpoint: spec.Name,
			Required: spec.RequiredScope,
			Granted:  bundle.Scopes,
		}
	}

	logger := xslog.FromContext(ctx).With(xslog.Endpoint(spec.Name))

	// The browser going away does not cancel a WHOOP call already in flight.
	upstreamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Get(upstreamCtx, bundle.AccessToken, spec.Path, params.Values())
	if err != nil {
		logger.WarnContext(ctx, "whoop request failed", xslog.Error(err), xslog.Duration(time.Since(start)))
		return nil, &TransportError{Cause: err}
	}

	attrs := []any{xslog.UpstreamGroup(p.client.URL(spec.Path), resp.StatusCode, time.Since(start))}
	if rl, err := whoop.ParseRateLimitHeaders(resp.Header); err == nil && rl != nil {
		attrs = append(attrs, xslog.RateLimitGroup(rl.Limit, rl.Remaining, rl.Reset))
	}
	logger.InfoContext(ctx, "whoop request", attrs...)

	if !resp.OK() {
		retryAfter, _ := whoop.ParseRetryAfter(resp.Header)
		return nil, &UpstreamAPIError{
			StatusCode:   resp.StatusCode,
			ProviderBody: string(resp.Body),
			RetryAfter:   retryAfter,
		}
	}

	if !go_json.Valid(resp.Body) {
		return nil, &APIError{Kind: MalformedResponse, Endpoint: spec.Name, Err: errInvalidJSON}
	}

	return json.RawMessage(resp.Body), nil
}
