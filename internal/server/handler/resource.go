package handler

import (
	"errors"
	"net/http"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
	"github.com/garrettladley/whoopweb/internal/service/proxy"
	"github.com/garrettladley/whoopweb/internal/service/resource"
	"github.com/garrettladley/whoopweb/internal/service/token"
	"github.com/garrettladley/whoopweb/internal/xcontext"
	"github.com/garrettladley/whoopweb/internal/xerrors"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xslog"
)

const PathValueResource = "name"

type Resource struct {
	service *resource.Service
}

func NewResource(service *resource.Service) *Resource {
	return &Resource{service: service}
}

// HandleResource handles GET /resource/{name} requests.
func (h *Resource) HandleResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue(PathValueResource)

	if _, ok := resource.Lookup(name); !ok {
		xerrors.WriteError(ctx, w, xerrors.NotFound(xerrors.WithMessage("unknown resource: "+name)))
		return
	}

	sessionID, ok := xcontext.GetSessionID(ctx)
	if !ok {
		xhttp.Redirect(w, r, PathLogin)
		return
	}
	ctx = xslog.WithAttrs(ctx, xslog.SessionID(sessionID), xslog.Endpoint(name))

	params, err := whoop.ParseListParams(r.URL.Query())
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage(err.Error())))
		return
	}

	result, err := h.service.Get(ctx, sessionID, name, params)
	if err != nil {
		if errors.Is(err, token.ErrNoSession) || errors.Is(err, token.ErrRefreshRejected) || errors.Is(err, token.ErrTransport) {
			xslog.FromContext(ctx).InfoContext(ctx, "session needs to log in again", xslog.Error(err))
			xhttp.Redirect(w, r, PathLogin)
			return
		}
		xerrors.WriteError(ctx, w, resourceError(err))
		return
	}

	xhttp.SetHeaderNoStore(w)
	xhttp.WriteOK(w, result)
}

func resourceError(err error) *xerrors.Error {
	var (
		scopeErr     *proxy.ScopeError
		upstreamErr  *proxy.UpstreamAPIError
		transportErr *proxy.TransportError
		apiErr       *proxy.APIError
	)

	switch {
	case errors.As(err, &scopeErr):
		return xerrors.Forbidden(
			xerrors.WithMessage("missing scope "+scopeErr.Required+" for "+scopeErr.Endpoint),
			xerrors.WithCause(err),
		)
	case errors.As(err, &upstreamErr):
		opts := []xerrors.Option{
			xerrors.WithMessage(whoop.ErrorMessage(upstreamErr.StatusCode, []byte(upstreamErr.ProviderBody))),
			xerrors.WithUpstreamBody(upstreamErr.ProviderBody),
			xerrors.WithCause(err),
		}
		// Redirects are not followed, so a 1xx/3xx has nothing a browser could act on.
		if upstreamErr.StatusCode < http.StatusBadRequest {
			return xerrors.BadGateway(opts...)
		}
		if upstreamErr.StatusCode == http.StatusTooManyRequests {
			opts = append(opts, xerrors.WithRetryAfter(upstreamErr.RetryAfter), xerrors.WithReason("whoop_rate_limit"))
		}
		return xerrors.Status(upstreamErr.StatusCode, opts...)
	case errors.As(err, &transportErr):
		return xerrors.BadGateway(xerrors.WithMessage("whoop api unavailable"), xerrors.WithCause(err))
	case errors.As(err, &apiErr):
		return xerrors.BadGateway(xerrors.WithMessage("whoop api returned an unreadable response"), xerrors.WithCause(err))
	default:
		return xerrors.Internal(xerrors.WithCause(err))
	}
}
