package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/service/auth"
	"github.com/garrettladley/whoopweb/internal/xcontext"
	"github.com/garrettladley/whoopweb/internal/xerrors"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xslog"
)

const (
	PathHome        = "/"
	PathLogin       = "/auth/login"
	PathCallback    = "/auth/callback"
	PathWelcome     = "/welcome"
	PathLoginFailed = "/login/failed"
	PathLogout      = "/logout"

	ParamReason = "reason"

	stateCookieSuffix = "_state"
)

// CookieConfig describes the browser cookie that carries the session identifier.
// StateMaxAge bounds the companion cookie that ties a callback to the browser that
// started the login.
type CookieConfig struct {
	Name        string
	Secure      bool
	MaxAge      time.Duration
	StateMaxAge time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) setState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name + stateCookieSuffix,
		Value:    state,
		Path:     PathCallback,
		MaxAge:   int(c.StateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name + stateCookieSuffix,
		Value:    "",
		Path:     PathCallback,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// stateMatches reports whether the callback state is the one this browser was sent off with.
func (c CookieConfig) stateMatches(r *http.Request, state string) bool {
	cookie, err := r.Cookie(c.Name + stateCookieSuffix)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

type Auth struct {
	service auth.Service
	cookie  CookieConfig
}

func NewAuth(service auth.Service, cookie CookieConfig) *Auth {
	return &Auth{service: service, cookie: cookie}
}

// HandleLogin handles GET /auth/login requests.
func (h *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scopes := oauth.ParseScopes(r.URL.Query().Get(oauth.ParamScope))

	result, err := h.service.BeginLogin(ctx, scopes)
	if err != nil {
		if errors.Is(err, auth.ErrUnsupportedScope) || errors.Is(err, auth.ErrProfileUnsupported) {
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage(err.Error()), xerrors.WithCause(err)))
			return
		}
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to start login"), xerrors.WithCause(err)))
		return
	}

	h.cookie.setState(w, result.State)
	xhttp.SetHeaderNoStore(w)
	xhttp.Redirect(w, r, result.AuthURL)
}

// HandleCallback handles GET /auth/callback requests.
func (h *Auth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)
	q := r.URL.Query()

	req := auth.CallbackRequest{
		State:     q.Get(oauth.ParamState),
		Code:      q.Get(oauth.ParamCode),
		ErrorCode: q.Get(oauth.ParamError),
		ErrorDesc: q.Get(oauth.ParamErrorDescription),
	}
	if previous, ok := xcontext.GetSessionID(ctx); ok {
		req.PreviousSessionID = previous
	}

	bound := h.cookie.stateMatches(r, req.State)
	h.cookie.clearState(w)
	if !bound {
		logger.WarnContext(ctx, "callback state was not issued to this browser",
			xslog.Reason(auth.InvalidState.String()),
		)
		redirectWithReason(w, r, auth.InvalidState.String())
		return
	}

	sess, err := h.service.HandleCallback(ctx, req)
	if err != nil {
		var authErr *auth.AuthorizationError
		if errors.As(err, &authErr) {
			logger.WarnContext(ctx, "authorization failed",
				xslog.Reason(authErr.Kind.String()),
				xslog.Error(err),
			)
			redirectWithReason(w, r, authErr.Kind.String())
			return
		}

		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("authentication failed"), xerrors.WithCause(err)))
		return
	}

	h.cookie.set(w, sess.ID)
	xhttp.SetHeaderNoStore(w)
	xhttp.Redirect(w, r, PathWelcome)
}

// HandleLogout handles GET /logout requests.
func (h *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, _ := xcontext.GetSessionID(ctx)
	if err := h.service.Logout(ctx, sessionID); err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to log out"), xerrors.WithCause(err)))
		return
	}

	h.cookie.clear(w)
	xhttp.Redirect(w, r, PathHome)
}

func redirectWithReason(w http.ResponseWriter, r *http.Request, reason string) {
	u := url.URL{Path: PathLoginFailed}
	q := u.Query()
	q.Set(ParamReason, reason)
	u.RawQuery = q.Encode()

	xhttp.Redirect(w, r, u.String())
}
