package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/garrettladley/whoopweb/internal/version"
	"github.com/garrettladley/whoopweb/internal/xhttp"
)

const (
	keyError = "error"
)

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.GetRequestIP(r))
}

func Version() slog.Attr {
	const versionKey = "version"
	return slog.String(versionKey, version.Get())
}

// SessionID logs only a short prefix; the full id is a bearer credential for the browser session.
func SessionID(id string) slog.Attr {
	const (
		sessionIDKey = "session_id"
		visible      = 8
	)
	if len(id) > visible {
		id = id[:visible]
	}
	return slog.String(sessionIDKey, id)
}

func Endpoint(name string) slog.Attr {
	const endpointKey = "endpoint"
	return slog.String(endpointKey, name)
}

func Scopes(scopes []string) slog.Attr {
	const scopesKey = "scopes"
	return slog.String(scopesKey, strings.Join(scopes, " "))
}

func Scope(scope string) slog.Attr {
	const scopeKey = "scope"
	return slog.String(scopeKey, scope)
}

func ExpiresAt(t time.Time) slog.Attr {
	const expiresAtKey = "expires_at"
	return slog.Time(expiresAtKey, t)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}

func EventType(eventType string) slog.Attr {
	const eventTypeKey = "event_type"
	return slog.String(eventTypeKey, eventType)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Backend(name string) slog.Attr {
	const backendKey = "backend"
	return slog.String(backendKey, name)
}
