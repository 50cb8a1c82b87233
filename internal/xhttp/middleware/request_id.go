package middleware

import (
	"net/http"

	"github.com/garrettladley/whoopweb/internal/xcontext"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/google/uuid"
)

type RequestIDOption func(*requestIDConfig)

type requestIDConfig struct {
	idFunc func(*http.Request) string
}

// WithRequestIDFunc overrides the uuid generator, mostly for tests.
func WithRequestIDFunc(fn func(*http.Request) string) RequestIDOption {
	return func(c *requestIDConfig) { c.idFunc = fn }
}

func RequestID(opts ...RequestIDOption) func(http.Handler) http.Handler {
	cfg := &requestIDConfig{
		idFunc: func(_ *http.Request) string {
			return uuid.New().String()
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cfg.idFunc(r)
			ctx := xcontext.SetRequestID(r.Context(), id)
			xhttp.SetHeaderRequestID(w, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
