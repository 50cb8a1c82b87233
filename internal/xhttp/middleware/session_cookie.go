package middleware

import (
	"net/http"

	"github.com/garrettladley/whoopweb/internal/xcontext"
)

// SessionCookie copies the session identifier from the named cookie into the request context.
// Handlers read it back with xcontext.GetSessionID and pass it explicitly to services.
func SessionCookie(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(name)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := xcontext.SetSessionID(r.Context(), c.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
