package middleware

import (
	"net/http"

	"github.com/garrettladley/whoopweb/internal/xhttp"
)

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(xhttp.XContentTypeOpts, "nosniff")
		w.Header().Set(xhttp.XFrameOpts, "DENY")
		w.Header().Set(xhttp.XXSSProtection, "0")
		// strict-origin keeps the callback's code and state out of third-party Referer headers
		w.Header().Set(xhttp.ReferrerPolicy, "strict-origin")
		next.ServeHTTP(w, r)
	})
}
