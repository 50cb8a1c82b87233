package xhttp

import (
	"net"
	"net/http"
	"strings"
)

// GetRequestIP is the rate limiting key for unauthenticated routes. Behind a proxy the first
// X-Forwarded-For hop is the client; ports and IPv6 brackets are stripped either way.
func GetRequestIP(r *http.Request) string {
	if xff := r.Header.Get(XForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return hostOnly(strings.TrimSpace(first))
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
