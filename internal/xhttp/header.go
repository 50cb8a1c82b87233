package xhttp

import (
	"fmt"
	"net/http"
	"time"
)

const (
	XForwardedFor    = "X-Forwarded-For"
	XContentTypeOpts = "X-Content-Type-Options"
	XFrameOpts       = "X-Frame-Options"
	XXSSProtection   = "X-Xss-Protection"
	ReferrerPolicy   = "Referrer-Policy"
	XRateLimitReason = "X-RateLimit-Reason"
	Authorization    = "Authorization"
	Accept           = "Accept"
	UserAgent        = "User-Agent"
	CacheControl     = "Cache-Control"
	ContentEncoding  = "Content-Encoding"
	ContentLength    = "Content-Length"
	AcceptEncoding   = "Accept-Encoding"
	Vary             = "Vary"
)

const ContentType = "Content-Type"

const applicationJSON = "application/json"

func SetHeaderRequestID(w http.ResponseWriter, requestID string) {
	const headerName = "X-Request-ID"
	w.Header().Set(headerName, requestID)
}

func SetHeaderContentTypeApplicationJSON(w http.ResponseWriter) {
	w.Header().Set(ContentType, applicationJSON)
}

func SetHeaderContentTypeTextHTML(w http.ResponseWriter) {
	const textHTML = "text/html; charset=utf-8"
	w.Header().Set(ContentType, textHTML)
}

func SetHeaderRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	const retryAfterHeader = "Retry-After"
	retryAfterSeconds := int(retryAfter.Seconds())
	w.Header().Set(retryAfterHeader, fmt.Sprintf("%d", retryAfterSeconds))
}

// SetHeaderNoStore keeps per-user health data out of shared caches.
func SetHeaderNoStore(w http.ResponseWriter) {
	w.Header().Set(CacheControl, "no-store")
}

func SetRequestHeaderBearer(req *http.Request, accessToken string) {
	req.Header.Set(Authorization, "Bearer "+accessToken)
}

func SetRequestHeaderAcceptJSON(req *http.Request) {
	req.Header.Set(Accept, applicationJSON)
}
