package whoop

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitInfo is WHOOP's view of the app's remaining request budget.
// See https://developer.whoop.com/docs/developing/rate-limiting/
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Duration
}

const (
	limitHeaderKey      = "X-Ratelimit-Limit"
	remainingHeaderKey  = "X-Ratelimit-Remaining"
	resetHeaderKey      = "X-Ratelimit-Reset"
	retryAfterHeaderKey = "Retry-After"
)

// ParseRateLimitHeaders returns nil without error unless all three headers are present.
func ParseRateLimitHeaders(headers http.Header) (*RateLimitInfo, error) {
	limitStr := headers.Get(limitHeaderKey)
	remainingStr := headers.Get(remainingHeaderKey)
	resetStr := headers.Get(resetHeaderKey)
	if limitStr == "" || remainingStr == "" || resetStr == "" {
		return nil, nil
	}

	limit, err := primaryValue(limitStr)
	if err != nil {
		return nil, err
	}
	remaining, err := primaryValue(remainingStr)
	if err != nil {
		return nil, err
	}
	reset, err := seconds(resetStr)
	if err != nil {
		return nil, err
	}

	return &RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// ParseRetryAfter reports how long WHOOP asked the caller to back off, preferring
// X-RateLimit-Reset over the standard Retry-After header.
func ParseRetryAfter(headers http.Header) (time.Duration, bool) {
	for _, key := range []string{resetHeaderKey, retryAfterHeaderKey} {
		if s := headers.Get(key); s != "" {
			if d, err := seconds(s); err == nil && d >= 0 {
				return d, true
			}
		}
	}
	return 0, false
}

func seconds(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// primaryValue reads the first number of a rate limit header, which may be
// "100" or the structured "100, 100;window=60, 10000;window=86400".
func primaryValue(s string) (int, error) {
	value, _, _ := strings.Cut(s, ",")
	value, _, _ = strings.Cut(value, ";")
	return strconv.Atoi(strings.TrimSpace(value))
}
