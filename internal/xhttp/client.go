package xhttp

import (
	"net/http"
	"time"
)

type ClientOption func(*http.Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *http.Client) { c.Timeout = d }
}

// WithTransport replaces the base round tripper wrapped by NewTransport.
func WithTransport(base http.RoundTripper) ClientOption {
	return func(c *http.Client) { c.Transport = NewTransportWithBase(base) }
}

// NewHTTPClient never follows redirects from WHOOP; a 3xx is surfaced to the caller.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	c := &http.Client{
		Transport: NewTransport(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
