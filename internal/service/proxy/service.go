package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
)

// EndpointSpec names a WHOOP resource and the scope needed to read it.
type EndpointSpec struct {
	Name          string
	Path          string
	RequiredScope string
}

type Service interface {
	// FetchResource performs an authenticated GET for the session and returns the raw body.
	// Token failures from the token service are returned unchanged; every other failure
	// is one of the error types in this package.
	FetchResource(ctx context.Context, sessionID string, spec EndpointSpec, params *whoop.ListParams) (json.RawMessage, error)
}

// ScopeError means the session was never granted the scope an endpoint needs.
type ScopeError struct {
	Endpoint string
	Required string
	Granted  []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("endpoint %s requires scope %s, granted: %s", e.Endpoint, e.Required, strings.Join(e.Granted, " "))
}

// UpstreamAPIError carries a non-2xx WHOOP response through to the client.
type UpstreamAPIError struct {
	StatusCode   int
	ProviderBody string
	RetryAfter   time.Duration
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("whoop api returned %d: %s", e.StatusCode, whoop.ErrorMessage(e.StatusCode, []byte(e.ProviderBody)))
}

type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("whoop api unreachable: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

type APIErrorKind int

const (
	MalformedResponse APIErrorKind = iota
)

func (k APIErrorKind) String() string {
	switch k {
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

type APIError struct {
	Kind     APIErrorKind
	Endpoint string
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("whoop api %s: %s", e.Endpoint, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}
