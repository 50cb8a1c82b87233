package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
	"github.com/garrettladley/whoopweb/internal/service/proxy"
)

var ErrUnknownEndpoint = errors.New("unknown endpoint")

type Service struct {
	proxy proxy.Service
}

func NewService(p proxy.Service) *Service {
	return &Service{proxy: p}
}

// Get fetches the named resource for the session and returns its transformed form.
// List parameters are dropped for endpoints that are not paginated.
func (s *Service) Get(ctx context.Context, sessionID, name string, params *whoop.ListParams) (any, error) {
	e, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}

	if !e.Paginated() {
		params = nil
	}

	raw, err := s.proxy.FetchResource(ctx, sessionID, e.Spec(), params)
	if err != nil {
		return nil, err
	}

	return e.Render(raw)
}
