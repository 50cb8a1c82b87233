package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/garrettladley/whoopweb/internal/version"
	"github.com/garrettladley/whoopweb/internal/xerrors"
	"github.com/garrettladley/whoopweb/internal/xhttp"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandleHealth reports 200 while the session backend answers a ping.
func HandleHealth(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("session store unavailable"), xerrors.WithCause(err)))
			return
		}

		xhttp.SetHeaderNoStore(w)
		xhttp.WriteOK(w, healthResponse{Status: "ok", Version: version.Get()})
	}
}
