package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/garrettladley/whoopweb/internal/service/webhook"
	"github.com/garrettladley/whoopweb/internal/xerrors"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xslog"
)

const (
	PathWebhook = "/webhook"

	maxWebhookBody = 1 << 20
)

type webhookResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Webhook struct {
	service webhook.Service
}

func NewWebhook(service webhook.Service) *Webhook {
	return &Webhook{service: service}
}

// HandleWebhook handles /webhook requests. Only POST is accepted.
func (h *Webhook) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		xhttp.WriteJSON(w, http.StatusMethodNotAllowed, webhookResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.WarnContext(ctx, "failed to read webhook body", xslog.Error(err))
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body")))
		return
	}

	if _, err := h.service.ProcessWebhook(ctx, body); err != nil {
		if errors.Is(err, webhook.ErrInvalidPayload) {
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("request body must be JSON")))
			return
		}
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to process webhook"), xerrors.WithCause(err)))
		return
	}

	xhttp.WriteOK(w, webhookResponse{Message: "Webhook received"})
}
