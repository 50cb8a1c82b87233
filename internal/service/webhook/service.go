package webhook

import (
	"context"
	"errors"
)

var ErrInvalidPayload = errors.New("webhook payload is not valid JSON")

type Service interface {
	// ProcessWebhook logs the payload and returns whatever event metadata could be read from it.
	// Any valid JSON is accepted; ErrInvalidPayload is returned otherwise.
	ProcessWebhook(ctx context.Context, body []byte) (Event, error)
}
