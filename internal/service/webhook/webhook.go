package webhook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/garrettladley/whoopweb/internal/xslog"
)

type Processor struct{}

var _ Service = (*Processor)(nil)

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) ProcessWebhook(ctx context.Context, body []byte) (Event, error) {
	logger := xslog.FromContext(ctx)

	event, err := ParseEvent(body)
	if err != nil {
		logger.WarnContext(ctx, "rejected webhook", xslog.Error(err))
		return Event{}, err
	}

	attrs := []any{slog.Any("payload", json.RawMessage(body))}
	if event.Type != "" {
		attrs = append(attrs, xslog.EventType(event.Type))
	}
	if event.ID != "" {
		attrs = append(attrs, slog.String("entity_id", event.ID))
	}
	if event.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", event.TraceID))
	}
	logger.InfoContext(ctx, "webhook received", attrs...)

	return event, nil
}
