package webhook

import (
	"strconv"
	"strings"

	go_json "github.com/goccy/go-json"
)

type Action string

const (
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event is what could be read from a WHOOP webhook payload such as
// {"user_id": 10129, "id": "ecfc6a15-...", "type": "sleep.updated", "trace_id": "..."}.
// Fields are empty when the payload does not carry them.
type Event struct {
	Type    string
	Entity  string
	Action  Action
	UserID  string
	ID      string
	TraceID string
}

type rawPayload struct {
	Type    string             `json:"type"`
	UserID  go_json.Number     `json:"user_id"`
	ID      go_json.RawMessage `json:"id"`
	TraceID string             `json:"trace_id"`
}

// ParseEvent never fails on valid JSON; unknown shapes produce a zero Event.
func ParseEvent(data []byte) (Event, error) {
	if !go_json.Valid(data) {
		return Event{}, ErrInvalidPayload
	}

	var raw rawPayload
	if err := go_json.Unmarshal(data, &raw); err != nil {
		return Event{}, nil
	}

	e := Event{
		Type:    raw.Type,
		UserID:  raw.UserID.String(),
		ID:      idString(raw.ID),
		TraceID: raw.TraceID,
	}
	if entity, action, ok := strings.Cut(raw.Type, "."); ok {
		e.Entity = entity
		e.Action = Action(action)
	}
	return e, nil
}

// idString accepts both the UUID strings of v2 and the integer IDs of v1.
func idString(raw go_json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := go_json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := go_json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}
