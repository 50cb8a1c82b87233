package whoop

import (
	"net/http"
	"strings"

	go_json "github.com/goccy/go-json"
)

// ErrorMessage extracts the human readable part of a WHOOP error body,
// falling back to the raw body and then the status text.
func ErrorMessage(status int, body []byte) string {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	if err := go_json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}

	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return http.StatusText(status)
}
