package medos

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the Medos API.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("medos: %s returned %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("medos: %s returned %d", e.Path, e.StatusCode)
}

func newAPIError(status int, path string, body []byte) *APIError {
	raw := string(body)
	if len(raw) > 300 {
		raw = raw[:300]
	}
	return &APIError{
		StatusCode: status,
		Path:       routeLabel(path),
		Message:    messageFromBody(body),
		Body:       raw,
	}
}

// MessageOf returns the human-readable message carried by an API error, or "".
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// messageFromBody looks for a message in the shapes the API uses:
// {"message"}, {"error": "..."}, {"error": {"message"}}, {"data": {"message"}}.
func messageFromBody(body []byte) string {
	var envelope struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(envelope.Message); msg != "" {
		return msg
	}
	if msg := nestedMessage(envelope.Error); msg != "" {
		return msg
	}
	return nestedMessage(envelope.Data)
}

func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}
