package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPayload is returned when an export endpoint answers with no bytes.
var ErrEmptyPayload = errors.New("backend returned an empty export payload")

// ErrNoToken is returned when a request needs a bearer token and none is known.
var ErrNoToken = errors.New("no bearer token available")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded %d", e.Status)
	}
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

// PayloadError is a JSON error document served where a file was expected.
type PayloadError struct {
	Message string
}

func (e *PayloadError) Error() string {
	return "backend returned an error document: " + e.Message
}

// ErrorMessage pulls a human readable message out of a JSON error body,
// falling back to the trimmed raw text.
func ErrorMessage(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if msg := messageFrom(doc[key]); msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func messageFrom(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if msg := messageFrom(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		for _, key := range []string{"msg", "message", "detail"} {
			if msg := messageFrom(value[key]); msg != "" {
				return msg
			}
		}
	}
	return ""
}
