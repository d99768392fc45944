package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrAudioTooLarge rejects a response body over the configured audio cap.
var ErrAudioTooLarge = errors.New("response audio exceeds size limit")

// TimeoutError means the request deadline passed before a response arrived.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.Endpoint, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusError means the backend answered with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Detail)
}

// NetworkError means no response was received.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsTimeout reports whether err carries a *TimeoutError.
func AsTimeout(err error) (*TimeoutError, bool) {
	var target *TimeoutError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsStatus reports whether err carries a *StatusError.
func AsStatus(err error) (*StatusError, bool) {
	var target *StatusError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsNetwork reports whether err carries a *NetworkError.
func AsNetwork(err error) (*NetworkError, bool) {
	var target *NetworkError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// statusDetail extracts the FastAPI {"detail": ...} message when present.
func statusDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			return strings.TrimSpace(text)
		}
		return strings.TrimSpace(string(payload.Detail))
	}

	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "unknown status"
}
