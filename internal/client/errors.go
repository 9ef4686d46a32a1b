package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for API responses.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested snapshot or project does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the API key was rejected (401 or 403). Runs abort on it.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api error: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// maxErrorMessageLen bounds the response text kept in an APIError.
const maxErrorMessageLen = 512

// newAPIError builds an APIError, pulling the message out of a JSON body when present.
func newAPIError(method, path string, status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		msg = payload.Message
	}
	return &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Message:    truncate(msg, maxErrorMessageLen),
	}
}
