package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks requests rejected before any network call.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized marks 401 responses and "Unauthorized" error messages.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBackendUnavailable marks transport failures: the backend could not
	// be reached at all.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrAPI marks every non-2xx response that is not an auth failure.
	ErrAPI = errors.New("api error")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrAPI) match any APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// newAPIError extracts a message from a structured error body, falling back
// to "API Error: {status}".
func newAPIError(status int, body []byte) *APIError {
	msg := extractMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("API Error: %d", status)
	}
	return &APIError{Status: status, Message: msg}
}

func extractMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if msg := messageFrom(payload[key]); msg != "" {
			return msg
		}
	}
	return ""
}

func messageFrom(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"message", "msg", "detail"} {
			if msg := messageFrom(t[key]); msg != "" {
				return msg
			}
		}
	case []any:
		// validation details: [{"loc": [...], "msg": "..."}]
		var parts []string
		for _, item := range t {
			if msg := messageFrom(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// IsUnauthorized reports whether err should trigger a new login.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnauthorized) || strings.Contains(err.Error(), "Unauthorized")
}

// IsUnavailable reports whether the backend could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// DisplayMessage returns the first user-facing hint attached to err, or the
// error text when there is none.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
