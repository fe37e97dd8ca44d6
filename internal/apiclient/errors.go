package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoRefreshToken is returned when a request is rejected with 401 and
	// no refresh token is stored. The session is cleared.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshRejected marks a refresh the backend refused
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrRefreshUnavailable marks a refresh that failed in transit or timed out
	ErrRefreshUnavailable = errors.New("refresh service unavailable")

	// ErrUnauthorizedAfterRefresh is returned when a request is rejected again
	// after it was retried with a fresh token
	ErrUnauthorizedAfterRefresh = errors.New("request unauthorized after token refresh")
)

// RefreshError describes a failed refresh call. Kind is ErrRefreshRejected or
// ErrRefreshUnavailable.
type RefreshError struct {
	Kind       error
	StatusCode int
	Detail     string
	Err        error
}

func (e *RefreshError) Error() string {
	msg := "token refresh failed: " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// APIError is a non-success response that is not an authorization failure
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// IsSessionLost reports whether err means the session ended and the user
// has to log in again
func IsSessionLost(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrRefreshRejected) ||
		errors.Is(err, ErrRefreshUnavailable) ||
		errors.Is(err, ErrUnauthorizedAfterRefresh)
}

// StatusCode extracts the HTTP status of an APIError or RefreshError, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.StatusCode
	}
	return 0
}

// errorBody covers both error shapes the backend answers with: a bare
// detail (string or list of validation errors) and the response envelope.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// parseDetail extracts a human readable message from an error response body
func parseDetail(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if detail := detailString(eb.Detail); detail != "" {
			return detail
		}
		if eb.Error != nil && eb.Error.Message != "" {
			return eb.Error.Message
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 && !strings.HasPrefix(text, "{") {
		return text
	}
	return fmt.Sprintf("request failed with status %d (%s)", status, http.StatusText(status))
}

func detailString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			var text string
			if err := json.Unmarshal(item, &text); err == nil {
				parts = append(parts, text)
			} else {
				parts = append(parts, string(item))
			}
		}
		return strings.Join(parts, "; ")
	}

	return string(raw)
}
