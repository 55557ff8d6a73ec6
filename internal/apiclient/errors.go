package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionExpired indicates a 401 could not be recovered by refreshing the
// session. The stored token has been cleared when it is returned.
var ErrSessionExpired = errors.New("session expired")

// Error is a non-2xx response from the identity API. Message holds the
// server-provided explanation and may be empty.
type Error struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, message)
}

// newError builds an Error from the server's message or error_description
func newError(resp *Response) *Error {
	var body struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	// Non-JSON bodies leave Message empty
	_ = json.Unmarshal(resp.Body, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = strings.TrimSpace(body.ErrorDescription)
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       resp.Body,
	}
}

// IsStatus reports whether err carries an API response with the given status
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Message returns the server-provided message of an API error, or fallback
// for any other failure
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
