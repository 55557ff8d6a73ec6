package common

import (
	"errors"
	"net/http"

	"github.com/wrale/idm-dashboard/internal/apiclient"
	"github.com/wrale/idm-dashboard/internal/validation"
)

// SetNoStore marks a response as uncacheable
func SetNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// StatusFor picks the status of a page that failed because of err. Client
// errors reported by the identity API are passed through; anything else is
// a bad gateway.
func StatusFor(err error) int {
	var (
		apiErr *apiclient.Error
		valErr *validation.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

// UserMessage returns the text shown for err. Validation messages and
// server-provided messages are shown verbatim; otherwise fallback is used.
func UserMessage(err error, fallback string) string {
	var valErr *validation.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Message
	}
	return apiclient.Message(err, fallback)
}
