// Package validation checks dashboard form input before it reaches the identity API
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation settings
const (
	MinPasswordLength   = 8
	MaxNameLength       = 100
	TwoFactorCodeLength = 6
)

var (
	emailRegex         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	twoFactorCodeRegex = regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, TwoFactorCodeLength))
)

// ValidationError represents an invalid form field. Message is shown to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the basic shape of an email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required."}
	}
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	return nil
}

// ValidateNewPassword checks a password chosen by the user. Existing
// passwords are only checked by the backend.
func ValidateNewPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "newPassword",
			Message: fmt.Sprintf("New password must be at least %d characters long.", MinPasswordLength),
		}
	}
	return nil
}

// ValidateName checks a display, key or application name
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: field, Message: "Name is required."}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Name must be at most %d characters.", MaxNameLength),
		}
	}
	return nil
}

// NormalizeTwoFactorCode strips the spaces authenticator apps display
func NormalizeTwoFactorCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}

// ValidateTwoFactorCode checks a one-time code from an authenticator app
func ValidateTwoFactorCode(code string) error {
	if !twoFactorCodeRegex.MatchString(NormalizeTwoFactorCode(code)) {
		return &ValidationError{
			Field:   "token",
			Message: fmt.Sprintf("Enter the %d-digit code from your authenticator app.", TwoFactorCodeLength),
		}
	}
	return nil
}

// ParseRedirectURIs splits a comma separated list of redirect URIs, dropping
// blanks. At least one absolute URI is required.
func ParseRedirectURIs(raw string) ([]string, error) {
	var uris []string
	for _, part := range strings.Split(raw, ",") {
		uri := strings.TrimSpace(part)
		if uri == "" {
			continue
		}
		u, err := url.Parse(uri)
		if err != nil || u.Scheme == "" || u.Fragment != "" {
			return nil, &ValidationError{
				Field:   "redirectUris",
				Message: fmt.Sprintf("%q is not a valid redirect URI.", uri),
			}
		}
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
			return nil, &ValidationError{
				Field:   "redirectUris",
				Message: fmt.Sprintf("%q is missing a host.", uri),
			}
		}
		uris = append(uris, uri)
	}

	if len(uris) == 0 {
		return nil, &ValidationError{
			Field:   "redirectUris",
			Message: "Please provide at least one valid Redirect URI.",
		}
	}
	return uris, nil
}
