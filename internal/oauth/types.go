// Package oauth runs the OAuth 2.0 authorization code flow against the
// identity provider and signs the user in with the issued token
package oauth

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrStateMismatch indicates the callback state does not match the one
	// issued for this profile, or none was issued
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrMissingCode indicates a callback without an authorization code
	ErrMissingCode = errors.New("missing authorization code")

	// ErrMissingToken indicates a first-party redirect without an access token
	ErrMissingToken = errors.New("missing access token")
)

// Page messages shown for failed callbacks
const (
	msgStateMismatch  = "Invalid state parameter. CSRF attack detected!"
	msgMissingCode    = "No authorization code found."
	msgExchangeFailed = "Failed to get access token."
	msgIdentityFailed = "Failed to fetch user data."
)

// AuthorizationError is an error returned by the provider on the redirect
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// ExchangeError is a failed code exchange at the token endpoint
type ExchangeError struct {
	// Description is the provider's error_description, possibly empty
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchanging code: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IdentityError is a failure to load the user with a freshly issued token
type IdentityError struct {
	// Message is the server-provided message, possibly empty
	Message string
	Err     error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("fetching identity: %v", e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the user for a failed callback
func Message(err error) string {
	var (
		authErr     *AuthorizationError
		exchangeErr *ExchangeError
		identityErr *IdentityError
	)
	switch {
	case errors.Is(err, ErrStateMismatch):
		return msgStateMismatch
	case errors.Is(err, ErrMissingCode):
		return msgMissingCode
	case errors.As(err, &authErr):
		if authErr.Description != "" {
			return authErr.Description
		}
		return authErr.Code
	case errors.As(err, &exchangeErr):
		if exchangeErr.Description != "" {
			return exchangeErr.Description
		}
		return msgExchangeFailed
	case errors.As(err, &identityErr):
		if identityErr.Message != "" {
			return identityErr.Message
		}
		return msgIdentityFailed
	case err == nil:
		return ""
	}
	return err.Error()
}

// Config holds the client registration used by the code flow
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string

	// PKCE adds an S256 code challenge to the authorization request
	PKCE bool
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	for name, raw := range map[string]string{
		"authorize URL": c.AuthorizeURL,
		"token URL":     c.TokenURL,
		"redirect URI":  c.RedirectURI,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	return nil
}

// IssuedToken returns the access token of a first-party redirect such as
// /auth/callback?accessToken=...
func IssuedToken(query url.Values) (string, error) {
	token := query.Get("accessToken")
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
