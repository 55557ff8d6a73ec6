// Package identity wraps the identity REST API in typed calls
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/wrale/idm-dashboard/internal/apiclient"
)

// ErrSignedOut is returned by Restore when the profile holds no token
var ErrSignedOut = errors.New("not signed in")

// ErrNoAccessToken indicates a successful login response without a token
var ErrNoAccessToken = errors.New("response has no access token")

// Service calls the identity API on behalf of a browser profile
type Service struct {
	client *apiclient.Client
}

// NewService creates a Service backed by client
func NewService(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// Credentials are the fields of the password login form
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration are the fields of the signup form
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Login exchanges credentials for an access token. The token is not stored;
// pass it to SignIn.
func (s *Service) Login(ctx context.Context, sess apiclient.Session, creds Credentials) (string, error) {
	return s.issueToken(ctx, sess, "/auth/login", creds)
}

// Signup creates an account and returns its first access token
func (s *Service) Signup(ctx context.Context, sess apiclient.Session, reg Registration) (string, error) {
	return s.issueToken(ctx, sess, "/auth/signup", reg)
}

func (s *Service) issueToken(ctx context.Context, sess apiclient.Session, path string, body any) (string, error) {
	var resp tokenResponse
	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		NoRefresh: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return resp.AccessToken, nil
}

// RequestMagicLink asks the backend to email a one-time sign-in link
func (s *Service) RequestMagicLink(ctx context.Context, sess apiclient.Session, email string) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/magic-login",
		Body:      map[string]string{"email": email},
		NoRefresh: true,
	}, nil)
}

// Me loads the authenticated user
func (s *Service) Me(ctx context.Context, sess apiclient.Session) (*User, error) {
	var user User
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/auth/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// MeWithToken loads the user owning token without touching any stored session
func (s *Service) MeWithToken(ctx context.Context, token string) (*User, error) {
	resp, err := s.client.DoWithToken(ctx, token, apiclient.Request{Path: "/auth/me"})
	if err != nil {
		return nil, err
	}
	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignIn stores token for the profile and loads its user. The token stays
// stored when loading the user fails.
func (s *Service) SignIn(ctx context.Context, sess apiclient.Session, token string) (*User, error) {
	sess.SetToken(ctx, token)
	user, err := s.Me(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("loading signed in user: %w", err)
	}
	return user, nil
}

// Restore loads the user of a stored token. A token the backend rejects is
// cleared.
func (s *Service) Restore(ctx context.Context, sess apiclient.Session) (*User, error) {
	if _, ok := sess.Token(ctx); !ok {
		return nil, ErrSignedOut
	}
	user, err := s.Me(ctx, sess)
	if err != nil {
		sess.ClearToken(ctx)
		return nil, err
	}
	return user, nil
}

// Logout ends the backend session and always clears the stored token
func (s *Service) Logout(ctx context.Context, sess apiclient.Session) error {
	defer sess.ClearToken(ctx)

	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/logout",
	}, nil)
	if err != nil {
		slog.WarnContext(ctx, "logout request failed", "error", err)
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// UpdateProfile saves the non-empty fields of update and returns the
// updated user
func (s *Service) UpdateProfile(ctx context.Context, sess apiclient.Session, update ProfileUpdate) (*User, error) {
	var user User
	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPut,
		Path:   "/auth/profile",
		Body:   update,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword replaces the account password
func (s *Service) ChangePassword(ctx context.Context, sess apiclient.Session, current, next string) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/change-password",
		Body: map[string]string{
			"currentPassword": current,
			"newPassword":     next,
		},
	}, nil)
}

// Activity lists recent security events
func (s *Service) Activity(ctx context.Context, sess apiclient.Session) ([]ActivityEvent, error) {
	var resp struct {
		Activity []ActivityEvent `json:"activity"`
	}
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/auth/activity"}, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// Sessions lists the devices signed in to the account
func (s *Service) Sessions(ctx context.Context, sess apiclient.Session) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/auth/sessions"}, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// RevokeSession signs out one device
func (s *Service) RevokeSession(ctx context.Context, sess apiclient.Session, id string) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/auth/sessions/" + url.PathEscape(id),
	}, nil)
}

// RevokeAllSessions signs out every device except the current one
func (s *Service) RevokeAllSessions(ctx context.Context, sess apiclient.Session) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/sessions/revoke-all",
	}, nil)
}

// GenerateTwoFactor starts authenticator enrollment
func (s *Service) GenerateTwoFactor(ctx context.Context, sess apiclient.Session) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/2fa/generate",
	}, &setup)
	if err != nil {
		return nil, err
	}
	return &setup, nil
}

// VerifyTwoFactor confirms enrollment with a code from the authenticator
func (s *Service) VerifyTwoFactor(ctx context.Context, sess apiclient.Session, code string) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/2fa/verify",
		Body:   map[string]string{"token": code},
	}, nil)
}

// DisableTwoFactor turns two-factor authentication off
func (s *Service) DisableTwoFactor(ctx context.Context, sess apiclient.Session) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/2fa/disable",
	}, nil)
}

// APIKeys lists the account's API keys
func (s *Service) APIKeys(ctx context.Context, sess apiclient.Session) ([]APIKey, error) {
	var resp struct {
		Keys []APIKey `json:"keys"`
	}
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/keys"}, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// CreateAPIKey creates a key and returns its secret, which is shown once
func (s *Service) CreateAPIKey(ctx context.Context, sess apiclient.Session, name string) (string, error) {
	var resp struct {
		APIKey string `json:"apiKey"`
	}
	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/keys",
		Body:   map[string]string{"name": name},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.APIKey, nil
}

// RevokeAPIKey deletes a key
func (s *Service) RevokeAPIKey(ctx context.Context, sess apiclient.Session, id string) error {
	return s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/keys/" + url.PathEscape(id),
	}, nil)
}

// Clients lists the account's OAuth clients
func (s *Service) Clients(ctx context.Context, sess apiclient.Session) ([]ClientApp, error) {
	var resp struct {
		Clients []ClientApp `json:"clients"`
	}
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/clients"}, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// RegisterClient registers an OAuth client
func (s *Service) RegisterClient(ctx context.Context, sess apiclient.Session, name string, redirectURIs []string) (*RegisteredClient, error) {
	var resp struct {
		Client RegisteredClient `json:"client"`
	}
	err := s.client.DoJSON(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/clients/register",
		Body: map[string]any{
			"name":         name,
			"redirectUris": redirectURIs,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Client, nil
}

// Users lists every account. The backend restricts it to admins.
func (s *Service) Users(ctx context.Context, sess apiclient.Session) ([]SystemUser, error) {
	var resp struct {
		Users []SystemUser `json:"users"`
	}
	if err := s.client.DoJSON(ctx, sess, apiclient.Request{Path: "/admin/users"}, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}
