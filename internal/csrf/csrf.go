// Package csrf provides signed tokens for form CSRF protection and OAuth state
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/storage"
)

// FormField is the form field carrying the CSRF token
const FormField = "csrf_token"

var (
	// ErrInvalidToken indicates a missing, forged or unknown CSRF token
	ErrInvalidToken = errors.New("invalid csrf token")

	// ErrTokenExpired indicates the CSRF token has expired
	ErrTokenExpired = errors.New("csrf token expired")

	// ErrNoProfile indicates the request carries no browser profile
	ErrNoProfile = errors.New("no profile bound to request")
)

// Manager handles CSRF token generation and validation. Tokens are bound to
// the browser profile of the request and kept one per profile.
type Manager struct {
	store     storage.Store
	secret    []byte
	expiresIn time.Duration
}

// NewManager creates a new CSRF token manager
func NewManager(store storage.Store, secret []byte, expiresIn time.Duration) *Manager {
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
	}
}

// NewState returns a signed random value that is not stored. It serves as
// the OAuth state parameter, which the session keeps itself.
func (m *Manager) NewState() (string, error) {
	return m.newToken("")
}

// GenerateToken returns the CSRF token of the request's profile, issuing one
// when the profile has none. Every call extends the token's lifetime.
func (m *Manager) GenerateToken(ctx context.Context) (string, error) {
	profile := session.FromContext(ctx).Profile()
	if profile == "" {
		return "", ErrNoProfile
	}

	key := tokenKey(profile)
	token, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("loading token: %w", err)
	}
	if err != nil || m.verify(profile, token) != nil {
		if token, err = m.newToken(profile); err != nil {
			return "", err
		}
	}

	if err := m.store.Set(ctx, key, token, m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}
	return token, nil
}

// Verify checks the signature of an OAuth state without consulting the store
func (m *Manager) Verify(state string) error {
	return m.verify("", state)
}

// ValidateToken checks that token is the current token of the request's
// profile
func (m *Manager) ValidateToken(ctx context.Context, token string) error {
	profile := session.FromContext(ctx).Profile()
	if profile == "" {
		return ErrInvalidToken
	}
	if err := m.verify(profile, token); err != nil {
		return err
	}

	// Expired tokens are evicted by the store
	current, err := m.store.Get(ctx, tokenKey(profile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTokenExpired
		}
		return fmt.Errorf("validating token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(current), []byte(token)) != 1 {
		return ErrTokenExpired
	}
	return nil
}

// Middleware rejects state-changing requests without a valid token in the
// csrf_token form field. It must run inside the session middleware.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if err := m.ValidateToken(r.Context(), r.PostFormValue(FormField)); err != nil {
			slog.WarnContext(r.Context(), "rejected form submission", "path", r.URL.Path, "error", err)
			http.Error(w, "Invalid or expired form. Please reload the page and try again.", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CheckHealth verifies the CSRF manager is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("csrf store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) newToken(profile string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(tokenBytes)
	return value + "." + base64.RawURLEncoding.EncodeToString(m.sign(profile, value)), nil
}

func (m *Manager) verify(profile, token string) error {
	value, sig, ok := strings.Cut(token, ".")
	if !ok || value == "" {
		return ErrInvalidToken
	}
	actualSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(m.sign(profile, value), actualSig) {
		return ErrInvalidToken
	}
	return nil
}

// sign binds value to profile. OAuth states are signed with an empty profile.
func (m *Manager) sign(profile, value string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(profile))
	h.Write([]byte{0})
	h.Write([]byte(value))
	return h.Sum(nil)
}

func tokenKey(profile string) string {
	return "profile:" + profile + ":csrf"
}
