// Package session holds the per-profile dashboard state: the bearer token,
// the in-flight OAuth state nonce and the backend's refresh cookies.
//
// A profile is one browser, identified by a long-lived cookie. Its slots live in
// a storage.Store so that state survives restarts and is shared across replicas.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wrale/idm-dashboard/internal/storage"
)

// Slot names
const (
	tokenSlot    = "token"
	stateSlot    = "oauth_state"
	verifierSlot = "oauth_verifier"
	cookieSlot   = "cookies:"
)

// Default lifetimes
const (
	DefaultStateTTL   = 10 * time.Minute
	DefaultProfileTTL = 30 * 24 * time.Hour
)

// ErrNoState indicates no OAuth authorization is in flight for the profile
var ErrNoState = errors.New("no oauth state stored")

// Session is the explicit state object handed to the API client
type Session struct {
	store      storage.Store
	profile    string
	stateTTL   time.Duration
	profileTTL time.Duration
}

// Option configures a Session
type Option func(*Session)

// WithStateTTL sets how long an OAuth state nonce stays valid
func WithStateTTL(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.stateTTL = d
		}
	}
}

// WithProfileTTL sets how long durable slots survive without being rewritten
func WithProfileTTL(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.profileTTL = d
		}
	}
}

// New binds a session to a profile. A nil store or empty profile yields a
// session whose reads and writes are no-ops.
func New(store storage.Store, profile string, opts ...Option) *Session {
	if store == nil || profile == "" {
		store = storage.Unavailable()
	}
	s := &Session{
		store:      store,
		profile:    profile,
		stateTTL:   DefaultStateTTL,
		profileTTL: DefaultProfileTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the profile identifier the session is bound to
func (s *Session) Profile() string {
	return s.profile
}

func (s *Session) key(slot string) string {
	return "profile:" + s.profile + ":" + slot
}

// Token returns the stored bearer token, if any
func (s *Session) Token(ctx context.Context) (string, bool) {
	token, err := s.store.Get(ctx, s.key(tokenSlot))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrUnavailable) {
			slog.WarnContext(ctx, "reading session token", "profile", s.profile, "error", err)
		}
		return "", false
	}
	return token, token != ""
}

// SetToken persists a bearer token, replacing any previous one
func (s *Session) SetToken(ctx context.Context, token string) {
	if err := s.store.Set(ctx, s.key(tokenSlot), token, s.profileTTL); err != nil && !errors.Is(err, storage.ErrUnavailable) {
		slog.WarnContext(ctx, "writing session token", "profile", s.profile, "error", err)
	}
}

// ClearToken removes the stored bearer token
func (s *Session) ClearToken(ctx context.Context) {
	if err := s.store.Delete(ctx, s.key(tokenSlot)); err != nil && !errors.Is(err, storage.ErrUnavailable) {
		slog.WarnContext(ctx, "clearing session token", "profile", s.profile, "error", err)
	}
}

// SaveOAuthState stores the state nonce and optional PKCE verifier of an
// authorization request. Any earlier in-flight request is replaced.
func (s *Session) SaveOAuthState(ctx context.Context, state, verifier string) error {
	if err := s.store.Set(ctx, s.key(stateSlot), state, s.stateTTL); err != nil {
		return fmt.Errorf("saving oauth state: %w", err)
	}
	if verifier == "" {
		if err := s.store.Delete(ctx, s.key(verifierSlot)); err != nil {
			return fmt.Errorf("clearing pkce verifier: %w", err)
		}
		return nil
	}
	if err := s.store.Set(ctx, s.key(verifierSlot), verifier, s.stateTTL); err != nil {
		return fmt.Errorf("saving pkce verifier: %w", err)
	}
	return nil
}

// TakeOAuthState returns and deletes the in-flight state nonce and verifier.
// It returns ErrNoState when nothing is stored or the nonce expired.
func (s *Session) TakeOAuthState(ctx context.Context) (state, verifier string, err error) {
	state, err = s.store.Get(ctx, s.key(stateSlot))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", "", ErrNoState
	case err != nil:
		return "", "", fmt.Errorf("loading oauth state: %w", err)
	}

	verifier, err = s.store.Get(ctx, s.key(verifierSlot))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", "", fmt.Errorf("loading pkce verifier: %w", err)
	}

	for _, slot := range []string{stateSlot, verifierSlot} {
		if err := s.store.Delete(ctx, s.key(slot)); err != nil {
			return "", "", fmt.Errorf("consuming oauth state: %w", err)
		}
	}
	return state, verifier, nil
}

// CookieJar returns a jar persisting backend cookies in the profile's slots.
// The backend keeps its refresh context in these cookies.
func (s *Session) CookieJar(ctx context.Context) http.CookieJar {
	return &jar{ctx: ctx, session: s, now: time.Now}
}
