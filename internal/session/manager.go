package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wrale/idm-dashboard/internal/storage"
)

// DefaultCookieName names the profile cookie
const DefaultCookieName = "idm_profile"

type contextKey struct{}

// Manager assigns each browser a profile and binds a Session to its requests
type Manager struct {
	store      storage.Store
	cookieName string
	secure     bool
	profileTTL time.Duration
	opts       []Option
}

// ManagerConfig contains manager configuration
type ManagerConfig struct {
	Store        storage.Store
	CookieName   string
	SecureCookie bool
	StateTTL     time.Duration
	ProfileTTL   time.Duration
}

// NewManager creates a profile manager
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:      cfg.Store,
		cookieName: cfg.CookieName,
		secure:     cfg.SecureCookie,
		profileTTL: cfg.ProfileTTL,
	}
	if m.cookieName == "" {
		m.cookieName = DefaultCookieName
	}
	if m.profileTTL <= 0 {
		m.profileTTL = DefaultProfileTTL
	}
	m.opts = []Option{WithStateTTL(cfg.StateTTL), WithProfileTTL(m.profileTTL)}
	return m
}

// Middleware loads or issues the profile cookie and stores the bound Session
// in the request context
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := m.profileID(r)
		if profile == "" {
			profile = uuid.NewString()
		}

		// Refresh the cookie on every request so active profiles do not expire
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    profile,
			Path:     "/",
			MaxAge:   int(m.profileTTL.Seconds()),
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})

		sess := New(m.store, profile, m.opts...)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))
	})
}

func (m *Manager) profileID(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

// CheckHealth verifies the backing store
func (m *Manager) CheckHealth(ctx context.Context) error {
	return m.store.CheckHealth(ctx)
}

// NewContext returns a context carrying sess
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the request's Session. Outside the middleware it
// returns a session without storage, so token reads and writes are no-ops.
func FromContext(ctx context.Context) *Session {
	if sess, ok := ctx.Value(contextKey{}).(*Session); ok && sess != nil {
		return sess
	}
	return New(nil, "")
}
