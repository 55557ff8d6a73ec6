package common

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/wrale/idm-dashboard/internal/apiclient"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/session"
)

// LoginPath is where signed out users are sent
const LoginPath = "/login"

type (
	userKey     struct{}
	redirectKey struct{}
)

// WithUser returns a context carrying the signed in user
func WithUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by RequireUser, or nil
func UserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userKey{}).(*identity.User)
	return user
}

// TrackLoginRedirect lets the API client's Navigator flag the current
// request for a redirect to the login page
func TrackLoginRedirect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), redirectKey{}, new(atomic.Bool))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Navigator returns the apiclient.Navigator used by the dashboard. It only
// records the request; handlers act on it through LoginRequested.
func Navigator() apiclient.Navigator {
	return apiclient.NavigatorFunc(func(ctx context.Context) {
		if flag, ok := ctx.Value(redirectKey{}).(*atomic.Bool); ok {
			flag.Store(true)
		}
	})
}

// LoginRequested reports whether the API client gave up on the session
// during this request
func LoginRequested(ctx context.Context) bool {
	flag, ok := ctx.Value(redirectKey{}).(*atomic.Bool)
	return ok && flag.Load()
}

// RedirectIfSignedOut sends the user to the login page when the session
// expired while serving the request, and reports whether it did
func RedirectIfSignedOut(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrSessionExpired) && !LoginRequested(r.Context()) {
		return false
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	return true
}

// RequireUser restores the profile's user before calling next. Requests
// without a usable token are redirected to the login page.
func RequireUser(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user, err := svc.Restore(ctx, session.FromContext(ctx))
			if err != nil {
				if !errors.Is(err, identity.ErrSignedOut) && !errors.Is(err, apiclient.ErrSessionExpired) {
					slog.WarnContext(ctx, "restoring session", "path", r.URL.Path, "error", err)
				}
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}
