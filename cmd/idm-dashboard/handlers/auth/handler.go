// Package auth serves the sign in, sign up and sign out pages
package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/metrics"
	"github.com/wrale/idm-dashboard/internal/oauth"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
	"github.com/wrale/idm-dashboard/internal/validation"
)

// DashboardPath is where signed in users land
const DashboardPath = "/dashboard"

const (
	msgLoginFailed     = "Login failed."
	msgSignupFailed    = "An unknown error occurred"
	msgMagicLinkFailed = "Could not send magic link. Please try again later."
	msgMagicLinkSent   = "If an account with that email exists, a login link has been sent."
)

// Handler serves the authentication pages
type Handler struct {
	identity  *identity.Service
	pages     *common.Pages
	recorder  metrics.Recorder
	googleURL string
}

// Config contains handler configuration
type Config struct {
	Identity *identity.Service
	Pages    *common.Pages
	Recorder metrics.Recorder

	// GoogleLoginURL starts the backend's Google sign in
	GoogleLoginURL string
}

// New creates a new authentication handler
func New(cfg Config) *Handler {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Handler{
		identity:  cfg.Identity,
		pages:     cfg.Pages,
		recorder:  recorder,
		googleURL: cfg.GoogleLoginURL,
	}
}

// HandleLoginPage shows the password or magic link form. Users with a
// valid session go straight to the dashboard.
func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, templates.LoginData{
		MagicLink: r.URL.Query().Get("magic") != "",
	})
}

// HandleLogin signs in with email and password
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	email := validation.NormalizeEmail(r.PostFormValue("email"))
	data := templates.LoginData{Email: email}

	if err := validation.ValidateEmail(email); err != nil {
		data.Error = common.UserMessage(err, msgLoginFailed)
		h.renderLogin(w, r, http.StatusBadRequest, data)
		return
	}

	token, err := h.identity.Login(ctx, sess, identity.Credentials{
		Email:    email,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.recorder.RecordLogin("password", false)
		data.Error = common.UserMessage(err, msgLoginFailed)
		h.renderLogin(w, r, common.StatusFor(err), data)
		return
	}

	h.signIn(w, r, "password", token)
}

// HandleMagicLink emails a one-time sign in link. The response does not
// reveal whether the account exists.
func (h *Handler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := validation.NormalizeEmail(r.PostFormValue("email"))
	data := templates.LoginData{Email: email, MagicLink: true}

	if err := validation.ValidateEmail(email); err != nil {
		data.Error = common.UserMessage(err, msgMagicLinkFailed)
		h.renderLogin(w, r, http.StatusBadRequest, data)
		return
	}

	if err := h.identity.RequestMagicLink(ctx, session.FromContext(ctx), email); err != nil {
		slog.WarnContext(ctx, "requesting magic link", "error", err)
		data.Error = msgMagicLinkFailed
		h.renderLogin(w, r, common.StatusFor(err), data)
		return
	}

	data.Flash = msgMagicLinkSent
	h.renderLogin(w, r, http.StatusOK, data)
}

// HandleGoogle hands the browser to the backend's Google sign in
func (h *Handler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.googleURL, http.StatusFound)
}

// HandleSignupPage shows the registration form
func (h *Handler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	data := templates.SignupData{Page: h.pages.Page(r, "Sign up")}
	h.pages.Render(w, r, http.StatusOK, templates.PageSignup, data)
}

// HandleSignup creates an account and signs it in
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg := identity.Registration{
		Name:     r.PostFormValue("name"),
		Email:    validation.NormalizeEmail(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	err := errors.Join(
		validation.ValidateName("name", reg.Name),
		validation.ValidateEmail(reg.Email),
	)
	var token string
	if err == nil {
		token, err = h.identity.Signup(ctx, session.FromContext(ctx), reg)
	}
	if err != nil {
		h.recorder.RecordLogin("signup", false)
		data := templates.SignupData{
			Page:  h.pages.Page(r, "Sign up"),
			Name:  reg.Name,
			Email: reg.Email,
		}
		data.Error = common.UserMessage(err, msgSignupFailed)
		h.pages.Render(w, r, common.StatusFor(err), templates.PageSignup, data)
		return
	}

	h.signIn(w, r, "signup", token)
}

// HandleTokenCallback completes magic link and Google sign in, where the
// backend redirects back with the access token in the query
func (h *Handler) HandleTokenCallback(w http.ResponseWriter, r *http.Request) {
	token, err := oauth.IssuedToken(r.URL.Query())
	if err != nil {
		h.recorder.RecordLogin("link", false)
		http.Redirect(w, r, common.LoginPath, http.StatusSeeOther)
		return
	}
	h.signIn(w, r, "link", token)
}

// HandleLogout ends the session. The stored token is cleared even when the
// backend call fails.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Failures are logged by the service
	_ = h.identity.Logout(ctx, session.FromContext(ctx))
	http.Redirect(w, r, common.LoginPath, http.StatusSeeOther)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, method, token string) {
	ctx := r.Context()
	user, err := h.identity.SignIn(ctx, session.FromContext(ctx), token)
	if err != nil {
		h.recorder.RecordLogin(method, false)
		h.pages.Fail(w, r, err, msgLoginFailed)
		return
	}

	h.recorder.RecordLogin(method, true)
	slog.InfoContext(ctx, "user signed in", "user_id", user.ID, "method", method)
	http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
}

func (h *Handler) signedIn(r *http.Request) bool {
	ctx := r.Context()
	_, err := h.identity.Restore(ctx, session.FromContext(ctx))
	return err == nil
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data templates.LoginData) {
	h.pages.Fill(r, "Login", &data.Page)
	h.pages.Render(w, r, status, templates.PageLogin, data)
}
