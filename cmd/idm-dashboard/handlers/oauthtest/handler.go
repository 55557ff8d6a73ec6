// Package oauthtest serves a simulated third-party application that signs
// in through the identity provider with the authorization code grant
package oauthtest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/oauth"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
)

// Flow is the authorization code flow of the simulated client
type Flow interface {
	Start(ctx context.Context, store oauth.StateStore) (string, error)
	Complete(ctx context.Context, store oauth.StateStore, query url.Values) (*oauth.Result, error)
}

// Handler serves the test application pages
type Handler struct {
	flow        Flow
	pages       *common.Pages
	clientID    string
	redirectURI string
}

// Config contains handler configuration. A nil Flow disables the test app.
type Config struct {
	Flow        Flow
	Pages       *common.Pages
	ClientID    string
	RedirectURI string
}

// New creates a new test application handler
func New(cfg Config) *Handler {
	return &Handler{
		flow:        cfg.Flow,
		pages:       cfg.Pages,
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
	}
}

// HandlePage shows the sign in button
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, templates.PageOAuthTest, templates.OAuthTestData{
		Page:        h.pages.Page(r, "OAuth Test"),
		ClientID:    h.clientID,
		RedirectURI: h.redirectURI,
		Enabled:     h.flow != nil,
	})
}

// HandleLogin stores a fresh state for the profile and redirects to the
// provider's authorize endpoint
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		h.pages.Error(w, r, http.StatusNotFound, "OAuth Test", "No OAuth client is configured.")
		return
	}

	ctx := r.Context()
	authURL, err := h.flow.Start(ctx, session.FromContext(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "starting authorization", "error", err)
		h.pages.Error(w, r, http.StatusInternalServerError, "OAuth Test", "Could not start sign in. Please try again.")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the authorization and shows the signed in
// identity. The dashboard's own session is not touched.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.CallbackData{Page: h.pages.View(r, "OAuth Callback")}

	if h.flow == nil {
		data.Error = "No OAuth client is configured."
		h.pages.Render(w, r, http.StatusNotFound, templates.PageCallback, data)
		return
	}

	result, err := h.flow.Complete(ctx, session.FromContext(ctx), r.URL.Query())
	if err != nil {
		data.Error = oauth.Message(err)
		h.pages.Render(w, r, callbackStatus(err), templates.PageCallback, data)
		return
	}

	doc, err := json.MarshalIndent(result.User, "", "  ")
	if err != nil {
		h.pages.Fail(w, r, err, "Failed to fetch user data.")
		return
	}
	data.SignedIn = result.User
	data.UserJSON = string(doc)
	h.pages.Render(w, r, http.StatusOK, templates.PageCallback, data)
}

// callbackStatus separates rejected callbacks from upstream failures
func callbackStatus(err error) int {
	var authErr *oauth.AuthorizationError
	switch {
	case errors.Is(err, oauth.ErrStateMismatch), errors.Is(err, oauth.ErrMissingCode):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
