// Package developer serves API key management and OAuth client registration
package developer

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
	"github.com/wrale/idm-dashboard/internal/validation"
)

const (
	msgKeysFailed      = "Failed to fetch API keys."
	msgCreateKeyFailed = "Failed to create key."
	msgRevokeKeyFailed = "Failed to revoke key."
	msgKeyRevoked      = "API key revoked."
	msgClientsFailed   = "Failed to fetch applications."
	msgRegisterFailed  = "Failed to register application."
)

// Handler serves the developer page
type Handler struct {
	identity *identity.Service
	pages    *common.Pages
}

// Config contains handler configuration
type Config struct {
	Identity *identity.Service
	Pages    *common.Pages
}

// New creates a new developer page handler
func New(cfg Config) *Handler {
	return &Handler{
		identity: cfg.Identity,
		pages:    cfg.Pages,
	}
}

// HandlePage lists API keys and registered applications
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, templates.DeveloperData{})
}

// HandleCreateKey creates an API key and shows its secret once
func (h *Handler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var data templates.DeveloperData

	name := r.PostFormValue("name")
	err := validation.ValidateName("name", name)
	if err == nil {
		data.NewKey, err = h.identity.CreateAPIKey(ctx, session.FromContext(ctx), name)
	}
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		data.Error = common.UserMessage(err, msgCreateKeyFailed)
		h.render(w, r, common.StatusFor(err), data)
		return
	}

	h.render(w, r, http.StatusCreated, data)
}

// HandleRevokeKey deletes an API key
func (h *Handler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var data templates.DeveloperData

	if err := h.identity.RevokeAPIKey(ctx, session.FromContext(ctx), chi.URLParam(r, "id")); err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "revoking api key", "error", err)
		data.Error = msgRevokeKeyFailed
		h.render(w, r, common.StatusFor(err), data)
		return
	}

	data.Flash = msgKeyRevoked
	h.render(w, r, http.StatusOK, data)
}

// HandleRegisterClient registers an OAuth client and shows its credentials
// once. The secret is never stored by the dashboard.
func (h *Handler) HandleRegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var data templates.DeveloperData

	name := r.PostFormValue("name")
	err := validation.ValidateName("name", name)
	var uris []string
	if err == nil {
		uris, err = validation.ParseRedirectURIs(r.PostFormValue("redirectUris"))
	}
	if err == nil {
		data.NewClient, err = h.identity.RegisterClient(ctx, session.FromContext(ctx), name, uris)
	}
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		data.Error = common.UserMessage(err, msgRegisterFailed)
		h.render(w, r, common.StatusFor(err), data)
		return
	}

	slog.InfoContext(ctx, "registered oauth client", "client_id", data.NewClient.ClientID)
	h.render(w, r, http.StatusCreated, data)
}

// render loads both lists. A failure in one list is shown in its section.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data templates.DeveloperData) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	keys, err := h.identity.APIKeys(ctx, sess)
	if common.RedirectIfSignedOut(w, r, err) {
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "fetching api keys", "error", err)
		data.KeysError = msgKeysFailed
	}
	data.Keys = keys

	clients, err := h.identity.Clients(ctx, sess)
	if common.RedirectIfSignedOut(w, r, err) {
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "fetching applications", "error", err)
		data.ClientsError = msgClientsFailed
	}
	data.Clients = clients

	h.pages.Fill(r, "Developer", &data.Page)
	h.pages.Render(w, r, status, templates.PageDeveloper, data)
}
