// Package dashboard serves the signed in area: home, account settings and
// the admin user directory
package dashboard

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
)

const (
	msgActivityFailed = "Failed to fetch recent activity."
	msgAdminDenied    = "You do not have permission to view this page."
)

// Handler serves the dashboard pages. Every route expects
// common.RequireUser to have run.
type Handler struct {
	identity *identity.Service
	pages    *common.Pages
}

// Config contains handler configuration
type Config struct {
	Identity *identity.Service
	Pages    *common.Pages
}

// New creates a new dashboard handler
func New(cfg Config) *Handler {
	return &Handler{
		identity: cfg.Identity,
		pages:    cfg.Pages,
	}
}

// HandleHome shows the welcome card and the security activity feed
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	events, err := h.identity.Activity(ctx, sess)
	if common.RedirectIfSignedOut(w, r, err) {
		return
	}

	data := templates.DashboardData{
		Page:     h.pages.Page(r, "Dashboard"),
		Activity: events,
	}
	if err != nil {
		slog.WarnContext(ctx, "fetching activity", "error", err)
		data.ActivityError = msgActivityFailed
	}

	if token, ok := sess.Token(ctx); ok {
		info, err := identity.InspectToken(token)
		switch {
		case err == nil:
			data.Token = &info
		case !errors.Is(err, identity.ErrOpaqueToken):
			slog.DebugContext(ctx, "inspecting access token", "error", err)
		}
	}

	h.pages.Render(w, r, http.StatusOK, templates.PageDashboard, data)
}

// HandleAdmin lists every account. Users without the admin role are sent
// back to the dashboard; the backend still enforces the role on the listing.
func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !common.UserFromContext(ctx).HasRole(identity.RoleAdmin) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	users, err := h.identity.Users(ctx, session.FromContext(ctx))
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		status := common.StatusFor(err)
		if status == http.StatusBadGateway {
			slog.ErrorContext(ctx, "fetching users", "error", err)
		}
		h.pages.Error(w, r, status, "Access Denied", common.UserMessage(err, msgAdminDenied))
		return
	}

	h.pages.Render(w, r, http.StatusOK, templates.PageAdmin, templates.AdminData{
		Page:  h.pages.Page(r, "Admin"),
		Users: users,
	})
}
