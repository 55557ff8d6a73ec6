// Package common holds helpers shared by the dashboard handlers
package common

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/templates"
)

// TokenGenerator issues CSRF tokens for rendered forms
type TokenGenerator interface {
	GenerateToken(ctx context.Context) (string, error)
}

// Pages renders dashboard pages with the fields every page shares
type Pages struct {
	templates *templates.Templates
	csrf      TokenGenerator
}

// NewPages creates a page renderer
func NewPages(tmpls *templates.Templates, csrf TokenGenerator) *Pages {
	return &Pages{templates: tmpls, csrf: csrf}
}

// Page returns the shared page fields for r, with a CSRF token for the
// page's forms. The user comes from the request context when RequireUser ran.
func (p *Pages) Page(r *http.Request, title string) templates.Page {
	ctx := r.Context()
	token, err := p.csrf.GenerateToken(ctx)
	if err != nil {
		// Forms will be rejected on submit; the page itself still renders
		slog.ErrorContext(ctx, "generating csrf token", "error", err)
	}
	return templates.Page{
		Title:     title,
		User:      UserFromContext(ctx),
		CSRFToken: token,
	}
}

// View returns the shared page fields for a page without forms of its own.
// Only the sign out form of a signed in user needs a token.
func (p *Pages) View(r *http.Request, title string) templates.Page {
	if UserFromContext(r.Context()) != nil {
		return p.Page(r, title)
	}
	return templates.Page{Title: title}
}

// Fill sets the shared fields of page, keeping its messages
func (p *Pages) Fill(r *http.Request, title string, page *templates.Page) {
	flash, errMsg := page.Flash, page.Error
	*page = p.Page(r, title)
	page.Flash, page.Error = flash, errMsg
}

// Render writes page with status, falling back to a plain error
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := p.templates.Render(w, status, page, data); err != nil {
		slog.ErrorContext(r.Context(), "rendering page", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Error renders the error page
func (p *Pages) Error(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	page := p.View(r, title)
	p.Render(w, r, status, templates.PageError, templates.ErrorData{
		Page:    page,
		Message: message,
	})
}

// Fail handles an error that prevents the page from rendering at all
func (p *Pages) Fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if RedirectIfSignedOut(w, r, err) {
		return
	}
	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	p.Error(w, r, StatusFor(err), "", UserMessage(err, fallback))
}

// SetUser replaces the user of the request, for handlers that change it
func SetUser(r *http.Request, user *identity.User) *http.Request {
	return r.WithContext(WithUser(r.Context(), user))
}
