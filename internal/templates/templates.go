// Package templates renders the dashboard pages
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/wrale/idm-dashboard/internal/identity"
)

//go:embed html/*.html
var content embed.FS

// Page names
const (
	PageLogin     = "login"
	PageSignup    = "signup"
	PageDashboard = "dashboard"
	PageSettings  = "settings"
	PageDeveloper = "developer"
	PageAdmin     = "admin"
	PageOAuthTest = "oauth_test"
	PageCallback  = "callback"
	PageError     = "error"
)

var pages = []string{
	PageLogin,
	PageSignup,
	PageDashboard,
	PageSettings,
	PageDeveloper,
	PageAdmin,
	PageOAuthTest,
	PageCallback,
	PageError,
}

// TemplateError wraps a failure to render a page
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Templates manages the HTML templates
type Templates struct {
	pages map[string]*template.Template
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(content, "html/layout.html", "html/"+name+".html")
		if err != nil {
			return nil, &TemplateError{Message: "parsing " + name, Cause: err}
		}
		t.pages[name] = tmpl
	}
	return t, nil
}

// Render executes a page into a buffer and writes it with status. Nothing
// is written when rendering fails.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data any) error {
	body, err := t.RenderToString(page, data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err = w.Write([]byte(body))
	return err
}

// RenderToString renders a page to a string
func (t *Templates) RenderToString(page string, data any) (string, error) {
	tmpl, ok := t.pages[page]
	if !ok {
		return "", &TemplateError{Message: "unknown page " + page, Cause: fmt.Errorf("no template %q", page)}
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", &TemplateError{Message: "rendering " + page, Cause: err}
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"avatar":        newAvatar,
	"initials":      identity.Initials,
	"avatarColor":   avatarColor,
	"activityLabel": identity.ActivityLabel,
	"imageURL":      imageURL,
	"formatTime":    formatTime,
	"formatDate":    formatDate,
	"join":          strings.Join,
}

// avatar is the input of the avatar partial
type avatar struct {
	Name    string
	Picture string
	Size    int
}

func newAvatar(name, picture string, size int) avatar {
	return avatar{Name: name, Picture: picture, Size: size}
}

func avatarColor(name string) template.CSS {
	return template.CSS("background-color: " + identity.AvatarColor(name))
}

// imageURL admits backend provided images: http(s) links and inline
// base64 images such as the two-factor QR code
func imageURL(raw string) template.URL {
	switch {
	case strings.HasPrefix(raw, "data:image/png;base64,"),
		strings.HasPrefix(raw, "data:image/svg+xml;base64,"),
		strings.HasPrefix(raw, "https://"),
		strings.HasPrefix(raw, "http://"):
		return template.URL(raw)
	}
	return ""
}

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t.Local().Format("Jan 2, 2006 15:04")
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			return t.Local().Format("Jan 2, 2006 15:04")
		}
	}
	return "N/A"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format("Jan 2, 2006")
}
