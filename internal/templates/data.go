package templates

import (
	"github.com/wrale/idm-dashboard/internal/identity"
)

// Page holds the fields every page renders
type Page struct {
	Title     string
	User      *identity.User
	CSRFToken string

	// Flash is a success message, Error a failure message
	Flash string
	Error string
}

// IsAdmin reports whether the signed in user sees the admin link
func (p Page) IsAdmin() bool {
	return p.User.HasRole(identity.RoleAdmin)
}

// LoginData holds data for the login page
type LoginData struct {
	Page
	Email string

	// MagicLink selects the email link form
	MagicLink bool
}

// SignupData holds data for the signup page
type SignupData struct {
	Page
	Name  string
	Email string
}

// DashboardData holds data for the dashboard home page
type DashboardData struct {
	Page
	Activity      []identity.ActivityEvent
	ActivityError string

	// Token is nil for opaque access tokens
	Token *identity.TokenInfo
}

// Settings tabs
const (
	TabProfile  = "profile"
	TabSecurity = "security"
)

// SettingsData holds data for the account settings page
type SettingsData struct {
	Page
	Tab     string
	Editing bool

	// Profile prefills the edit form
	Profile identity.ProfileUpdate

	Sessions      []identity.Session
	SessionsError string

	// TwoFactor is set between generating a secret and verifying it
	TwoFactor *identity.TwoFactorSetup
}

// DeveloperData holds data for the developer page
type DeveloperData struct {
	Page
	Keys      []identity.APIKey
	KeysError string

	// NewKey is the secret of a key created by this request, shown once
	NewKey string

	Clients      []identity.ClientApp
	ClientsError string

	// NewClient holds credentials of a client registered by this request
	NewClient *identity.RegisteredClient
}

// AdminData holds data for the user directory
type AdminData struct {
	Page
	Users []identity.SystemUser
}

// OAuthTestData holds data for the third-party app simulation
type OAuthTestData struct {
	Page
	ClientID    string
	RedirectURI string
	Enabled     bool
}

// CallbackData holds the outcome of an authorization code callback
type CallbackData struct {
	Page
	SignedIn *identity.User

	// UserJSON is the indented identity document
	UserJSON string
}

// ErrorData holds data for the error page
type ErrorData struct {
	Page
	Message string
}
