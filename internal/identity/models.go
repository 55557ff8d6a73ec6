package identity

import (
	"fmt"
	"strings"
	"time"
)

// RoleAdmin grants access to the user directory
const RoleAdmin = "admin"

// DefaultGender is shown when the user has not chosen one
const DefaultGender = "prefer_not_to_say"

// User is the authenticated identity returned by /auth/me
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Roles            []string   `json:"roles"`
	GivenName        string     `json:"givenName,omitempty"`
	FamilyName       string     `json:"familyName,omitempty"`
	ProfilePicture   string     `json:"profilePicture,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	Birthday         string     `json:"birthday,omitempty"`
	Language         string     `json:"language,omitempty"`
	Country          string     `json:"country,omitempty"`
	Timezone         string     `json:"timezone,omitempty"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
}

// HasRole reports whether the user carries role
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DisplayName is the name shown in the header, falling back to the email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// BirthdayDate returns the birthday as YYYY-MM-DD for date inputs
func (u *User) BirthdayDate() string {
	if u == nil || u.Birthday == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, u.Birthday); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	if len(u.Birthday) >= len(time.DateOnly) {
		return u.Birthday[:len(time.DateOnly)]
	}
	return u.Birthday
}

// ProfileUpdate holds the editable profile fields. Empty fields are omitted
// from the request and leave the stored value untouched.
type ProfileUpdate struct {
	Name           string `json:"name,omitempty"`
	GivenName      string `json:"givenName,omitempty"`
	FamilyName     string `json:"familyName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Birthday       string `json:"birthday,omitempty"`
	Language       string `json:"language,omitempty"`
	Country        string `json:"country,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// SystemUser is an entry in the admin user directory
type SystemUser struct {
	ID            string     `json:"_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Roles         []string   `json:"roles"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
}

// Session is a device signed in to the account
type Session struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedByIP string    `json:"createdByIp"`
	UserAgent   string    `json:"userAgent"`
	IsCurrent   bool      `json:"isCurrent"`
}

// Mobile reports whether the session's user agent looks like a phone or tablet
func (s Session) Mobile() bool {
	ua := strings.ToLower(s.UserAgent)
	for _, marker := range []string{"mobile", "android", "iphone", "ipad"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// APIKey is a personal API key. The secret is only returned on creation.
type APIKey struct {
	ID         string     `json:"_id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// ClientApp is a registered OAuth client
type ClientApp struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	ClientID     string    `json:"clientId"`
	RedirectURIs []string  `json:"redirectUris"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisteredClient carries the credentials of a newly registered client.
// ClientSecret is shown once and never stored by the dashboard.
type RegisteredClient struct {
	Name         string `json:"name"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// TwoFactorSetup is the enrollment material for an authenticator app
type TwoFactorSetup struct {
	QRCodeURL string `json:"qrCodeUrl"`
	Secret    string `json:"secret"`
}

// ActivityEvent is an entry in the account's security log
type ActivityEvent struct {
	ID        string    `json:"_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
}

var activityLabels = map[string]string{
	"login":           "Successful Login",
	"change_password": "Password Changed",
	"enable_2fa":      "2FA Enabled",
	"disable_2fa":     "2FA Disabled",
	"create_api_key":  "API Key Created",
}

// Label returns the human readable description of the action
func (e ActivityEvent) Label() string {
	return ActivityLabel(e.Action)
}

// ActivityLabel maps an action code to its display label
func ActivityLabel(action string) string {
	if label, ok := activityLabels[action]; ok {
		return label
	}
	return strings.ReplaceAll(action, "_", " ")
}

// Initials returns up to two uppercase initials of name, or "NN" when
// name is blank
func Initials(name string) string {
	var initials []rune
	for _, w := range strings.Fields(name) {
		if len(initials) == 2 {
			break
		}
		initials = append(initials, []rune(w)[0])
	}
	if len(initials) == 0 {
		return "NN"
	}
	return strings.ToUpper(string(initials))
}

// AvatarColor derives a stable HSL background color from s
func AvatarColor(s string) string {
	var hash int32
	for _, c := range s {
		hash = int32(c) + ((hash << 5) - hash)
	}
	hue := int(hash) % 360
	if hue < 0 {
		hue += 360
	}
	return fmt.Sprintf("hsl(%d, 75%%, 60%%)", hue)
}
