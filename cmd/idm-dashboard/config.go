package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port       int    `envconfig:"PORT" default:"3000"`
	BaseURL    string `envconfig:"BASE_URL" required:"true"`
	APIBaseURL string `envconfig:"API_BASE_URL" required:"true"`
	RedisURL   string `envconfig:"REDIS_URL"`

	CSRFSecret      string        `envconfig:"CSRF_SECRET" required:"true"`
	CSRFTokenExpiry time.Duration `envconfig:"CSRF_TOKEN_EXPIRY" default:"1h"`

	CookieName   string        `envconfig:"PROFILE_COOKIE" default:"idm_profile"`
	SecureCookie bool          `envconfig:"SECURE_COOKIE" default:"false"`
	ProfileTTL   time.Duration `envconfig:"PROFILE_TTL" default:"720h"`
	StateTTL     time.Duration `envconfig:"OAUTH_STATE_TTL" default:"10m"`

	// GoogleLoginURL defaults to the backend's /auth/google
	GoogleLoginURL string `envconfig:"GOOGLE_LOGIN_URL"`

	OAuth OAuthConfig `envconfig:"OAUTH"`

	APITimeout        time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"45s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"text"`
}

// OAuthConfig registers the dashboard's test application with the provider.
// The test application is disabled without a client ID.
type OAuthConfig struct {
	ClientID     string   `envconfig:"CLIENT_ID"`
	ClientSecret string   `envconfig:"CLIENT_SECRET"`
	AuthorizeURL string   `envconfig:"AUTHORIZE_URL"`
	TokenURL     string   `envconfig:"TOKEN_URL"`
	RedirectURI  string   `envconfig:"REDIRECT_URI"`
	Scopes       []string `envconfig:"SCOPES"`
	PKCE         bool     `envconfig:"PKCE" default:"false"`
}

// Enabled reports whether the test application is configured
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != ""
}

// resolve validates the URLs and derives unset endpoints from them. The
// provider's OAuth endpoints live at the root of the API host.
func (c *Config) resolve() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	if _, err := absoluteURL("BASE_URL", c.BaseURL); err != nil {
		return err
	}
	api, err := absoluteURL("API_BASE_URL", c.APIBaseURL)
	if err != nil {
		return err
	}
	origin := api.Scheme + "://" + api.Host

	if c.GoogleLoginURL == "" {
		c.GoogleLoginURL = c.APIBaseURL + "/auth/google"
	}
	if c.OAuth.AuthorizeURL == "" {
		c.OAuth.AuthorizeURL = origin + "/oauth/authorize"
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = origin + "/oauth/token"
	}
	if c.OAuth.RedirectURI == "" {
		c.OAuth.RedirectURI = c.BaseURL + "/callback"
	}
	return nil
}

// logLevel parses LOG_LEVEL, defaulting to info
func (c Config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func absoluteURL(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return u, nil
}
