package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kelseyhightower/envconfig"
)

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:3000/")
	t.Setenv("API_BASE_URL", "http://localhost:5000/api")
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("OAUTH_CLIENT_ID", "34b52f49")
	t.Setenv("OAUTH_SCOPES", "openid,profile,email")
	t.Setenv("OAUTH_PKCE", "true")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve() error = %v", err)
	}

	if cfg.Port != 3000 || cfg.CSRFTokenExpiry != time.Hour || cfg.CookieName != "idm_profile" {
		t.Errorf("defaults not applied: port=%d expiry=%v cookie=%q", cfg.Port, cfg.CSRFTokenExpiry, cfg.CookieName)
	}
	if cfg.BaseURL != "http://localhost:3000" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.GoogleLoginURL != "http://localhost:5000/api/auth/google" {
		t.Errorf("GoogleLoginURL = %q", cfg.GoogleLoginURL)
	}

	want := OAuthConfig{
		ClientID:     "34b52f49",
		AuthorizeURL: "http://localhost:5000/oauth/authorize",
		TokenURL:     "http://localhost:5000/oauth/token",
		RedirectURI:  "http://localhost:3000/callback",
		Scopes:       []string{"openid", "profile", "email"},
		PKCE:         true,
	}
	if diff := cmp.Diff(want, cfg.OAuth); diff != "" {
		t.Errorf("OAuth config mismatch (-want +got):\n%s", diff)
	}
	if !cfg.OAuth.Enabled() {
		t.Error("OAuth.Enabled() = false with a client ID")
	}
}

func TestConfigMissingRequired(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:3000")
	t.Setenv("CSRF_SECRET", "secret")

	var cfg Config
	if err := envconfig.Process("", &cfg); err == nil {
		t.Error("Process() without API_BASE_URL succeeded")
	}
}

func TestConfigResolve(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "explicit endpoints kept",
			cfg: Config{
				BaseURL:    "https://dashboard.example.com",
				APIBaseURL: "https://id.example.com/api",
				OAuth: OAuthConfig{
					AuthorizeURL: "https://login.example.com/authorize",
					TokenURL:     "https://login.example.com/token",
				},
			},
		},
		{
			name:    "relative api url",
			cfg:     Config{BaseURL: "http://localhost:3000", APIBaseURL: "/api"},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			cfg:     Config{BaseURL: "ftp://localhost", APIBaseURL: "http://localhost:5000/api"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.resolve()
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.OAuth.AuthorizeURL != tt.cfg.OAuth.AuthorizeURL || cfg.OAuth.TokenURL != tt.cfg.OAuth.TokenURL {
				t.Errorf("explicit endpoints overwritten: %+v", cfg.OAuth)
			}
		})
	}
}

func TestConfigLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := (Config{LogLevel: raw}).logLevel(); got != want {
			t.Errorf("logLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
