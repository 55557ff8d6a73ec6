package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "valid", email: "ada@example.com"},
		{name: "surrounding whitespace", email: "  ada@example.com "},
		{name: "empty", email: "", wantErr: true},
		{name: "missing at", email: "ada.example.com", wantErr: true},
		{name: "missing domain dot", email: "ada@localhost", wantErr: true},
		{name: "inner space", email: "ada lovelace@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}

	if got := NormalizeEmail(" Ada@Example.COM "); got != "ada@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestValidateNewPassword(t *testing.T) {
	if err := ValidateNewPassword("correct horse"); err != nil {
		t.Errorf("ValidateNewPassword() error = %v", err)
	}

	err := ValidateNewPassword("short")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("ValidateNewPassword(short) error = %v, want *ValidationError", err)
	}
	if vErr.Message != "New password must be at least 8 characters long." {
		t.Errorf("Message = %q", vErr.Message)
	}

	// Length counts characters, not bytes
	if err := ValidateNewPassword("ééééééé"); err == nil {
		t.Error("ValidateNewPassword() accepted 7 characters")
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid", value: "CI deploy key"},
		{name: "blank", value: "   ", wantErr: true},
		{name: "at limit", value: strings.Repeat("a", MaxNameLength)},
		{name: "too long", value: strings.Repeat("a", MaxNameLength+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("name", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTwoFactorCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{code: "123456"},
		{code: " 123 456 "},
		{code: "12345", wantErr: true},
		{code: "1234567", wantErr: true},
		{code: "12a456", wantErr: true},
		{code: "", wantErr: true},
	}
	for _, tt := range tests {
		err := ValidateTwoFactorCode(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTwoFactorCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
		}
	}
}

func TestParseRedirectURIs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr string
	}{
		{
			name: "single",
			raw:  "http://localhost:3000/callback",
			want: []string{"http://localhost:3000/callback"},
		},
		{
			name: "list with blanks",
			raw:  " https://app.example.com/cb , ,com.example.app:/oauth2redirect,",
			want: []string{"https://app.example.com/cb", "com.example.app:/oauth2redirect"},
		},
		{
			name:    "empty",
			raw:     " , ",
			wantErr: "Please provide at least one valid Redirect URI.",
		},
		{
			name:    "relative",
			raw:     "/callback",
			wantErr: "not a valid redirect URI",
		},
		{
			name:    "fragment",
			raw:     "https://app.example.com/cb#token",
			wantErr: "not a valid redirect URI",
		},
		{
			name:    "http without host",
			raw:     "http:///callback",
			wantErr: "missing a host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedirectURIs(tt.raw)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("ParseRedirectURIs() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRedirectURIs() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRedirectURIs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
