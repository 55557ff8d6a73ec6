package templates

import (
	"strings"
	"testing"
)

// setupTemplates creates a new Templates instance for testing
func setupTemplates(t *testing.T) *Templates {
	t.Helper()
	templates, err := LoadTemplates()
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}
	return templates
}

// assertContains fails the test when body lacks any of want
func assertContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, s := range want {
		if !strings.Contains(body, s) {
			t.Errorf("response missing %q.\ngot: %s", s, body)
		}
	}
}

// assertNotContains fails the test when body contains any of unwanted
func assertNotContains(t *testing.T, body string, unwanted ...string) {
	t.Helper()
	for _, s := range unwanted {
		if strings.Contains(body, s) {
			t.Errorf("response unexpectedly contains %q", s)
		}
	}
}
