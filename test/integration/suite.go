// Package integration exercises a running dashboard and identity API.
// The tests are skipped unless DASHBOARD_URL is set.
package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
)

const (
	ServiceTimeout = 60 * time.Second
	RetryInterval  = 2 * time.Second
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T         *testing.T
	Client    *http.Client
	Ctx       context.Context
	Dashboard string
}

// NewSuite creates a new test suite with timeout, skipping the test when
// no dashboard is configured
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	base := strings.TrimRight(os.Getenv("DASHBOARD_URL"), "/")
	if base == "" {
		t.Skip("DASHBOARD_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}

	return &TestSuite{
		T: t,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Ctx:       ctx,
		Dashboard: base,
	}
}

// WaitForServices waits for the dashboard health endpoint to report healthy
func (s *TestSuite) WaitForServices() error {
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		resp, err := s.Get("/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("health returned status %d", resp.StatusCode)
		}
		lastErr = err

		select {
		case <-s.Ctx.Done():
			return fmt.Errorf("timeout waiting for services: %w", lastErr)
		case <-ticker.C:
		}
	}
}

// Get requests a dashboard path
func (s *TestSuite) Get(path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, s.Dashboard+path, nil)
	if err != nil {
		return nil, err
	}
	return s.Client.Do(req)
}

// PostForm submits a form to a dashboard path
func (s *TestSuite) PostForm(path string, form map[string]string) (*http.Response, error) {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodPost, s.Dashboard+path,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.Client.Do(req)
}

// ReadBody reads and closes a response body
func (s *TestSuite) ReadBody(resp *http.Response) string {
	s.T.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		s.T.Fatalf("reading body: %v", err)
	}
	return string(b)
}

// CSRFToken loads a page and extracts its CSRF token
func (s *TestSuite) CSRFToken(path string) string {
	s.T.Helper()
	resp, err := s.Get(path)
	if err != nil {
		s.T.Fatalf("GET %s: %v", path, err)
	}
	m := csrfPattern.FindStringSubmatch(s.ReadBody(resp))
	if m == nil {
		s.T.Fatalf("no csrf token on %s", path)
	}
	return m[1]
}
