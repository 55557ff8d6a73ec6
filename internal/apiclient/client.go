// Package apiclient sends authenticated requests to the identity REST API.
//
// Every request carries the session's bearer token. A 401 triggers exactly one
// refresh through POST /auth/refresh followed by one retry of the original
// request with the new token. When the refresh fails the session token is
// cleared and the Navigator sends the user to the login page.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wrale/idm-dashboard/internal/metrics"
)

const (
	// DefaultRefreshPath is the endpoint that exchanges the refresh context for a new token
	DefaultRefreshPath = "/auth/refresh"

	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
)

// Session is the per-profile token state the client reads and writes
type Session interface {
	// Token returns the stored bearer token, if any
	Token(ctx context.Context) (string, bool)

	// SetToken persists a new bearer token
	SetToken(ctx context.Context, token string)

	// ClearToken removes the stored bearer token
	ClearToken(ctx context.Context)

	// CookieJar holds the backend cookies carrying the refresh context
	CookieJar(ctx context.Context) http.CookieJar
}

// Navigator sends the user to the login entry point
type Navigator interface {
	RedirectToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to the Navigator interface
type NavigatorFunc func(ctx context.Context)

// RedirectToLogin calls f(ctx)
func (f NavigatorFunc) RedirectToLogin(ctx context.Context) {
	f(ctx)
}

// Request describes one call to the API
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is encoded as JSON when non-nil
	Body any

	// NoRefresh returns a 401 as is. Credential endpoints set it because
	// their 401 means bad credentials, not an expired token.
	NoRefresh bool
}

// Response is a successful API response with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// attempt distinguishes the original send from its single retry
type attempt int

const (
	firstAttempt attempt = iota + 1
	retryAttempt
)

// Client is an HTTP client for the identity API with token refresh
type Client struct {
	baseURL     string
	refreshPath string
	httpClient  *http.Client
	navigator   Navigator
	metrics     metrics.Recorder
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client. Its Jar is replaced per
// session on every request.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithNavigator sets the login redirect used when a refresh fails
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.navigator = n
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithRefreshPath overrides the refresh endpoint
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// New creates a client for the API rooted at baseURL, e.g. http://localhost:5000/api
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		refreshPath: DefaultRefreshPath,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		navigator:   NavigatorFunc(func(context.Context) {}),
		metrics:     metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req with the session's token and recovers from one expired token
func (c *Client) Do(ctx context.Context, sess Session, req Request) (*Response, error) {
	token, _ := sess.Token(ctx)
	return c.execute(ctx, sess, req, token, firstAttempt)
}

// DoJSON sends req and decodes a successful response into out when out is non-nil
func (c *Client) DoJSON(ctx context.Context, sess Session, req Request, out any) error {
	resp, err := c.Do(ctx, sess, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// DoWithToken sends req once with an explicit bearer token. The stored
// session is neither read nor modified and a 401 is returned as is.
func (c *Client) DoWithToken(ctx context.Context, token string, req Request) (*Response, error) {
	resp, err := c.send(ctx, nil, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newError(resp)
	}
	return resp, nil
}

func (c *Client) execute(ctx context.Context, sess Session, req Request, token string, n attempt) (*Response, error) {
	resp, err := c.send(ctx, sess.CookieJar(ctx), req, token)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && n == firstAttempt && !req.NoRefresh:
		return c.refreshAndRetry(ctx, sess, req, token)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, newError(resp)
	}
	return resp, nil
}

// refreshAndRetry refreshes the session after a 401 and retries req once
func (c *Client) refreshAndRetry(ctx context.Context, sess Session, req Request, expired string) (*Response, error) {
	token, err := c.refresh(ctx, sess, expired)
	c.metrics.RecordTokenRefresh(err == nil)
	if err != nil {
		sess.ClearToken(ctx)
		c.navigator.RedirectToLogin(ctx)
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	sess.SetToken(ctx, token)
	return c.execute(ctx, sess, req, token, retryAttempt)
}

// refresh calls the refresh endpoint directly so that its own 401 is final
func (c *Client) refresh(ctx context.Context, sess Session, expired string) (string, error) {
	resp, err := c.send(ctx, sess.CookieJar(ctx), Request{
		Method: http.MethodPost,
		Path:   c.refreshPath,
	}, expired)
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("refreshing token: %w", newError(resp))
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("refreshing token: response has no access token")
	}
	return body.AccessToken, nil
}

// send performs a single HTTP exchange
func (c *Client) send(ctx context.Context, jar http.CookieJar, req Request, token string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.resolve(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := *c.httpClient
	client.Jar = jar

	resp, err := client.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(method, 0)
		return nil, fmt.Errorf("sending %s %s: %w", method, req.Path, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
