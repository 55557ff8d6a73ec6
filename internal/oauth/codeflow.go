package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/idm-dashboard/internal/apiclient"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// StateStore keeps the pending authorization request of one browser profile
type StateStore interface {
	SaveOAuthState(ctx context.Context, state, verifier string) error

	// TakeOAuthState returns and forgets the pending state and verifier
	TakeOAuthState(ctx context.Context) (state, verifier string, err error)
}

// StateGenerator produces unguessable state values
type StateGenerator interface {
	NewState() (string, error)
}

// UserFetcher loads the identity owning an access token
type UserFetcher interface {
	MeWithToken(ctx context.Context, token string) (*identity.User, error)
}

// Result is a completed authorization
type Result struct {
	Token *oauth2.Token
	User  *identity.User
}

// CodeFlow runs the authorization code grant for one registered client
type CodeFlow struct {
	config     oauth2.Config
	pkce       bool
	states     StateGenerator
	users      UserFetcher
	httpClient *http.Client
	metrics    metrics.Recorder
}

// Option configures a CodeFlow
type Option func(*CodeFlow)

// WithStateGenerator sets the source of state values
func WithStateGenerator(g StateGenerator) Option {
	return func(f *CodeFlow) {
		if g != nil {
			f.states = g
		}
	}
}

// WithHTTPClient sets the client used for the token endpoint
func WithHTTPClient(c *http.Client) Option {
	return func(f *CodeFlow) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(f *CodeFlow) {
		if r != nil {
			f.metrics = r
		}
	}
}

// NewCodeFlow creates a code flow. users loads the identity after the
// exchange.
func NewCodeFlow(cfg Config, users UserFetcher, opts ...Option) (*CodeFlow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if users == nil {
		return nil, errors.New("user fetcher is required")
	}

	f := &CodeFlow{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
				// The token endpoint reads the client credentials from the form
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		pkce:       cfg.PKCE,
		states:     randomState{},
		users:      users,
		httpClient: &http.Client{Timeout: defaultTimeout},
		metrics:    metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start records a fresh state for the profile and returns the provider's
// authorization URL
func (f *CodeFlow) Start(ctx context.Context, store StateStore) (string, error) {
	state, err := f.states.NewState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	var (
		verifier string
		opts     []oauth2.AuthCodeOption
	)
	if f.pkce {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	if err := store.SaveOAuthState(ctx, state, verifier); err != nil {
		return "", fmt.Errorf("saving state: %w", err)
	}
	return f.config.AuthCodeURL(state, opts...), nil
}

// Complete validates the callback query against the pending state, exchanges
// the code for a token and loads the signed in user. No request leaves the
// process unless the state matches.
func (f *CodeFlow) Complete(ctx context.Context, store StateStore, query url.Values) (*Result, error) {
	result, err := f.complete(ctx, store, query)
	f.metrics.RecordOAuthCallback(outcome(err))
	if err != nil {
		slog.WarnContext(ctx, "oauth callback failed", "error", err)
	}
	return result, err
}

func (f *CodeFlow) complete(ctx context.Context, store StateStore, query url.Values) (*Result, error) {
	expected, verifier, err := store.TakeOAuthState(ctx)
	if err != nil {
		// No pending request for this profile
		return nil, fmt.Errorf("%w: %w", ErrStateMismatch, err)
	}
	if !sameState(expected, query.Get("state")) {
		return nil, ErrStateMismatch
	}

	if code := query.Get("error"); code != "" {
		return nil, &AuthorizationError{Code: code, Description: query.Get("error_description")}
	}

	code := query.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	token, err := f.exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	user, err := f.users.MeWithToken(ctx, token.AccessToken)
	if err != nil {
		return nil, &IdentityError{Message: apiclient.Message(err, ""), Err: err}
	}
	return &Result{Token: token, User: user}, nil
}

func (f *CodeFlow) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	token, err := f.config.Exchange(ctx, code, opts...)
	if err != nil {
		exchangeErr := &ExchangeError{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			exchangeErr.Description = retrieveErr.ErrorDescription
		}
		return nil, exchangeErr
	}
	return token, nil
}

func sameState(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func outcome(err error) string {
	var (
		authErr     *AuthorizationError
		exchangeErr *ExchangeError
		identityErr *IdentityError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.As(err, &authErr):
		return "provider_error"
	case errors.As(err, &exchangeErr):
		return "exchange_failed"
	case errors.As(err, &identityErr):
		return "identity_failed"
	}
	return "error"
}

// randomState is the default generator when no signing key is configured
type randomState struct{}

func (randomState) NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
