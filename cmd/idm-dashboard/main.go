package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/apiclient"
	"github.com/wrale/idm-dashboard/internal/csrf"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/metrics"
	"github.com/wrale/idm-dashboard/internal/oauth"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/storage"
)

// Version is set by the build process
var Version = "dev"

func main() {
	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fatal("loading configuration", err)
	}
	if err := cfg.resolve(); err != nil {
		fatal("validating configuration", err)
	}

	slog.SetDefault(newLogger(cfg, os.Stdout))

	store, closeStore, err := openStore(cfg.RedisURL)
	if err != nil {
		fatal("opening store", err)
	}

	recorder := metrics.Init(cfg.MetricsEnabled)

	client, err := apiclient.New(cfg.APIBaseURL,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}),
		apiclient.WithNavigator(common.Navigator()),
		apiclient.WithRecorder(recorder),
	)
	if err != nil {
		fatal("creating api client", err)
	}
	identitySvc := identity.NewService(client)

	csrfManager := csrf.NewManager(store, []byte(cfg.CSRFSecret), cfg.CSRFTokenExpiry)
	sessions := session.NewManager(session.ManagerConfig{
		Store:        store,
		CookieName:   cfg.CookieName,
		SecureCookie: cfg.SecureCookie,
		StateTTL:     cfg.StateTTL,
		ProfileTTL:   cfg.ProfileTTL,
	})

	var flow *oauth.CodeFlow
	if cfg.OAuth.Enabled() {
		flow, err = oauth.NewCodeFlow(oauth.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			AuthorizeURL: cfg.OAuth.AuthorizeURL,
			TokenURL:     cfg.OAuth.TokenURL,
			RedirectURI:  cfg.OAuth.RedirectURI,
			Scopes:       cfg.OAuth.Scopes,
			PKCE:         cfg.OAuth.PKCE,
		}, identitySvc,
			oauth.WithStateGenerator(csrfManager),
			oauth.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}),
			oauth.WithRecorder(recorder),
		)
		if err != nil {
			fatal("configuring oauth client", err)
		}
	} else {
		slog.Info("OAUTH_CLIENT_ID not set, OAuth test application disabled")
	}

	srv, err := newServer(cfg, dependencies{
		Identity: identitySvc,
		Sessions: sessions,
		CSRF:     csrfManager,
		Flow:     flow,
		Recorder: recorder,
	})
	if err != nil {
		fatal("creating server", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("server listening", "port", cfg.Port, "api", cfg.APIBaseURL, "version", Version)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal("starting server", err)
		}

	case sig := <-shutdown:
		slog.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("shutting down server", "error", err)
			if err := httpServer.Close(); err != nil {
				slog.Error("closing server", "error", err)
			}
		}
	}

	if err := closeStore(); err != nil {
		slog.Error("closing store", "error", err)
	}
}

// openStore connects to Redis, or falls back to process memory when no
// URL is configured
func openStore(redisURL string) (storage.Store, func() error, error) {
	if redisURL == "" {
		slog.Warn("REDIS_URL not set, sessions are kept in memory and lost on restart")
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return storage.NewRedisStore(client), client.Close, nil
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.logLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
