package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/auth"
	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/dashboard"
	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/developer"
	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/health"
	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/oauthtest"
	"github.com/wrale/idm-dashboard/internal/csrf"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/metrics"
	"github.com/wrale/idm-dashboard/internal/oauth"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
)

type server struct {
	cfg      Config
	router   *chi.Mux
	identity *identity.Service
	sessions *session.Manager
	csrf     *csrf.Manager
	flow     *oauth.CodeFlow
	recorder metrics.Recorder
	pages    *common.Pages
}

// dependencies are the components built by main
type dependencies struct {
	Identity *identity.Service
	Sessions *session.Manager
	CSRF     *csrf.Manager

	// Flow is nil when no OAuth client is configured
	Flow     *oauth.CodeFlow
	Recorder metrics.Recorder

	// RequestLog receives the request log, stdout when nil
	RequestLog io.Writer
}

func newServer(cfg Config, deps dependencies) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	srv := &server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		identity: deps.Identity,
		sessions: deps.Sessions,
		csrf:     deps.CSRF,
		flow:     deps.Flow,
		recorder: recorder,
		pages:    common.NewPages(tmpls, deps.CSRF),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.RealIP)
	requestLog := deps.RequestLog
	if requestLog == nil {
		requestLog = os.Stdout
	}
	srv.router.Use(newRequestLogger(requestLog))
	srv.router.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		srv.router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	srv.routes()

	return srv, nil
}

func (s *server) routes() {
	s.router.Method(http.MethodGet, "/health", health.New(map[string]health.Checker{
		"sessions": s.sessions,
		"csrf":     s.csrf,
	}).WithVersion(Version))
	if s.cfg.MetricsEnabled {
		s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	authHandler := auth.New(auth.Config{
		Identity:       s.identity,
		Pages:          s.pages,
		Recorder:       s.recorder,
		GoogleLoginURL: s.cfg.GoogleLoginURL,
	})
	dashboardHandler := dashboard.New(dashboard.Config{
		Identity: s.identity,
		Pages:    s.pages,
	})
	developerHandler := developer.New(developer.Config{
		Identity: s.identity,
		Pages:    s.pages,
	})
	testApp := oauthtest.Config{
		Pages:       s.pages,
		ClientID:    s.cfg.OAuth.ClientID,
		RedirectURI: s.cfg.OAuth.RedirectURI,
	}
	if s.flow != nil {
		testApp.Flow = s.flow
	}
	testAppHandler := oauthtest.New(testApp)

	// Browser pages carry a profile and CSRF-checked forms
	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)
		r.Use(common.TrackLoginRedirect)
		r.Use(s.csrf.Middleware)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, auth.DashboardPath, http.StatusFound)
		})

		r.Get("/login", authHandler.HandleLoginPage)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/login/magic", authHandler.HandleMagicLink)
		r.Get("/login/google", authHandler.HandleGoogle)
		r.Get("/signup", authHandler.HandleSignupPage)
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/auth/callback", authHandler.HandleTokenCallback)

		r.Get("/oauth-test", testAppHandler.HandlePage)
		r.Post("/oauth-test/login", testAppHandler.HandleLogin)
		r.Get("/callback", testAppHandler.HandleCallback)

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(common.RequireUser(s.identity))

			r.Get("/", dashboardHandler.HandleHome)
			r.Get("/admin", dashboardHandler.HandleAdmin)

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", dashboardHandler.HandleSettings)
				r.Post("/profile", dashboardHandler.HandleUpdateProfile)
				r.Post("/password", dashboardHandler.HandleChangePassword)
				r.Post("/2fa/generate", dashboardHandler.HandleGenerateTwoFactor)
				r.Post("/2fa/verify", dashboardHandler.HandleVerifyTwoFactor)
				r.Post("/2fa/disable", dashboardHandler.HandleDisableTwoFactor)
				r.Post("/sessions/revoke-all", dashboardHandler.HandleRevokeAllSessions)
				r.Post("/sessions/{id}/revoke", dashboardHandler.HandleRevokeSession)
			})

			r.Route("/developer", func(r chi.Router) {
				r.Get("/", developerHandler.HandlePage)
				r.Post("/keys", developerHandler.HandleCreateKey)
				r.Post("/keys/{id}/revoke", developerHandler.HandleRevokeKey)
				r.Post("/clients", developerHandler.HandleRegisterClient)
			})
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.pages.Error(w, r, http.StatusNotFound, "Page not found", "The page you are looking for does not exist.")
	})
}

// ServeHTTP implements http.Handler
func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
