package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askatlas/navigation-assistant/internal/config"
	"github.com/askatlas/navigation-assistant/internal/middleware"
	natsclient "github.com/askatlas/navigation-assistant/internal/nats"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Sessions   *service.SessionService
	Accounts   *service.AccountService
	Navigation *service.NavigationService
	// NATS is nil when events stay in process.
	NATS *natsclient.Client
	// Heartbeat overrides the SSE heartbeat interval.
	Heartbeat time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config

	healthHandler := NewHealthHandler(d.NATS, d.Sessions)
	authHandler := NewAuthHandler(cfg.JWTSecret, cfg.JWTExpiration, d.Logger)
	accountHandler := NewAccountHandler(d.Accounts)
	sessionHandler := NewSessionHandler(d.Sessions, d.Logger)
	streamHandler := NewStreamHandler(d.Sessions, d.Heartbeat, d.Logger)
	wsHandler := NewWSHandler(d.Sessions, cfg.AllowedOrigins, d.Logger)
	navigationHandler := NewNavigationHandler(d.Navigation, d.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/auth/guest", authHandler.Guest)

		r.Get("/account", accountHandler.Get)
		r.Put("/account/settings", accountHandler.SaveSettings)

		r.Post("/navigation/summary", navigationHandler.Summary)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)

				r.Get("/messages", sessionHandler.ListMessages)
				r.Post("/messages", sessionHandler.SendMessage)
				r.Post("/quick-actions/{action}", sessionHandler.QuickAction)

				r.Get("/stream", streamHandler.Stream)
				r.Get("/ws", wsHandler.Serve)
			})
		})
	})

	return r
}
