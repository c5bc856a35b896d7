package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hongminglow/cdms-be/internal/analytics"
	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/config"
	"github.com/hongminglow/cdms-be/internal/http/handlers"
	"github.com/hongminglow/cdms-be/internal/llm"
	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/middleware"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/validation"
)

// Deps are the long-lived collaborators the routes are built from. Verifier,
// Gateway and LLM are optional.
type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Users    storage.UserStore
	Tokens   *auth.TokenManager
	Resolver *auth.Resolver
	Verifier auth.FederatedVerifier
	Gateway  *analytics.Gateway
	LLM      llm.Completer
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner   *http.Server
	limiter *middleware.RateLimiter
}

// New wires up middleware, routes, and returns a ready server.
func New(d Deps) (*Server, error) {
	trusted, err := middleware.ParseTrustedProxies(d.Config.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}
	limiter := middleware.NewRateLimiter(d.Config.AuthRateLimitPerMinute, trusted)
	httpServer := &http.Server{
		Addr:              d.Config.HTTPAddress(),
		Handler:           Routes(d, limiter),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// AI report generation can take well over ten seconds.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return &Server{inner: httpServer, limiter: limiter}, nil
}

// Routes builds the full handler tree.
func Routes(d Deps, limiter *middleware.RateLimiter) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	v := validation.New()
	protect := handlers.Middleware(middleware.RequireAuth(d.Resolver, logger.WithComponent(log, "auth")))
	limit := handlers.Middleware(func(next http.Handler) http.Handler { return next })
	if limiter != nil {
		limit = limiter.Middleware
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), handlers.HealthStatus{
		Database:  d.Store,
		Analytics: d.Gateway != nil,
		AI:        d.LLM != nil,
	}).Register(mux)
	handlers.NewAuthHandler(handlers.AuthDeps{
		Users:     d.Users,
		Tokens:    d.Tokens,
		Resolver:  d.Resolver,
		Verifier:  d.Verifier,
		Validator: v,
		Logger:    logger.WithComponent(log, "auth"),
	}).Register(mux, protect, limit)
	handlers.NewDataHandler(d.Gateway, logger.WithComponent(log, "analytics")).Register(mux, protect)
	handlers.NewAlertHandler(d.Store, v, log).Register(mux, protect)
	handlers.NewAnnotationHandler(d.Store, v, log).Register(mux, protect)
	handlers.NewAIHandler(d.LLM, d.Gateway, v, logger.WithComponent(log, "ai")).Register(mux, protect)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.CORS(d.Config.CORSOrigins, middleware.Logging(log, mux))
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	return s.inner.Shutdown(ctx)
}
