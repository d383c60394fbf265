package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/orchestrator"
	"github.com/sqlorc/core/internal/ratelimit"
	"github.com/sqlorc/core/internal/session"
)

// Server is the sqlorc HTTP API: thread/message CRUD over the
// orchestration pipeline, prefixed under /api.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
	limiter    ratelimit.Limiter
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds every dependency and setting New needs to build a Server.
type Config struct {
	Catalog      *catalog.Catalog
	Sessions     session.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string

	// RateLimitRPS and RateLimitBurst configure the per-client-IP token
	// bucket guarding POST /api/threads/{id}/messages, the one route that
	// triggers LLM calls. RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// ExtraRoutes registers additional routes on the mux after every
	// built-in route. ExtraMiddleware wraps the root handler outermost,
	// in registration order (first-registered is outermost). Both are
	// embedding extension points — see the root sqlorc package's
	// WithExtraRoutes and WithMiddleware options.
	ExtraRoutes     []func(mux *http.ServeMux)
	ExtraMiddleware []func(http.Handler) http.Handler
}

// New creates a new HTTP server with every route registered. Every route
// lives under /api, per http.ServeMux's Go 1.22+ method+pattern routing.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Catalog:      cfg.Catalog,
		Sessions:     cfg.Sessions,
		Orchestrator: cfg.Orchestrator,
		Logger:       cfg.Logger,
		Version:      cfg.Version,
	})

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	reqIDFunc := func(r *http.Request) string { return RequestIDFromContext(r.Context()) }
	postMessage := ratelimit.MiddlewareWithRequestID(limiter, ratelimit.IPKeyFunc, reqIDFunc)(http.HandlerFunc(h.HandlePostMessage))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /api/data-sources", h.HandleListDataSources)

	mux.HandleFunc("GET /api/threads", h.HandleListThreads)
	mux.HandleFunc("POST /api/threads", h.HandleCreateThread)
	mux.HandleFunc("GET /api/threads/{id}", h.HandleGetThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", h.HandleListMessages)
	mux.Handle("POST /api/threads/{id}/messages", postMessage)
	mux.HandleFunc("GET /api/threads/{id}/tokens", h.HandleGetTokenUsage)
	mux.HandleFunc("GET /api/threads/{id}/databases", h.HandleGetUsedDatabases)

	for _, reg := range cfg.ExtraRoutes {
		reg(mux)
	}

	// Middleware chain (outermost executes first): extra -> request ID ->
	// security headers -> tracing -> logging -> recovery -> handler. No
	// auth layer: this deployment is single-tenant, with no user accounts
	// to check.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.ExtraMiddleware) - 1; i >= 0; i-- {
		handler = cfg.ExtraMiddleware[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
		limiter:  limiter,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests. Blocks until the listener fails or
// Shutdown is called, matching http.Server.ListenAndServe's contract.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and releases the rate
// limiter's background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if s.limiter != nil {
		_ = s.limiter.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
