package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/manabi/internal/auth"
	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/ratelimit"
	"github.com/ashita-ai/manabi/internal/service/engagement"
	"github.com/ashita-ai/manabi/internal/storage"
)

// Server is the Manabi HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RoleMiddlewareFn returns middleware enforcing a minimum role. Passed to
// extra route registrars so embedded routes share the server's auth chain.
type RoleMiddlewareFn func(minRole model.UserRole) func(http.Handler) http.Handler

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer, ExtraRoutes, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	DB            *storage.DB
	JWTMgr        *auth.JWTManager
	EngagementSvc *engagement.Service
	Logger        *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// Embedding extension points. ExtraRoutes are registered after the
	// built-in routes; Middlewares wrap the whole chain, first registered
	// outermost.
	ExtraRoutes []func(mux *http.ServeMux, roleFn RoleMiddlewareFn)
	Middlewares []func(http.Handler) http.Handler

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		EngagementSvc:       cfg.EngagementSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}

	// Rate limit rules. Ingestion and queries are keyed by authenticated
	// user (admins exempt); token issuance is keyed by IP.
	ingestRL := ratelimit.Middleware(limiter, "ingest", ratelimit.KeyByUser, cfg.Logger)
	queryRL := ratelimit.Middleware(limiter, "query", ratelimit.KeyByUser, cfg.Logger)
	authRL := ratelimit.Middleware(limiter, "auth", ratelimit.KeyByIP, cfg.Logger)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Telemetry ingestion (learner+, rate limited).
	learnerPlus := requireRole(model.RoleLearner)
	mux.Handle("POST /v1/events", ingestRL(learnerPlus(http.HandlerFunc(h.HandleIngestEvents))))

	// Status and history queries (rate limited). Course-wide statuses need
	// instructor+; history is learner+ with a self-or-instructor check in
	// the handler.
	instructorPlus := requireRole(model.RoleInstructor)
	mux.Handle("GET /v1/courses/{course_id}/statuses", queryRL(instructorPlus(http.HandlerFunc(h.HandleCourseStatuses))))
	mux.Handle("GET /v1/learners/{user_id}/history", queryRL(learnerPlus(http.HandlerFunc(h.HandleLearnerHistory))))

	// User management (admin-only; admins are exempt from rate limits).
	adminOnly := requireRole(model.RoleAdmin)
	mux.Handle("POST /v1/users", adminOnly(http.HandlerFunc(h.HandleCreateUser)))
	mux.Handle("GET /v1/users", adminOnly(http.HandlerFunc(h.HandleListUsers)))
	mux.Handle("GET /v1/users/{user_id}", adminOnly(http.HandlerFunc(h.HandleGetUser)))

	// MCP StreamableHTTP transport (auth required; tools enforce their own
	// role requirements).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", learnerPlus(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Embedded routes share the mux and role middleware.
	for _, register := range cfg.ExtraRoutes {
		register(mux, requireRole)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Embedder middlewares wrap everything, including /health.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
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
	}
}

// Handlers returns the underlying Handlers for access to SeedAdmin etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
