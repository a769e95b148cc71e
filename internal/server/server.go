package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/mailindex"
)

const (
	// DefaultAddr is the default listen address of the control server.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultAttemptTTL bounds how long an authorization attempt is kept
	// for the browser that started it.
	DefaultAttemptTTL = 15 * time.Minute
)

// Authorizer is the OAuth surface the HTTP handlers drive.
// *google.Manager implements it.
type Authorizer interface {
	AuthorizationURL(ctx context.Context) (string, *google.AuthAttempt, error)
	ExchangeCode(ctx context.Context, params url.Values, attempt *google.AuthAttempt) error
	State(ctx context.Context) google.CredentialState
	LastRefreshError() error
	Reset(ctx context.Context) error
	Store() google.TokenStore
}

// Mail runs mailbox operations. *mailindex.Service implements it.
type Mail interface {
	Backfill(ctx context.Context, opts mailindex.IndexOptions) (mailindex.IndexStats, error)
	HydrateDay(ctx context.Context, day string, opts mailindex.HydrateOptions) (int, error)
	HydrateRange(ctx context.Context, from, to string, opts mailindex.HydrateOptions) (int, error)
	Search(ctx context.Context, query string, limit int) ([]mailindex.SearchResult, int64, error)
}

// Config holds the control server settings.
type Config struct {
	Addr string

	// AttemptTTL defaults to DefaultAttemptTTL.
	AttemptTTL time.Duration

	// SecureCookies marks the attempt cookie Secure. Enable behind HTTPS.
	SecureCookies bool

	// ControlToken guards /oauth/reset and /mail/*. Requests must carry it
	// as a bearer token. When empty those routes are refused.
	ControlToken string
}

// Server is the HTTP control surface: the OAuth redirect flow, mailbox
// operations and health checks.
type Server struct {
	cfg      Config
	auth     Authorizer
	mail     Mail
	attempts *ttlcache.Cache[string, *google.AuthAttempt]
	health   *HealthChecker
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	mcp http.Handler

	httpServer *http.Server
	started    atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithMCP mounts an MCP streamable HTTP handler at /mcp behind the
// control token.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records HTTP request metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a server. Call Start to listen or use Handler directly.
func New(cfg Config, auth Authorizer, mail Mail, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = DefaultAttemptTTL
	}

	s := &Server{
		cfg:  cfg,
		auth: auth,
		mail: mail,
		attempts: ttlcache.New(
			ttlcache.WithTTL[string, *google.AuthAttempt](cfg.AttemptTTL),
			ttlcache.WithDisableTouchOnHit[string, *google.AuthAttempt](),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = logging.WithComponent(s.logger, "http")
	s.health = NewHealthChecker(func(ctx context.Context) string {
		return auth.State(ctx).String()
	})
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Health returns the health checker, e.g. to flip readiness on shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /oauth/start", s.handleOAuthStart)
	mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)
	mux.HandleFunc("GET /oauth/status", s.handleOAuthStatus)
	mux.Handle("POST /oauth/reset", s.requireToken(s.handleOAuthReset))

	mux.Handle("POST /mail/backfill", s.requireToken(s.handleBackfill))
	mux.Handle("POST /mail/hydrate", s.requireToken(s.handleHydrate))
	mux.Handle("GET /mail/search", s.requireToken(s.handleSearch))

	if s.mcp != nil {
		mux.Handle("/mcp", s.requireToken(s.mcp.ServeHTTP))
	}

	s.health.RegisterHealthEndpoints(mux)

	return s.instrument(mux)
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.started.Store(true)
	go s.attempts.Start()

	s.logger.Info("starting control server", slog.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server as not ready, drains in-flight requests and
// stops the attempt cache.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	if !s.started.Load() {
		return nil
	}
	defer s.attempts.Stop()

	s.logger.Info("shutting down control server")
	return s.httpServer.Shutdown(ctx)
}
