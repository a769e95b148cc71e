package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/server"
	"github.com/teemow/inboxindex/internal/tools/mail_tools"
)

// Transports accepted by "serve --transport".
const (
	transportHTTP           = "http"
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

type serveOptions struct {
	transport      string
	readOnly       bool
	httpAddr       string
	metricsEnabled bool
	metricsAddr    string
	secureCookies  bool
	attemptTTL     time.Duration
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control server or the MCP server",
		Long: `Start the HTTP control server or the MCP server.

Supports multiple transport types:
  - http: the control server below (default)
  - streamable-http: the control server plus MCP tools at /mcp
  - stdio: MCP tools over standard input/output, no HTTP listener

Endpoints:
  GET  /oauth/start      Redirect to Google's consent page
  GET  /oauth/callback   Exchange the authorization code
  GET  /oauth/status     Report the credential state
  POST /oauth/reset      Forget the stored credential
  POST /mail/backfill    Index message ids for the lookback period
  POST /mail/hydrate     Fetch messages for ?day= or ?from=&to=
  GET  /mail/search      Search with ?q=&limit=

/oauth/reset, /mail/* and /mcp require "Authorization: Bearer $CONTROL_TOKEN".

OAuth Configuration:
  GMAIL_OAUTH_CLIENT_ID and GMAIL_OAUTH_REDIRECT_URI are required.
  Without GMAIL_OAUTH_CLIENT_SECRET the public-client PKCE flow is used.
  The redirect URI must point at /oauth/callback of this server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportHTTP, "Transport type: http, streamable-http or stdio")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Only register MCP tools that do not write (mail_search, oauth_status)")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", envOr("HTTP_ADDR", server.DefaultAddr), "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Metrics server address (default: METRICS_ADDR or :9090)")
	cmd.Flags().BoolVar(&opts.secureCookies, "secure-cookies", false, "Mark the authorization attempt cookie as Secure (enable behind HTTPS)")
	cmd.Flags().DurationVar(&opts.attemptTTL, "attempt-ttl", server.DefaultAttemptTTL, "How long an authorization attempt stays valid")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	switch opts.transport {
	case transportHTTP, transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: http, streamable-http, stdio)", opts.transport)
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}

	shutdownCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("error during shutdown", logging.Err(err))
		}
	}()

	if opts.transport == transportStdio {
		mcpSrv, err := newMCPServer(a, logger, opts.readOnly)
		if err != nil {
			return err
		}
		return runStdioServer(mcpSrv)
	}

	var metricsServer *server.MetricsServer
	if opts.metricsEnabled && a.provider.Enabled() && a.provider.PrometheusHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: a.provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(a.provider.Metrics()),
	}
	if opts.transport == transportStreamableHTTP {
		mcpSrv, err := newMCPServer(a, logger, opts.readOnly)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, server.WithMCP(mcpserver.NewStreamableHTTPServer(mcpSrv)))
	}
	if cfg.ControlToken == "" {
		logger.Warn("CONTROL_TOKEN is not set; protected routes will refuse every request")
	}

	srv := server.New(server.Config{
		Addr:          opts.httpAddr,
		AttemptTTL:    opts.attemptTTL,
		SecureCookies: opts.secureCookies,
		ControlToken:  cfg.ControlToken,
	}, a.manager, a.mail, serverOpts...)

	logger.Info("credential state",
		slog.String("state", a.manager.State(shutdownCtx).String()),
		logging.Store(a.manager.Store().String()))

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelTimeout()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("error during metrics server shutdown", logging.Err(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newMCPServer builds the MCP server with the mailbox and OAuth tools.
func newMCPServer(a *app, logger *slog.Logger, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxindex", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	deps := mail_tools.Deps{
		Mail:    a.mail,
		Auth:    a.manager,
		Metrics: a.provider.Metrics(),
		Logger:  logger,
	}
	if err := mail_tools.RegisterTools(mcpSrv, deps, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return mcpSrv, nil
}

// runStdioServer serves MCP on stdin/stdout until the client disconnects
// or a signal arrives. Logs stay on stderr.
func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
