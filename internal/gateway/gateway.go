// ABOUTME: Gateway orchestrator that wires storage, registry, connections, and HTTP.
// ABOUTME: Manages server lifecycle, health endpoints, and graceful shutdown.

// Package gateway assembles the bot-relay server: the websocket endpoint
// workers connect to, the JSON API the front-end calls, and the health
// endpoints, all on one HTTP listener.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/bot-relay/internal/auth"
	"github.com/2389/bot-relay/internal/bot"
	"github.com/2389/bot-relay/internal/botconn"
	"github.com/2389/bot-relay/internal/config"
	"github.com/2389/bot-relay/internal/service"
	"github.com/2389/bot-relay/internal/storage"
)

// Gateway orchestrates the bot-relay server components.
type Gateway struct {
	config     *config.Config
	store      storage.Storage
	registry   *bot.Registry
	connMgr    *botconn.Manager
	service    *service.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// initStorage creates the persistence backend selected by config.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		return storage.NewFile(cfg.Storage.Path, logger)
	case "sqlite":
		return storage.NewSQLite(cfg.Storage.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// New creates a new Gateway instance with the given configuration.
// The registry load is synchronous: a corrupt store fails construction.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	registry, err := bot.NewRegistry(ctx, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initializing registry: %w", err)
	}

	connMgr := botconn.NewManager(registry, cfg.Bots.ResponseTimeout, cfg.Bots.RegistrationGrace, logger)

	svc, err := service.New(registry, connMgr, cfg.Bots.KeepDuration, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initializing bot service: %w", err)
	}

	g := &Gateway{
		config:   cfg,
		store:    store,
		registry: registry,
		connMgr:  connMgr,
		service:  svc,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// Worker endpoint - authorized by bot secret, not API auth
	mux.HandleFunc("/ws", g.handleWorkerSocket)

	if err := g.registerAPIRoutes(mux); err != nil {
		_ = store.Close()
		return nil, err
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// registerAPIRoutes registers API routes with or without auth middleware.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) error {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/teams/{team}/bots", g.handleRegisterBot)
	api.HandleFunc("GET /api/teams/{team}/bots", g.handleBotStatuses)
	api.HandleFunc("POST /api/teams/{team}/bots/paste", g.handlePasteBot)
	api.HandleFunc("DELETE /api/teams/{team}/bots/{name}", g.handleDeregisterBot)
	api.HandleFunc("POST /api/teams/{team}/bots/{name}/enable", g.handleEnableBot)
	api.HandleFunc("POST /api/teams/{team}/bots/{name}/disable", g.handleDisableBot)
	api.HandleFunc("POST /api/teams/{team}/bots/{name}/rename", g.handleRenameBot)
	api.HandleFunc("POST /api/teams/{team}/bots/{name}/messages", g.handleSendMessage)
	api.HandleFunc("POST /api/teams/{team}/bots/{name}/copy", g.handleCopyBot)

	if g.config.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating JWT verifier: %w", err)
		}
		mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		mux.Handle("/api/", api)
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	return nil
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("service close: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness and the live connection count. The registry
// is loaded before the listener starts, so a serving gateway is ready.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d bots connected)", g.connMgr.ConnectedCount())
}
