// ABOUTME: Gateway orchestrator wiring the store, broker, services, and HTTP server
// ABOUTME: Owns startup order and graceful shutdown of all components

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/visitly/chat-gateway/internal/api"
	"github.com/visitly/chat-gateway/internal/auth"
	"github.com/visitly/chat-gateway/internal/broker"
	"github.com/visitly/chat-gateway/internal/chat"
	"github.com/visitly/chat-gateway/internal/config"
	"github.com/visitly/chat-gateway/internal/dispatch"
	"github.com/visitly/chat-gateway/internal/store"
	"github.com/visitly/chat-gateway/internal/ws"
)

// Gateway orchestrates the chat-gateway server components: the
// persistence store, the topic broker, the conversation service, both
// websocket surfaces, and the HTTP API.
type Gateway struct {
	config     *config.Config
	store      store.Store
	broker     *broker.Broker
	service    *chat.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates a store based on config and environment.
// CHAT_GATEWAY_DB_PATH overrides the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHAT_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New assembles a gateway from configuration. Nothing listens until
// Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	b := broker.New(logger)
	dispatcher := dispatch.New(b, logger)
	checker := auth.NewStoreChecker(st)
	service := chat.New(st, checker, dispatcher, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	router := mux.NewRouter()
	ws.NewHandler(service, b, st, checker, verifier, cfg.WebSocket.QueueSize, logger).Register(router)
	api.NewServer(service, st, verifier, logger).Register(router, cfg.Metrics.Enabled)

	return &Gateway{
		config:  cfg,
		store:   st,
		broker:  b,
		service: service,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// Run serves until the context is canceled or the listener fails, then
// shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	g.logger.Info("gateway listening", "http_addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.httpServer.Serve(listener)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store. Live websocket
// connections are torn down by the server shutdown.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
