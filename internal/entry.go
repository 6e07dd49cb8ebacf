// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/thoughtnest/nestclient/internal/notify"
	"github.com/thoughtnest/nestclient/internal/session"
	"github.com/thoughtnest/nestclient/internal/sse"
	"github.com/thoughtnest/nestclient/internal/web"
)

// Session change messages shown when another process logs in or out.
const (
	msgLoggedOutElsewhere = "You were logged out in another window."
	msgSessionChanged     = "Your session changed in another window."
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("session_path", cfg.Session.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	stack, err := NewStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	srv := newServer(cfg, stack)
	defer srv.close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the session database for logins and logouts made by other processes.
	g.Go(func() error {
		if err := srv.watchSession(gCtx, cfg.Session.Path); err != nil {
			logger.Warn("session watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams never finish on their own.
		srv.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the session watcher stops with the server.
var errShutdown = errors.New("shutdown")

// server is the local frontend: the web handlers plus the live channels
// (SSE broker and notification queue) that feed connected clients.
type server struct {
	cfg     *Config
	stack   *Stack
	broker  *sse.Broker
	queue   *notify.Queue
	router  chi.Router
	handler *web.Handler
}

func newServer(cfg *Config, stack *Stack) *server {
	s := &server{cfg: cfg, stack: stack}

	// The queue holds notifications until the first client subscribes.
	s.broker = sse.NewBroker(
		sse.WithHeartbeat(cfg.Notify.Heartbeat),
		sse.WithOnSubscribe(func(int) {
			s.queue.MarkReady()
		}),
	)
	s.queue = notify.NewQueue(notify.NewBrokerHost(s.broker), notify.Options{
		RetryDelay:  cfg.Notify.RetryDelay,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Size:        cfg.Notify.QueueSize,
	}, stack.Logger)

	s.router, s.handler = web.NewRouter(web.Deps{
		Store:       stack.Store,
		Articles:    stack.Articles,
		Account:     stack.Account,
		Notifier:    s.queue,
		Events:      s.broker,
		SSE:         s.broker,
		AccessToken: cfg.App.HTTP.AccessToken,
		PageSize:    cfg.Articles.PageSize,
		Logger:      stack.Logger,
	})
	stack.OnTeardown(s.handler.ResetDashboard)
	return s
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := s.stack.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", s.router)
	return r
}

// watchSession reports session changes made by other processes and drops
// dashboard state that belonged to the previous session. Writes made through
// this process's store are recorded first, so they never count as changes.
func (s *server) watchSession(ctx context.Context, path string) error {
	tracker := session.NewTracker(ctx, s.stack.Store)
	s.stack.Store.OnWrite(tracker.Record)
	return session.Watch(ctx, path, s.stack.Logger, func() {
		switch tracker.Observe(ctx) {
		case session.Unchanged:
			return
		case session.LoggedOut:
			s.queue.Notify(msgLoggedOutElsewhere, notify.Warning)
		default:
			s.queue.Notify(msgSessionChanged, notify.Info)
		}
		s.handler.ResetDashboard()
	})
}

func (s *server) close() {
	s.broker.Close()
	s.queue.Close()
}
