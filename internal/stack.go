package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/thoughtnest/nestclient/internal/account"
	"github.com/thoughtnest/nestclient/internal/apiclient"
	"github.com/thoughtnest/nestclient/internal/articles"
	"github.com/thoughtnest/nestclient/internal/session"
)

// NewLogger returns the JSON logger used by every entry point.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Stack is the backend-facing part of the application, shared by the
// local frontend, the CLI commands and the MCP server.
type Stack struct {
	Store    *session.SQLiteStore
	API      *apiclient.Client
	Articles *articles.Repository
	Account  *account.Service
	Logger   *slog.Logger

	mu         sync.Mutex
	onTeardown []func()
}

// NewStack opens the session store, repairs it, and builds the API client
// and services on top of it.
func NewStack(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stack, error) {
	store, err := session.Open(cfg.Session.Path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	repaired, err := session.Reconcile(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("reconcile session: %w", err)
	}
	if repaired {
		logger.Warn("cleared stale logged-in flag", slog.String("session_path", cfg.Session.Path))
	}

	st := &Stack{Store: store, Logger: logger}
	api, err := apiclient.New(cfg.API.BaseURL, store,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithLogger(logger),
		apiclient.WithOnUnauthorized(st.teardown),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}
	st.API = api
	st.Articles = articles.NewRepository(api, cfg.Articles.MaxUploadBytes, logger)
	st.Account = account.New(api, store, logger)
	return st, nil
}

// OnTeardown registers fn to run after a rejected session has been cleared.
func (s *Stack) OnTeardown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTeardown = append(s.onTeardown, fn)
}

// teardown runs once per call the backend answered with 401 or 403.
// A store that is already empty is left alone.
func (s *Stack) teardown(ctx context.Context, status int) {
	if _, ok := s.Store.Token(ctx); !ok {
		return
	}
	if err := s.Store.Clear(ctx); err != nil {
		s.Logger.Error("failed to clear rejected session", slog.String("error", err.Error()))
		return
	}
	s.Logger.Warn("session rejected by backend, logged out", slog.Int("status", status))

	s.mu.Lock()
	hooks := append([]func(){}, s.onTeardown...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Close releases the session store.
func (s *Stack) Close() error {
	return s.Store.Close()
}
