package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/session"
	"github.com/thoughtnest/nestclient/internal/testutil"
)

func testStack(t *testing.T) (*Stack, *Config, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	cfg := NewDefaultConfig()
	cfg.API.BaseURL = backend.URL()
	cfg.Session.Path = filepath.Join(t.TempDir(), "session.db")

	stack, err := NewStack(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	t.Cleanup(func() { stack.Close() })
	return stack, cfg, backend
}

func TestStackTeardownRunsOncePerSession(t *testing.T) {
	stack, _, backend := testStack(t)
	ctx := context.Background()
	token := backend.AddUser("alice", "alice@example.com", "secret")
	if err := stack.Store.Save(ctx, token, "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	calls := 0
	stack.OnTeardown(func() { calls++ })
	backend.RevokeAll()

	if _, err := stack.Articles.ListMine(ctx); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("ListMine err = %v, want auth failure", err)
	}
	if stack.Store.IsLoggedIn(ctx) {
		t.Error("session survived a 401")
	}
	if calls != 1 {
		t.Errorf("teardown hooks ran %d times, want 1", calls)
	}

	// Without a token the store is already torn down.
	_, _ = stack.Articles.ListMine(ctx)
	if calls != 1 {
		t.Errorf("teardown hooks ran %d times after the session was gone", calls)
	}
}

func TestServerTeardownResetsDashboard(t *testing.T) {
	stack, cfg, backend := testStack(t)
	srv := newServer(cfg, stack)
	t.Cleanup(srv.close)

	ctx := context.Background()
	token := backend.AddUser("alice", "alice@example.com", "secret")
	_ = stack.Store.Save(ctx, token, "alice@example.com")
	before := srv.handler.Dashboard()
	backend.RevokeAll()

	_, _ = stack.Articles.ListMine(ctx)
	if !before.Closed() {
		t.Error("dashboard kept after the session was rejected")
	}
}

func TestServerHealth(t *testing.T) {
	stack, cfg, _ := testStack(t)
	srv := newServer(cfg, stack)
	t.Cleanup(srv.close)
	router := srv.routes()

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Errorf("mounted frontend status = %d, want guard redirect", w.Code)
	}
}

func TestServerAccessToken(t *testing.T) {
	stack, cfg, _ := testStack(t)
	cfg.App.HTTP.AccessToken = "local-secret"
	srv := newServer(cfg, stack)
	t.Cleanup(srv.close)
	router := srv.routes()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health behind token: status = %d", w.Code)
	}
}

func TestWatchSessionIgnoresOwnLogin(t *testing.T) {
	stack, cfg, backend := testStack(t)
	srv := newServer(cfg, stack)
	t.Cleanup(srv.close)
	backend.AddUser("alice", "alice@example.com", "secret")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.watchSession(ctx, cfg.Session.Path)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)

	before := srv.handler.Dashboard()
	if _, err := stack.Account.Login(context.Background(), "alice@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if before.Closed() {
		t.Fatal("own login was treated as a change from another window")
	}

	other, err := session.Open(cfg.Session.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if err := other.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !before.Closed() {
		time.Sleep(25 * time.Millisecond)
	}
	if !before.Closed() {
		t.Error("logout from another handle did not reset the dashboard")
	}
}
