package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/thoughtnest/nestclient/internal/session"
)

func TestDecide(t *testing.T) {
	if d := Decide("/dashboard", true); !d.Allow || d.Redirect != "" {
		t.Errorf("logged in: %+v", d)
	}
	d := Decide("/editor", false)
	if d.Allow || !d.Replace {
		t.Errorf("anonymous: %+v", d)
	}
	if d.Redirect != "/login?redirect=%2Feditor" {
		t.Errorf("redirect = %q", d.Redirect)
	}
}

func TestRedirectTarget(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", DashboardPath},
		{"redirect=%2Farticle%2F7", "/article/7"},
		{"redirect=https%3A%2F%2Fevil.example", DashboardPath},
		{"redirect=%2F%2Fevil.example", DashboardPath},
		{"redirect=relative", DashboardPath},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.raw)
		if got := RedirectTarget(q); got != tt.want {
			t.Errorf("RedirectTarget(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestArticleGate(t *testing.T) {
	const p = "/articles/Article2"
	if r, mark := ArticleGate(p, true, false); r != p || mark {
		t.Errorf("logged in: %q %v", r, mark)
	}
	if r, mark := ArticleGate(p, false, false); r != "/signup?redirect=%2Farticles%2FArticle2" || !mark {
		t.Errorf("first visit: %q %v", r, mark)
	}
	if r, mark := ArticleGate(p, false, true); r != "/login?redirect=%2Farticles%2FArticle2" || mark {
		t.Errorf("returning: %q %v", r, mark)
	}
}

func TestRequire(t *testing.T) {
	store := session.NewMemory()
	g := New(store, nil)
	h := g.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?redirect=%2Fdashboard" {
		t.Errorf("Location = %q", loc)
	}
	var d Decision
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if !d.Replace || d.Redirect == "" {
		t.Errorf("body = %+v", d)
	}

	_ = store.Save(context.Background(), "t", "u")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("logged-in status = %d", rec.Code)
	}
}

func TestRequire_FlagWithoutTokenIsAnonymous(t *testing.T) {
	store := session.NewMemory()
	store.SetFlag(true)
	h := New(store, nil).Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account", nil))
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d", rec.Code)
	}
}
