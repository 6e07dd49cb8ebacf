package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, store session.Store, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestBearerInjectedWhenTokenPresent(t *testing.T) {
	store := session.NewMemory()
	_ = store.Save(context.Background(), "t1", "u")

	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}, store)

	if _, err := c.Do(context.Background(), http.MethodGet, "/articles/my", nil); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer t1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/api/articles/my" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestAnonymousRequestWithoutToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}, session.NewMemory())

	if _, err := c.Do(context.Background(), http.MethodGet, "/articles/public", nil); err != nil {
		t.Fatalf("missing token must not be an error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestEnvelopeDecoding(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMsg  string
		wantData string
	}{
		{"wrapped", `{"message":"ok","status":200,"data":{"a":1}}`, "ok", `{"a":1}`},
		{"bare array", `[1,2]`, "", `[1,2]`},
		{"bare object", `{"token":"t"}`, "", `{"token":"t"}`},
		{"message only", `{"message":"sent"}`, "sent", `{"message":"sent"}`},
		{"empty", ``, "", ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := decodeEnvelope(200, []byte(tc.body))
			if resp.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", resp.Message, tc.wantMsg)
			}
			if string(resp.Data) != tc.wantData {
				t.Errorf("data = %s, want %s", resp.Data, tc.wantData)
			}
		})
	}
}

func TestAuthFailureInvokesHookOnce(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var hooks atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}, session.NewMemory(), WithOnUnauthorized(func(context.Context, int) { hooks.Add(1) }))

		_, err := c.Do(context.Background(), http.MethodGet, "/articles/my", nil)
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("status %d: err = %v, want ErrUnauthorized", status, err)
		}
		if apperr.KindOf(err) != apperr.KindAuth {
			t.Errorf("kind = %s", apperr.KindOf(err))
		}
		if n := hooks.Load(); n != 1 {
			t.Errorf("status %d: hook calls = %d, want 1", status, n)
		}
	}
}

func TestServerRejectionUsesServerMessage(t *testing.T) {
	var hooks atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Title too long","status":400,"data":null}`))
	}, session.NewMemory(), WithOnUnauthorized(func(context.Context, int) { hooks.Add(1) }))

	_, err := c.Do(context.Background(), http.MethodPost, "/articles", map[string]string{"title": "x"})
	if !errors.Is(err, apperr.ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
	if msg := apperr.Message(err, ""); msg != "Title too long" {
		t.Errorf("message = %q", msg)
	}
	if hooks.Load() != 0 {
		t.Error("server rejection must not tear down the session")
	}
}

func TestServerRejectionFallbackAndNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, session.NewMemory())

	_, err := c.Do(context.Background(), http.MethodGet, "/articles/9", nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if msg := apperr.Message(err, ""); msg != apperr.MsgGeneric {
		t.Errorf("message = %q, want generic fallback", msg)
	}
}

func TestNetworkFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(base, session.NewMemory(), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Do(context.Background(), http.MethodGet, "/articles/public", nil)
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if errors.Is(err, apperr.ErrServer) {
		t.Error("network failure must be distinct from a server rejection")
	}
}

func TestUploadMultipart(t *testing.T) {
	var field, name, content string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		field, name, content = "image", hdr.Filename, string(b)
		_, _ = w.Write([]byte(`{"message":"Image uploaded successfully","data":"https://cdn/x.png"}`))
	}, session.NewMemory())

	resp, err := c.Upload(context.Background(), "/articles/upload-image", "image", "x.png", strings.NewReader("PNG"))
	if err != nil {
		t.Fatal(err)
	}
	var url string
	if err := resp.Decode(&url); err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn/x.png" || field != "image" || name != "x.png" || content != "PNG" {
		t.Errorf("url=%q field=%q name=%q content=%q", url, field, name, content)
	}
}

func TestQueryStringPreserved(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}, session.NewMemory())

	if _, err := c.Do(context.Background(), http.MethodPatch, "/articles/7/publish?published=true", nil); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "published=true" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com", nil); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestTimeoutSurvivesReplacedHTTPClient(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	for name, opts := range map[string][]Option{
		"timeout first": {WithTimeout(50 * time.Millisecond), WithHTTPClient(&http.Client{})},
		"client first":  {WithHTTPClient(&http.Client{}), WithTimeout(50 * time.Millisecond)},
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, slow, session.NewMemory(), opts...)
			start := time.Now()
			_, err := c.Do(context.Background(), http.MethodGet, "/articles/public", nil)
			if apperr.KindOf(err) != apperr.KindNetwork {
				t.Fatalf("err = %v, want network failure", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("request took %v, timeout was lost", elapsed)
			}
		})
	}
}
