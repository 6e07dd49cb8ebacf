package account

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/thoughtnest/nestclient/internal/apiclient"
	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/session"
)

func fakeJWT(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(payload)) + "." +
		enc.EncodeToString([]byte("sig"))
}

func newTestService(t *testing.T, h http.Handler) (*Service, *session.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := session.NewMemory()
	api, err := apiclient.New(srv.URL+"/api", store)
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return New(api, store, nil), store
}

func TestLogin_StoresTokenAndSubject(t *testing.T) {
	token := fakeJWT(`{"sub":"a@x.com"}`)
	var body map[string]string
	svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}))
	ctx := context.Background()

	id, err := svc.Login(ctx, "a@x.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if body["identifier"] != "a@x.com" || body["password"] != "secret" {
		t.Errorf("request body = %v", body)
	}
	if id.Username != "a@x.com" {
		t.Errorf("username = %q", id.Username)
	}
	if tok, ok := store.Token(ctx); !ok || tok != token {
		t.Errorf("stored token = %q, %v", tok, ok)
	}
	if !store.IsLoggedIn(ctx) {
		t.Error("not logged in after login")
	}
}

func TestLogin_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Bad credentials"}`, MsgInvalidLogin},
		{"server", http.StatusBadGateway, ``, MsgServerError},
		{"server message", http.StatusBadRequest, `{"message":"Account locked"}`, "Account locked"},
		{"no message", http.StatusBadRequest, ``, MsgLoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			ctx := context.Background()
			_ = store.Save(ctx, "old", "old@x.com")

			_, err := svc.Login(ctx, "a@x.com", "wrong")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperr.Message(err, ""); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
			if store.IsLoggedIn(ctx) {
				t.Error("previous session survived a failed login")
			}
		})
	}
}

func TestLogin_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := session.NewMemory()
	api, _ := apiclient.New(url+"/api", store)
	_, err := New(api, store, nil).Login(context.Background(), "a@x.com", "pw")
	if apperr.KindOf(err) != apperr.KindNetwork || apperr.Message(err, "") != apperr.MsgNetwork {
		t.Fatalf("err = %v", err)
	}
}

func TestLogin_UndecodableToken(t *testing.T) {
	svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"not-a-jwt"}`)
	}))
	ctx := context.Background()
	_, err := svc.Login(ctx, "a@x.com", "pw")
	if !errors.Is(err, apperr.ErrNoSession) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := store.Token(ctx); ok {
		t.Error("token stored despite undecodable payload")
	}
}

func TestSignup(t *testing.T) {
	t.Run("stores session and marks visited", func(t *testing.T) {
		svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"token":"t1","username":"bob"}`)
		}))
		ctx := context.Background()
		if _, err := svc.Signup(ctx, SignupRequest{Username: "bob", Email: "bob@x.com", Password: "pw"}); err != nil {
			t.Fatal(err)
		}
		if name, _ := store.Username(ctx); name != "bob" {
			t.Errorf("username = %q", name)
		}
		if !store.VisitedBefore(ctx) {
			t.Error("visitor not marked")
		}
	})

	t.Run("validation blocks request", func(t *testing.T) {
		called := false
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		_, err := svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "not-an-email", Password: "pw"})
		if !errors.Is(err, apperr.ErrValidation) || called {
			t.Fatalf("err = %v, called = %v", err, called)
		}
	})

	t.Run("conflict", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		_, err := svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "bob@x.com", Password: "pw"})
		if apperr.Message(err, "") != MsgSignupExists || !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("bad request", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		_, err := svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "bob@x.com", Password: "pw"})
		if apperr.Message(err, "") != MsgSignupInputs || apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestLogoutForgetsVisitor(t *testing.T) {
	svc, store := newTestService(t, http.NotFoundHandler())
	ctx := context.Background()
	_ = store.Save(ctx, "t", "u")
	_ = store.MarkVisited(ctx)

	if err := svc.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if store.IsLoggedIn(ctx) || store.VisitedBefore(ctx) {
		t.Error("logout left state behind")
	}
}

func TestUpdateAccount_ForceRelogin(t *testing.T) {
	svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = io.WriteString(w, `{"message":"Email updated, please log in again","data":{"username":"bob","email":"new@x.com"}}`)
	}))
	ctx := context.Background()
	_ = store.Save(ctx, "t", "old@x.com")

	res, err := svc.UpdateAccount(ctx, UpdateRequest{Username: "bob", Email: "new@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ForceRelogin || res.Message != MsgEmailChanged {
		t.Errorf("result = %+v", res)
	}
	if store.IsLoggedIn(ctx) {
		t.Error("session kept after forced relogin")
	}
}

func TestUpdateAccount_Plain(t *testing.T) {
	svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"Account updated","data":{"username":"bobby","email":"bob@x.com"}}`)
	}))
	ctx := context.Background()
	_ = store.Save(ctx, "t", "bob@x.com")

	res, err := svc.UpdateAccount(ctx, UpdateRequest{Username: "bobby", Email: "bob@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ForceRelogin || res.Details.Username != "bobby" {
		t.Errorf("result = %+v", res)
	}
	if !store.IsLoggedIn(ctx) {
		t.Error("session dropped on plain update")
	}
}

func TestAccountDetails(t *testing.T) {
	svc, store := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"username":"bob","email":"bob@x.com","articleCount":3,"publishedCount":1}}`)
	}))
	ctx := context.Background()

	if _, err := svc.Account(ctx); !errors.Is(err, apperr.ErrNoSession) {
		t.Fatalf("anonymous err = %v", err)
	}

	_ = store.Save(ctx, "t", "bob@x.com")
	d, err := svc.Account(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.ArticleCount != 3 || d.PublishedCount != 1 {
		t.Errorf("details = %+v", d)
	}
}

func TestPasswordReset(t *testing.T) {
	var paths []string
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/auth/reset-password" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"Token expired"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	ctx := context.Background()

	msg, err := svc.ForgotPassword(ctx, "bob@x.com")
	if err != nil || msg != MsgResetEmailSent {
		t.Fatalf("forgot = %q, %v", msg, err)
	}
	_, err = svc.ResetPassword(ctx, "tok", "new")
	if apperr.Message(err, "") != "Token expired" {
		t.Fatalf("reset err = %v", err)
	}
	if strings.Join(paths, ",") != "/api/auth/forgot-password,/api/auth/reset-password" {
		t.Errorf("paths = %v", paths)
	}
}

func TestSendContact(t *testing.T) {
	var got ContactRequest
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	ctx := context.Background()

	msg, err := svc.SendContact(ctx, ContactRequest{Name: "Ann", Email: "ann@x.com", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Thank you, Ann! Your message has been sent." || got.Message != "hi" {
		t.Errorf("msg = %q, got = %+v", msg, got)
	}

	_, err = svc.SendContact(ctx, ContactRequest{Name: "Ann", Email: "ann@x.com", Message: strings.Repeat("x", MaxContactMessage+1)})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("oversize message err = %v", err)
	}
}
