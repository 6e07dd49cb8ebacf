package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// FakeArticle is an article as the fake backend stores it.
type FakeArticle struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	Image     string `json:"image,omitempty"`
	Author    string `json:"-"`
	Published bool   `json:"published"`
}

type fakeUser struct {
	Username string
	Email    string
	Password string
}

// FakeBackend is an in-memory ThoughtNest backend mounted under /api.
// Tokens are HS256 JWTs whose subject is the account email.
type FakeBackend struct {
	Server *httptest.Server
	// MaxUpload is the image size above which uploads fail with 500,
	// the way the real backend rejects them.
	MaxUpload int64

	mu       sync.Mutex
	secret   []byte
	users    map[string]*fakeUser
	tokens   map[string]string
	articles map[int]*FakeArticle
	nextID   int
	calls    map[string]int
	failures map[string]int
	contacts []map[string]string
}

// NewFakeBackend starts the backend and registers its shutdown with t.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b := &FakeBackend{
		MaxUpload: 200 << 10,
		secret:    []byte("test-secret"),
		users:     make(map[string]*fakeUser),
		tokens:    make(map[string]string),
		articles:  make(map[int]*FakeArticle),
		nextID:    1,
		calls:     make(map[string]int),
		failures:  make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(b.count)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", b.signup)
		r.Post("/auth/login", b.login)
		r.Post("/auth/forgot-password", b.ok)
		r.Post("/auth/reset-password", b.ok)
		r.Get("/auth/account", b.authed(b.account))
		r.Patch("/auth/account", b.authed(b.updateAccount))
		r.Post("/contact", b.contact)

		r.Get("/articles/public", b.listPublic)
		r.Get("/articles/my", b.authed(b.listMine))
		r.Post("/articles/upload-image", b.authed(b.upload))
		r.Post("/articles", b.authed(b.create))
		r.Get("/articles/{id}", b.get)
		r.Put("/articles/{id}", b.authed(b.update))
		r.Delete("/articles/{id}", b.authed(b.remove))
		r.Patch("/articles/{id}/publish", b.authed(b.publish))
	})

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL, including the /api prefix.
func (b *FakeBackend) URL() string {
	return b.Server.URL + "/api"
}

// AddUser registers an account and returns a valid token for it.
func (b *FakeBackend) AddUser(username, email, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = &fakeUser{Username: username, Email: email, Password: password}
	return b.issue(email)
}

// AddArticle stores an article owned by email and returns its id.
func (b *FakeBackend) AddArticle(email, title string, published bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.articles[id] = &FakeArticle{
		ID:        id,
		Title:     title,
		Content:   "<p>" + title + "</p>",
		Date:      "2024-01-01",
		Author:    email,
		Published: published,
	}
	return id
}

// Article returns a copy of the stored article.
func (b *FakeBackend) Article(id int) (FakeArticle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.articles[id]
	if !ok {
		return FakeArticle{}, false
	}
	return *a, true
}

// RevokeAll invalidates every issued token.
func (b *FakeBackend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]string)
}

// Calls returns how often "METHOD /path" was requested.
func (b *FakeBackend) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// Fail makes every later "METHOD /path" request answer with status and an
// error envelope. A zero status restores normal handling.
func (b *FakeBackend) Fail(key string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, key)
		return
	}
	b.failures[key] = status
}

// Contacts returns the submitted contact forms.
func (b *FakeBackend) Contacts() []map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]string(nil), b.contacts...)
}

// issue must be called with mu held.
func (b *FakeBackend) issue(email string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"iat": time.Now().Unix(),
		"jti": strconv.Itoa(len(b.tokens) + 1),
	})
	signed, err := tok.SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("testutil: sign token: %v", err))
	}
	b.tokens[signed] = email
	return signed
}

func (b *FakeBackend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.calls[key]++
		status := b.failures[key]
		b.mu.Unlock()
		if status != 0 {
			reply(w, status, http.StatusText(status), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (b *FakeBackend) authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		email, ok := b.tokens[tok]
		b.mu.Unlock()
		if !ok {
			reply(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		h(w, r, email)
	}
}

func reply(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": message,
		"status":  status,
		"data":    data,
	})
}

func (b *FakeBackend) ok(w http.ResponseWriter, _ *http.Request) {
	reply(w, http.StatusOK, "OK", nil)
}

func (b *FakeBackend) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username, Email, Password string
	}
	if json.NewDecoder(r.Body).Decode(&req) != nil || req.Username == "" || req.Email == "" || req.Password == "" {
		reply(w, http.StatusBadRequest, "All fields are required", nil)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Email]; exists {
		reply(w, http.StatusConflict, "Email already registered", nil)
		return
	}
	b.users[req.Email] = &fakeUser{Username: req.Username, Email: req.Email, Password: req.Password}
	reply(w, http.StatusCreated, "User registered", map[string]string{
		"token":    b.issue(req.Email),
		"username": req.Username,
	})
}

func (b *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier, Password string
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if (u.Email == req.Identifier || u.Username == req.Identifier) && u.Password == req.Password {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"token": b.issue(u.Email)})
			return
		}
	}
	reply(w, http.StatusUnauthorized, "Bad credentials", nil)
}

func (b *FakeBackend) account(w http.ResponseWriter, _ *http.Request, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.users[email]
	if u == nil {
		reply(w, http.StatusNotFound, "User not found", nil)
		return
	}
	total, published := 0, 0
	for _, a := range b.articles {
		if a.Author == email {
			total++
			if a.Published {
				published++
			}
		}
	}
	reply(w, http.StatusOK, "OK", map[string]any{
		"username":       u.Username,
		"email":          u.Email,
		"articleCount":   total,
		"publishedCount": published,
	})
}

func (b *FakeBackend) updateAccount(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Username, Email string
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.users[email]
	if u == nil {
		reply(w, http.StatusNotFound, "User not found", nil)
		return
	}
	msg := "Account updated"
	u.Username = req.Username
	if req.Email != "" && req.Email != email {
		delete(b.users, email)
		u.Email = req.Email
		b.users[req.Email] = u
		for tok, e := range b.tokens {
			if e == email {
				delete(b.tokens, tok)
			}
		}
		msg = "Email updated. Please log in again."
	}
	reply(w, http.StatusOK, msg, map[string]string{"username": u.Username, "email": u.Email})
}

func (b *FakeBackend) contact(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	b.mu.Lock()
	b.contacts = append(b.contacts, req)
	b.mu.Unlock()
	reply(w, http.StatusOK, "Message received", nil)
}

// view is the wire form, with the author nested like the real backend.
func (a *FakeArticle) view(users map[string]*fakeUser) map[string]any {
	name := a.Author
	if u := users[a.Author]; u != nil {
		name = u.Username
	}
	return map[string]any{
		"id":        a.ID,
		"title":     a.Title,
		"content":   a.Content,
		"date":      a.Date,
		"image":     a.Image,
		"published": a.Published,
		"author":    map[string]string{"username": name},
	}
}

// sorted must be called with mu held.
func (b *FakeBackend) sorted(keep func(*FakeArticle) bool) []map[string]any {
	ids := make([]int, 0, len(b.articles))
	for id, a := range b.articles {
		if keep(a) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.articles[id].view(b.users))
	}
	return out
}

func (b *FakeBackend) listPublic(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	list := b.sorted(func(a *FakeArticle) bool { return a.Published })
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (b *FakeBackend) listMine(w http.ResponseWriter, _ *http.Request, email string) {
	b.mu.Lock()
	list := b.sorted(func(a *FakeArticle) bool { return a.Author == email })
	b.mu.Unlock()
	reply(w, http.StatusOK, "OK", map[string]any{"articles": list})
}

func (b *FakeBackend) lookup(w http.ResponseWriter, r *http.Request) (*FakeArticle, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		reply(w, http.StatusBadRequest, "invalid id", nil)
		return nil, false
	}
	a, ok := b.articles[id]
	if !ok {
		reply(w, http.StatusNotFound, "Article not found", nil)
		return nil, false
	}
	return a, true
}

func (b *FakeBackend) get(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.lookup(w, r)
	if !ok {
		return
	}
	reply(w, http.StatusOK, "OK", a.view(b.users))
}

type articleBody struct {
	Title   string  `json:"title"`
	Date    string  `json:"date"`
	Content string  `json:"content"`
	Image   *string `json:"image"`
}

func (in articleBody) apply(a *FakeArticle) bool {
	if in.Title == "" || in.Content == "" || in.Date == "" {
		return false
	}
	a.Title, a.Content = in.Title, in.Content
	if t, err := time.Parse(time.RFC3339, in.Date); err == nil {
		a.Date = t.Format("2006-01-02")
	}
	a.Image = ""
	if in.Image != nil {
		a.Image = *in.Image
	}
	return true
}

func (b *FakeBackend) create(w http.ResponseWriter, r *http.Request, email string) {
	var in articleBody
	_ = json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	a := &FakeArticle{ID: b.nextID, Author: email}
	if !in.apply(a) {
		reply(w, http.StatusBadRequest, "Missing fields", nil)
		return
	}
	b.nextID++
	b.articles[a.ID] = a
	reply(w, http.StatusCreated, "Article created", a.view(b.users))
}

func (b *FakeBackend) update(w http.ResponseWriter, r *http.Request, email string) {
	var in articleBody
	_ = json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.lookup(w, r)
	if !ok {
		return
	}
	if a.Author != email {
		reply(w, http.StatusForbidden, "Not your article", nil)
		return
	}
	if !in.apply(a) {
		reply(w, http.StatusBadRequest, "Missing fields", nil)
		return
	}
	reply(w, http.StatusOK, "Article updated", a.view(b.users))
}

func (b *FakeBackend) remove(w http.ResponseWriter, r *http.Request, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.lookup(w, r)
	if !ok {
		return
	}
	if a.Author != email {
		reply(w, http.StatusForbidden, "Not your article", nil)
		return
	}
	delete(b.articles, a.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) publish(w http.ResponseWriter, r *http.Request, email string) {
	published, err := strconv.ParseBool(r.URL.Query().Get("published"))
	if err != nil {
		reply(w, http.StatusBadRequest, "published must be a boolean", nil)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.lookup(w, r)
	if !ok {
		return
	}
	if a.Author != email {
		reply(w, http.StatusForbidden, "Not your article", nil)
		return
	}
	a.Published = published
	reply(w, http.StatusOK, "Publish state changed", a.view(b.users))
}

func (b *FakeBackend) upload(w http.ResponseWriter, r *http.Request, _ string) {
	file, header, err := r.FormFile("image")
	if err != nil {
		reply(w, http.StatusBadRequest, "image is required", nil)
		return
	}
	defer func() { _ = file.Close() }()
	n, _ := io.Copy(io.Discard, file)
	if n > b.MaxUpload {
		reply(w, http.StatusInternalServerError, "Maximum upload size exceeded", nil)
		return
	}
	reply(w, http.StatusOK, "Uploaded", "/uploads/"+header.Filename)
}
