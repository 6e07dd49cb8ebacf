// Package web serves the local frontend: JSON views and actions over the
// ThoughtNest backend, with redirects modelled as response fields.
package web

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/thoughtnest/nestclient/internal/account"
	"github.com/thoughtnest/nestclient/internal/articles"
	"github.com/thoughtnest/nestclient/internal/collection"
	"github.com/thoughtnest/nestclient/internal/guard"
	"github.com/thoughtnest/nestclient/internal/notify"
	"github.com/thoughtnest/nestclient/internal/session"
)

// ArticleEvents receives article change events for live clients.
type ArticleEvents interface {
	PublishArticleEvent(kind, id string)
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Store       session.Store
	Articles    *articles.Repository
	Account     *account.Service
	Notifier    notify.Notifier
	Events      ArticleEvents
	// SSE, if non-nil, is mounted at GET /events.
	SSE         http.Handler
	// AccessToken, when non-empty, is required on every route.
	AccessToken string
	PageSize    int
	Logger      *slog.Logger
}

// Handler holds the route handlers and the dashboard state.
type Handler struct {
	store    session.Store
	repo     *articles.Repository
	account  *account.Service
	guard    *guard.Guard
	notifier notify.Notifier
	events   ArticleEvents
	pageSize int
	logger   *slog.Logger

	mu        sync.Mutex
	dashboard *collection.Dashboard
}

type noEvents struct{}

func (noEvents) PublishArticleEvent(string, string) {}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{Logger: d.Logger}
	}
	if d.Events == nil {
		d.Events = noEvents{}
	}
	if d.PageSize <= 0 {
		d.PageSize = 5
	}
	return &Handler{
		store:     d.Store,
		repo:      d.Articles,
		account:   d.Account,
		guard:     guard.New(d.Store, d.Logger),
		notifier:  d.Notifier,
		events:    d.Events,
		pageSize:  d.PageSize,
		logger:    d.Logger,
		dashboard: collection.NewDashboard(d.PageSize),
	}
}

// Dashboard returns the live dashboard state.
func (h *Handler) Dashboard() *collection.Dashboard {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dashboard
}

// ResetDashboard discards the dashboard state, as on logout or when the
// session changes underneath it. In-flight loads for the old state are dropped.
func (h *Handler) ResetDashboard() {
	h.resetDashboard()
}

func (h *Handler) resetDashboard() {
	h.mu.Lock()
	old := h.dashboard
	h.dashboard = collection.NewDashboard(h.pageSize)
	h.mu.Unlock()
	old.Close()
}

// NewRouter creates a chi router with all frontend routes mounted.
func NewRouter(d Deps) (chi.Router, *Handler) {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AccessToken(d.AccessToken))

	// Session flows.
	r.Post("/login", h.Login)
	r.Post("/signup", h.Signup)
	r.Post("/logout", h.Logout)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/contact", h.Contact)

	// Home page gated content.
	r.Get("/home/articles/{slug}", h.HomeArticle)

	// Article view does not need a session.
	r.Get("/articles/{id}", h.ViewArticle)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require)

		r.Get("/dashboard", h.DashboardView)
		r.Get("/dashboard/suggestions", h.Suggestions)
		r.Post("/dashboard/keys", h.Keys)
		r.Post("/dashboard/search", h.Search)

		r.Post("/articles", h.CreateArticle)
		r.Post("/articles/upload-image", h.UploadImage)
		r.Put("/articles/{id}", h.UpdateArticle)
		r.Delete("/articles/{id}", h.DeleteArticle)
		r.Post("/articles/{id}/publish", h.TogglePublish)

		r.Get("/account", h.AccountDetails)
		r.Patch("/account", h.UpdateAccount)
	})

	if d.SSE != nil {
		r.Get("/events", d.SSE.ServeHTTP)
	}

	return r, h
}
