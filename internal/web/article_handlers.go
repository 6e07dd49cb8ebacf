package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/articles"
	"github.com/thoughtnest/nestclient/internal/collection"
	"github.com/thoughtnest/nestclient/internal/notify"
)

// Dashboard and editor messages.
const (
	msgDeleted         = "Article deleted successfully."
	msgDeleteFailed    = "Failed to delete article."
	msgPublished       = "Article published."
	msgUnpublished     = "Article unpublished."
	msgPublishFailed   = "Failed to change publish status."
	msgPublicFailed    = "Failed to load public articles."
	msgMineFailed      = "Failed to load your articles."
	msgCreated         = "Article created successfully!"
	msgUpdated         = "Article updated successfully!"
	msgSaveFailed      = "Error while saving article. Please try again."
	msgArticleFailed   = "Error fetching article"
	msgUploadFailed    = "Image upload failed. Please try again."
	excerptPreviewSize = 280
)

type dashboardResponse struct {
	collection.View
	Username string `json:"username"`
}

// DashboardView handles GET /dashboard?q=&mine_page=&public_page=.
// Both listings are fetched concurrently; a public listing failure only
// produces a notification.
func (h *Handler) DashboardView(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard()
	ctx := r.Context()

	mineGen := d.BeginLoad(collection.ListMine)
	publicGen := d.BeginLoad(collection.ListPublic)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mine, err := h.repo.ListMine(gctx)
		if err != nil {
			return err
		}
		d.Apply(collection.ListMine, mineGen, mine)
		return nil
	})
	var publicErr error
	g.Go(func() error {
		public, err := h.repo.ListPublic(ctx)
		if err != nil {
			publicErr = err
			return nil
		}
		d.Apply(collection.ListPublic, publicGen, public)
		return nil
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, err, msgMineFailed)
		return
	}
	if publicErr != nil {
		h.logger.Warn("public listing failed", slog.String("error", publicErr.Error()))
		h.notifier.Notify(msgPublicFailed, notify.Error)
	}

	q := r.URL.Query()
	if q.Has("q") {
		d.SetSearch(q.Get("q"))
	}
	d.SetPages(atoi(q.Get("mine_page")), atoi(q.Get("public_page")))

	username, _ := h.store.Username(ctx)
	writeJSON(w, http.StatusOK, dashboardResponse{View: d.View(), Username: username})
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Suggestions handles GET /dashboard/suggestions?q=.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	list := h.Dashboard().SetSearch(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": list, "active": -1})
}

type keyRequest struct {
	Key collection.Key `json:"key"`
}

type keyResponse struct {
	Active    int                   `json:"active"`
	Selection *collection.Selection `json:"selection,omitempty"`
	Redirect  string                `json:"redirect,omitempty"`
}

// Keys handles POST /dashboard/keys.
func (h *Handler) Keys(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Key {
	case collection.KeyDown, collection.KeyUp, collection.KeyEnter:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("key must be one of down, up, enter"))
		return
	}
	active, sel := h.Dashboard().Press(req.Key)
	resp := keyResponse{Active: active, Selection: sel}
	if sel != nil {
		resp.Redirect = sel.Route
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Term string `json:"term"`
}

// Search handles POST /dashboard/search: an exact catalogue lookup.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	route, ok := collection.ExactMatch(req.Term)
	if !ok {
		h.notifier.Notify(collection.MsgNoMatch, notify.Error)
		writeJSON(w, http.StatusNotFound, errorBody(collection.MsgNoMatch))
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{Redirect: route})
}

type articleRequest struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Content string `json:"content"`
	Image   string `json:"image"`
	Author  string `json:"author"`
}

func (h *Handler) draftFrom(r *http.Request, req articleRequest) articles.Draft {
	d := articles.Draft(req)
	if strings.TrimSpace(d.Author) == "" {
		d.Author, _ = h.store.Username(r.Context())
	}
	return d
}

type savedResponse struct {
	Article  *articles.Article `json:"article"`
	Redirect string            `json:"redirect"`
	Message  string            `json:"message"`
}

// CreateArticle handles POST /articles.
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.repo.Create(r.Context(), h.draftFrom(r, req))
	if err != nil {
		h.fail(w, r, err, msgSaveFailed)
		return
	}
	h.events.PublishArticleEvent("created", a.ID.String())
	h.notifier.Notify(msgCreated, notify.Success)
	writeJSON(w, http.StatusCreated, savedResponse{Article: a, Redirect: "/dashboard", Message: msgCreated})
}

// UpdateArticle handles PUT /articles/{id}.
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var req articleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.repo.Update(r.Context(), id, h.draftFrom(r, req))
	if err != nil {
		h.fail(w, r, err, msgSaveFailed)
		return
	}
	h.events.PublishArticleEvent("updated", id.String())
	h.notifier.Notify(msgUpdated, notify.Success)
	writeJSON(w, http.StatusOK, savedResponse{Article: a, Redirect: "/dashboard", Message: msgUpdated})
}

// DeleteArticle handles DELETE /articles/{id}. The article is dropped from
// the local listing without a refetch.
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Remove(r.Context(), id); err != nil {
		h.fail(w, r, err, msgDeleteFailed)
		return
	}
	h.Dashboard().RemoveMine(id)
	h.events.PublishArticleEvent("deleted", id.String())
	h.notifier.Notify(msgDeleted, notify.Success)
	w.WriteHeader(http.StatusNoContent)
}

type publishRequest struct {
	// Published is the state the client currently shows.
	Published *bool `json:"published"`
}

// TogglePublish handles POST /articles/{id}/publish. When the request does
// not carry the current state it is taken from the local listing.
func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d := h.Dashboard()
	var current bool
	switch {
	case req.Published != nil:
		current = *req.Published
	default:
		a, found := d.Find(id)
		if !found {
			writeJSON(w, http.StatusBadRequest, errorBody("published state is required"))
			return
		}
		current = a.Published
	}

	mineGen := d.BeginLoad(collection.ListMine)
	publicGen := d.BeginLoad(collection.ListPublic)
	res, err := h.repo.TogglePublish(r.Context(), id, current)
	if err != nil {
		h.fail(w, r, err, msgPublishFailed)
		return
	}

	msg := msgPublished
	if !res.Published {
		msg = msgUnpublished
	}
	h.events.PublishArticleEvent("published", id.String())
	h.notifier.Notify(msg, notify.Info)

	// The state change stands even when a listing could not be reloaded.
	var stale []string
	refreshed := func(l collection.List, gen uint64, list []articles.Article, err error, failMsg string) {
		if err == nil {
			d.Apply(l, gen, list)
			return
		}
		h.logger.Warn("listing refetch after publish failed",
			slog.String("notice", failMsg),
			slog.String("error", err.Error()))
		h.notifier.Notify(failMsg, notify.Error)
		stale = append(stale, failMsg)
	}
	refreshed(collection.ListMine, mineGen, res.Mine, res.MineErr, msgMineFailed)
	refreshed(collection.ListPublic, publicGen, res.Public, res.PublicErr, msgPublicFailed)

	if err := firstAuthFailure(res.MineErr, res.PublicErr); err != nil {
		h.fail(w, r, err, msgMineFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"published": res.Published,
		"message":   msg,
		"stale":     stale,
		"view":      d.View(),
	})
}

// firstAuthFailure returns the first error that ended the session.
func firstAuthFailure(errs ...error) error {
	for _, err := range errs {
		if apperr.KindOf(err) == apperr.KindAuth {
			return err
		}
	}
	return nil
}

// UploadImage handles POST /articles/upload-image (multipart field "image").
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	limit := h.repo.MaxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			_, err = h.repo.UploadImage(r.Context(), "", limit+1, nil)
			h.fail(w, r, err, msgUploadFailed)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'image' field in multipart form"))
		return
	}
	defer func() { _ = file.Close() }()

	url, err := h.repo.UploadImage(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		h.fail(w, r, err, msgUploadFailed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

type articleView struct {
	Article *articles.Article `json:"article"`
	Excerpt string            `json:"excerpt"`
	Text    string            `json:"text"`
}

// ViewArticle handles GET /articles/{id}.
func (h *Handler) ViewArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	a, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			msg := "Failed to load article: " + strconv.Itoa(http.StatusNotFound) + " - " + userMessage(err, "not found")
			h.notifier.Notify(msg, notify.Error)
			writeJSON(w, http.StatusNotFound, errorBody(msg))
			return
		}
		h.fail(w, r, err, msgArticleFailed)
		return
	}
	writeJSON(w, http.StatusOK, articleView{
		Article: a,
		Excerpt: articles.Excerpt(a.Content, excerptPreviewSize),
		Text:    articles.PlainText(a.Content),
	})
}

func articleID(w http.ResponseWriter, r *http.Request) (articles.ID, bool) {
	id, err := articles.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid article id"))
		return "", false
	}
	return id, true
}
