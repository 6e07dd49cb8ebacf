package articles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/thoughtnest/nestclient/internal/apiclient"
	"github.com/thoughtnest/nestclient/internal/apperr"
)

// Backend endpoints, relative to the API base URL.
const (
	pathMine        = "/articles/my"
	pathPublic      = "/articles/public"
	pathArticles    = "/articles"
	pathUploadImage = "/articles/upload-image"
	uploadField     = "image"
)

// Repository performs article operations through the authenticated client.
type Repository struct {
	api       *apiclient.Client
	logger    *slog.Logger
	maxUpload int64
	lists     singleflight.Group
	locks     *Locks
}

// NewRepository creates a repository. maxUpload is the client-side image size limit in bytes.
func NewRepository(api *apiclient.Client, maxUpload int64, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{api: api, logger: logger, maxUpload: maxUpload, locks: NewLocks()}
}

// MaxUpload returns the image size limit in bytes.
func (r *Repository) MaxUpload() int64 {
	return r.maxUpload
}

// ListMine fetches the current user's articles.
func (r *Repository) ListMine(ctx context.Context) ([]Article, error) {
	return r.list(ctx, pathMine)
}

// ListPublic fetches the published articles of every author.
func (r *Repository) ListPublic(ctx context.Context) ([]Article, error) {
	return r.list(ctx, pathPublic)
}

// list collapses concurrent fetches of the same endpoint into one request.
// Callers receive a private copy of the result.
func (r *Repository) list(ctx context.Context, path string) ([]Article, error) {
	v, err, _ := r.lists.Do(path, func() (any, error) {
		resp, err := r.api.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		return Normalize(resp.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("articles: list %s: %w", path, err)
	}
	shared := v.([]Article)
	out := make([]Article, len(shared))
	copy(out, shared)
	return out, nil
}

// Get fetches one article. The endpoint does not require a session.
func (r *Repository) Get(ctx context.Context, id ID) (*Article, error) {
	resp, err := r.api.Do(ctx, http.MethodGet, articlePath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("articles: get %s: %w", id, err)
	}
	a, err := normalizeOne(resp.Data)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: "No article found in view response.", Err: err}
	}
	return a, nil
}

// Create validates d and creates the article.
func (r *Repository) Create(ctx context.Context, d Draft) (*Article, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	resp, err := r.api.Do(ctx, http.MethodPost, pathArticles, d.toPayload())
	if err != nil {
		return nil, fmt.Errorf("articles: create: %w", err)
	}
	return r.confirmed(resp)
}

// Update validates d and replaces article id.
func (r *Repository) Update(ctx context.Context, id ID, d Draft) (*Article, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	unlock, err := r.locks.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	resp, err := r.api.Do(ctx, http.MethodPut, articlePath(id), d.toPayload())
	if err != nil {
		return nil, fmt.Errorf("articles: update %s: %w", id, err)
	}
	return r.confirmed(resp)
}

// Remove deletes article id. Removing it from any local list is the caller's job.
func (r *Repository) Remove(ctx context.Context, id ID) error {
	unlock, err := r.locks.Acquire(id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := r.api.Do(ctx, http.MethodDelete, articlePath(id), nil); err != nil {
		return fmt.Errorf("articles: delete %s: %w", id, err)
	}
	return nil
}

// PublishResult is the outcome of a publish toggle that reached the
// backend. A refetch failure leaves its list nil and sets its error; the
// state change itself has already happened.
type PublishResult struct {
	Published bool
	Mine      []Article
	Public    []Article
	MineErr   error
	PublicErr error
}

// TogglePublish sets the published state of id to !current and then
// refetches both listings, since the article may have moved between them.
// The returned error covers the state change only.
func (r *Repository) TogglePublish(ctx context.Context, id ID, current bool) (*PublishResult, error) {
	unlock, err := r.locks.Acquire(id)
	if err != nil {
		return nil, err
	}
	path := articlePath(id) + "/publish?published=" + strconv.FormatBool(!current)
	_, err = r.api.Do(ctx, http.MethodPatch, path, nil)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("articles: publish %s: %w", id, err)
	}

	res := &PublishResult{Published: !current}
	res.Mine, res.MineErr = r.refetch(ctx, pathMine)
	res.Public, res.PublicErr = r.refetch(ctx, pathPublic)
	return res, nil
}

// refetch lists path without joining a fetch that began before the
// caller's mutation.
func (r *Repository) refetch(ctx context.Context, path string) ([]Article, error) {
	r.lists.Forget(path)
	return r.list(ctx, path)
}

// UploadImage uploads an image and returns the URL or path the backend assigned.
// Files larger than the configured limit are rejected without a request,
// whether the declared size or the bytes actually read exceed it.
func (r *Repository) UploadImage(ctx context.Context, filename string, size int64, content io.Reader) (string, error) {
	if size > r.maxUpload {
		return "", r.tooLarge(nil)
	}
	resp, err := r.api.Upload(ctx, pathUploadImage, uploadField, filename, &capReader{r: content, left: r.maxUpload})
	if err != nil {
		if errors.Is(err, apperr.ErrFileTooLarge) {
			return "", r.tooLarge(nil)
		}
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindServer {
			return "", r.tooLarge(err)
		}
		return "", fmt.Errorf("articles: upload image: %w", err)
	}
	var out string
	if err := resp.Decode(&out); err != nil || out == "" {
		return "", &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: "Image upload failed. Please try again.", Err: err}
	}
	return out, nil
}

// tooLarge builds the user-actionable upload failure. The backend answers
// oversize uploads with a generic 500, so any server-side rejection is
// reported the same way.
func (r *Repository) tooLarge(cause error) error {
	return &apperr.Error{
		Kind:    apperr.KindValidation,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("Image upload failed. Please try again with a file size less than %dkb", r.maxUpload>>10),
		Err:     joinCause(apperr.ErrFileTooLarge, cause),
	}
}

// capReader fails with ErrFileTooLarge once more than left bytes are read.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, apperr.ErrFileTooLarge
	}
	return n, err
}

func joinCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func (r *Repository) confirmed(resp *apiclient.Response) (*Article, error) {
	a, err := normalizeOne(resp.Data)
	if err != nil {
		r.logger.Warn("article saved but response carried no article", slog.Int("status", resp.Status))
		return nil, &apperr.Error{Kind: apperr.KindServer, Status: resp.Status, Message: "Failed to save article.", Err: err}
	}
	return a, nil
}

func articlePath(id ID) string {
	return pathArticles + "/" + url.PathEscape(id.String())
}
