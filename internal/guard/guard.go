// Package guard decides whether a route may be entered with the current
// session, and where to send the visitor otherwise.
package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/thoughtnest/nestclient/internal/session"
)

// Default landing routes.
const (
	LoginPath     = "/login"
	SignupPath    = "/signup"
	DashboardPath = "/dashboard"
)

// Decision is the outcome of a route check. Replace means the redirect
// should replace the current history entry rather than push a new one.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
	Replace  bool   `json:"replace,omitempty"`
}

// Decide admits logged-in visitors and sends everyone else to the login
// page, remembering path as the post-login target. It never calls the network.
func Decide(path string, loggedIn bool) Decision {
	if loggedIn {
		return Decision{Allow: true}
	}
	return Decision{Redirect: withRedirect(LoginPath, path), Replace: true}
}

func withRedirect(base, target string) string {
	return base + "?redirect=" + url.QueryEscape(target)
}

// RedirectTarget returns the post-login destination carried in query. Only
// local absolute paths are honoured; anything else yields the dashboard.
func RedirectTarget(query url.Values) string {
	target := strings.TrimSpace(query.Get("redirect"))
	if !IsLocalPath(target) {
		return DashboardPath
	}
	return target
}

// IsLocalPath reports whether p is a same-origin absolute path.
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// ArticleGate routes a click on gated home-page content. Logged-in users go
// straight to path. Anonymous first-time visitors go to signup, returning
// ones to login. markVisited reports whether the visitor must now be
// recorded as having visited.
func ArticleGate(path string, loggedIn, visitedBefore bool) (redirect string, markVisited bool) {
	switch {
	case loggedIn:
		return path, false
	case !visitedBefore:
		return withRedirect(SignupPath, path), true
	default:
		return withRedirect(LoginPath, path), false
	}
}

// Guard protects routes that need a session.
type Guard struct {
	store  session.Store
	logger *slog.Logger
}

// New creates a Guard reading store on every request.
func New(store session.Store, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, logger: logger}
}

// Check decides for path using the current session.
func (g *Guard) Check(ctx context.Context, path string) Decision {
	return Decide(path, g.store.IsLoggedIn(ctx))
}

// Require is chi middleware. Anonymous requests get 303 See Other with the
// login URL in Location and a JSON body describing the redirect.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Check(r.Context(), r.URL.Path)
		if d.Allow {
			next.ServeHTTP(w, r)
			return
		}
		g.logger.Debug("guarded route refused", slog.String("path", r.URL.Path))
		w.Header().Set("Location", d.Redirect)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusSeeOther)
		if err := json.NewEncoder(w).Encode(d); err != nil {
			g.logger.Error("json encode failed", slog.String("error", err.Error()))
		}
	})
}
