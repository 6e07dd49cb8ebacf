// Package collection derives the dashboard's display rows from the server
// listings and the built-in catalogue: merging, filtering, suggestions,
// keyboard navigation and pagination.
package collection

import (
	"strconv"
	"strings"

	"github.com/thoughtnest/nestclient/internal/articles"
)

// StaticAuthor is the author shown on built-in catalogue entries.
const StaticAuthor = "ThoughtNest Blog Admin"

// MsgNoMatch is reported when a search term has no exact catalogue entry.
const MsgNoMatch = "No exact match found. Please try a different search."

type staticEntry struct {
	title string
	route string
}

// Order matters: it is the display order on the dashboard.
var catalogue = []staticEntry{
	{"guilty eating meat", "/articles/Article1"},
	{"ego a human thing to have?", "/articles/Article2"},
	{"what os does a tv have?", "/articles/Article3"},
	{"nightmares are good?", "/articles/Article4"},
	{"is the universe detreministic", "/articles/Article5"},
	{"benefit of doubt", "/articles/Article6"},
}

// Entry is one display row.
type Entry struct {
	ID             articles.ID   `json:"id"`
	Title          string        `json:"title"`
	AuthorUsername string        `json:"authorUsername"`
	Route          string        `json:"route"`
	IsStatic       bool          `json:"isStatic"`
	Published      bool          `json:"published"`
	Date           articles.Date `json:"date"`
	Excerpt        string        `json:"excerpt,omitempty"`
}

// excerptRunes bounds the preview text of server entries.
const excerptRunes = 140

// FromArticle converts a server article into a display row.
func FromArticle(a articles.Article) Entry {
	return Entry{
		ID:             a.ID,
		Title:          a.Title,
		AuthorUsername: a.AuthorUsername,
		Route:          a.Route(),
		Published:      a.Published,
		Date:           a.Date,
		Excerpt:        articles.Excerpt(a.Content, excerptRunes),
	}
}

// StaticArticles returns the built-in catalogue as display rows.
func StaticArticles() []Entry {
	out := make([]Entry, len(catalogue))
	for i, s := range catalogue {
		out[i] = Entry{
			ID:             articles.ID("static-" + strconv.Itoa(i)),
			Title:          s.title,
			AuthorUsername: StaticAuthor,
			Route:          s.route,
			IsStatic:       true,
			Published:      true,
		}
	}
	return out
}

// StaticRoute looks up the route of a catalogue title. The match is exact.
func StaticRoute(title string) (string, bool) {
	for _, s := range catalogue {
		if s.title == title {
			return s.route, true
		}
	}
	return "", false
}

// ExactMatch resolves a free-text search to a catalogue route after
// trimming and lowercasing the term.
func ExactMatch(term string) (string, bool) {
	return StaticRoute(strings.ToLower(strings.TrimSpace(term)))
}

// IsStaticRoute reports whether route belongs to the built-in catalogue.
func IsStaticRoute(route string) bool {
	for _, s := range catalogue {
		if s.route == route {
			return true
		}
	}
	return false
}
