package collection

import (
	"strings"

	"github.com/thoughtnest/nestclient/internal/articles"
)

// MergePublic returns the public articles followed by the catalogue entries
// that do not collide with one of them by id or route. Duplicate server ids
// keep their first occurrence.
func MergePublic(public []articles.Article) []Entry {
	out := make([]Entry, 0, len(public)+len(catalogue))
	ids := make(map[articles.ID]struct{}, len(public))
	routes := make(map[string]struct{}, len(public))
	for _, a := range public {
		if _, dup := ids[a.ID]; dup {
			continue
		}
		e := FromArticle(a)
		ids[e.ID] = struct{}{}
		routes[e.Route] = struct{}{}
		out = append(out, e)
	}
	for _, s := range StaticArticles() {
		if _, dup := ids[s.ID]; dup {
			continue
		}
		if _, dup := routes[s.Route]; dup {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FilterMine keeps the articles whose title contains term, ignoring case.
// An empty term keeps everything.
func FilterMine(mine []articles.Article, term string) []Entry {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]Entry, 0, len(mine))
	for _, a := range mine {
		if needle == "" || strings.Contains(strings.ToLower(a.Title), needle) {
			out = append(out, FromArticle(a))
		}
	}
	return out
}

// Suggestions lists matching user articles followed by matching catalogue
// entries. Catalogue rows use their route as id.
func Suggestions(mine []articles.Article, term string) []Entry {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := FilterMine(mine, needle)
	for _, s := range StaticArticles() {
		if strings.Contains(strings.ToLower(s.Title), needle) {
			s.ID = articles.ID(s.Route)
			out = append(out, s)
		}
	}
	return out
}
