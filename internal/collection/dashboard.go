package collection

import (
	"slices"
	"sync"

	"github.com/thoughtnest/nestclient/internal/articles"
)

// List selects one of the two dashboard listings.
type List int

const (
	ListMine List = iota
	ListPublic
)

func (l List) String() string {
	if l == ListPublic {
		return "public"
	}
	return "mine"
}

// Dashboard is the state behind the dashboard page. Each listing carries a
// generation counter: a load records the generation it started under, and
// its result is applied only if no newer load started since and the
// dashboard is still open.
type Dashboard struct {
	mu       sync.Mutex
	pageSize int
	closed   bool

	mine   []articles.Article
	public []articles.Article
	gen    [2]uint64

	term        string
	suggestions []Entry
	showPanel   bool
	nav         Navigator

	minePage   int
	publicPage int
}

// NewDashboard returns an open dashboard with empty listings.
func NewDashboard(pageSize int) *Dashboard {
	return &Dashboard{
		pageSize:    pageSize,
		suggestions: Suggestions(nil, ""),
		nav:         NewNavigator(),
		minePage:    1,
		publicPage:  1,
	}
}

// BeginLoad starts a fetch of l and returns its generation.
func (d *Dashboard) BeginLoad(l List) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen[l]++
	return d.gen[l]
}

// Apply stores a fetched listing. It reports false, leaving state
// untouched, when the result is stale or the dashboard was closed.
func (d *Dashboard) Apply(l List, gen uint64, list []articles.Article) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.gen[l] {
		return false
	}
	list = slices.Clone(list)
	if l == ListPublic {
		d.public = list
	} else {
		d.mine = list
		d.refreshSuggestions()
	}
	return true
}

// Close marks the dashboard unmounted. In-flight loads are then discarded.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.gen[ListMine]++
	d.gen[ListPublic]++
}

// Closed reports whether Close was called.
func (d *Dashboard) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// RemoveMine drops id from the local mine listing without a refetch.
func (d *Dashboard) RemoveMine(id articles.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mine = slices.DeleteFunc(d.mine, func(a articles.Article) bool { return a.ID == id })
	d.refreshSuggestions()
}

// Mine returns a copy of the mine listing.
func (d *Dashboard) Mine() []articles.Article {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.mine)
}

// Find returns the article with id from the mine listing.
func (d *Dashboard) Find(id articles.ID) (articles.Article, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.IndexFunc(d.mine, func(a articles.Article) bool { return a.ID == id })
	if i < 0 {
		return articles.Article{}, false
	}
	return d.mine[i], true
}

// SetSearch updates the search term, opens the suggestion panel and clears
// the highlight.
func (d *Dashboard) SetSearch(term string) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.term = term
	d.showPanel = true
	d.minePage = 1
	d.refreshSuggestions()
	return slices.Clone(d.suggestions)
}

// refreshSuggestions must be called with mu held.
func (d *Dashboard) refreshSuggestions() {
	d.suggestions = Suggestions(d.mine, d.term)
	d.nav.Reset()
}

// Key is a navigation key on the suggestion panel.
type Key string

const (
	KeyDown  Key = "down"
	KeyUp    Key = "up"
	KeyEnter Key = "enter"
)

// Press handles a key on the suggestion panel. It returns the highlighted
// index afterwards and, for a successful Enter, the committed selection.
// Keys are ignored while the panel is closed or empty.
func (d *Dashboard) Press(k Key) (int, *Selection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.suggestions)
	if !d.showPanel || n == 0 {
		return d.nav.Active(), nil
	}
	switch k {
	case KeyDown:
		d.nav.Down(n)
	case KeyUp:
		d.nav.Up(n)
	case KeyEnter:
		sel, ok := d.nav.Enter(d.suggestions)
		if !ok {
			return d.nav.Active(), nil
		}
		d.term = sel.Term
		d.showPanel = false
		return d.nav.Active(), &sel
	}
	return d.nav.Active(), nil
}

// SetPages moves both listings to the given pages; values <= 0 keep the
// current page. Pages are clamped when the view is built.
func (d *Dashboard) SetPages(mine, public int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mine > 0 {
		d.minePage = mine
	}
	if public > 0 {
		d.publicPage = public
	}
}

// PagedEntries is one page of a listing.
type PagedEntries struct {
	Page    Page    `json:"page"`
	Entries []Entry `json:"entries"`
}

// View is a consistent snapshot of the dashboard.
type View struct {
	Term           string       `json:"term"`
	ShowSuggestion bool         `json:"showSuggestions"`
	Suggestions    []Entry      `json:"suggestions"`
	Active         int          `json:"active"`
	Mine           PagedEntries `json:"mine"`
	Public         PagedEntries `json:"public"`
	Total          int          `json:"total"`
	Published      int          `json:"published"`
}

// View builds the snapshot. The mine listing is filtered by the search
// term; the public listing is the public articles merged with the catalogue.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	mine := FilterMine(d.mine, d.term)
	public := MergePublic(d.public)
	minePage := Paginate(len(mine), d.pageSize, d.minePage)
	publicPage := Paginate(len(public), d.pageSize, d.publicPage)
	total, published := articles.Stats(d.mine)

	return View{
		Term:           d.term,
		ShowSuggestion: d.showPanel,
		Suggestions:    slices.Clone(d.suggestions),
		Active:         d.nav.Active(),
		Mine:           PagedEntries{Page: minePage, Entries: Slice(mine, minePage)},
		Public:         PagedEntries{Page: publicPage, Entries: Slice(public, publicPage)},
		Total:          total,
		Published:      published,
	}
}
