package collection

// Selection is a committed suggestion: the search term to show and the
// route to navigate to.
type Selection struct {
	Term  string `json:"term"`
	Route string `json:"route"`
}

// Navigator tracks the highlighted suggestion. -1 means none.
// The zero value is not ready; use NewNavigator.
type Navigator struct {
	active int
}

func NewNavigator() Navigator {
	return Navigator{active: -1}
}

// Active returns the highlighted index, or -1.
func (n *Navigator) Active() int { return n.active }

// Reset clears the highlight, as when the suggestion list changes.
func (n *Navigator) Reset() { n.active = -1 }

// Down moves the highlight forward with wraparound. No-op on an empty list.
func (n *Navigator) Down(length int) {
	if length <= 0 {
		return
	}
	n.active = (n.active + 1) % length
}

// Up moves the highlight backward; from the top or from none it wraps to the end.
func (n *Navigator) Up(length int) {
	if length <= 0 {
		return
	}
	if n.active <= 0 {
		n.active = length - 1
		return
	}
	n.active--
}

// Enter commits the highlighted entry. It reports false when nothing is
// highlighted or the highlight is out of range.
func (n *Navigator) Enter(list []Entry) (Selection, bool) {
	if n.active < 0 || n.active >= len(list) {
		return Selection{}, false
	}
	e := list[n.active]
	route := e.Route
	if route == "" {
		route, _ = StaticRoute(e.Title)
	}
	n.Reset()
	return Selection{Term: e.Title, Route: route}, true
}
