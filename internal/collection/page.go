package collection

// Page describes one page of a paginated list. Start and End are slice
// bounds into the full list.
type Page struct {
	Number       int  `json:"number"`
	Total        int  `json:"total"`
	PrevDisabled bool `json:"prevDisabled"`
	NextDisabled bool `json:"nextDisabled"`
	Start        int  `json:"-"`
	End          int  `json:"-"`
}

// Paginate computes the page for a list of total items. page is clamped to
// [1, max(pages, 1)]; a non-positive pageSize is treated as 1.
func Paginate(total, pageSize, page int) Page {
	if pageSize <= 0 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}
	pages := (total + pageSize - 1) / pageSize
	last := max(pages, 1)
	page = min(max(page, 1), last)

	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	return Page{
		Number:       page,
		Total:        pages,
		PrevDisabled: page == 1,
		NextDisabled: page >= pages,
		Start:        start,
		End:          end,
	}
}

// Slice returns the items on p.
func Slice[T any](items []T, p Page) []T {
	if p.Start >= len(items) {
		return []T{}
	}
	return items[p.Start:min(p.End, len(items))]
}
