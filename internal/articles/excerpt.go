package articles

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Excerpt renders rich-text HTML to plain text, collapses whitespace and
// truncates to at most n runes, appending "…" when cut. n <= 0 means no limit.
func Excerpt(html string, n int) string {
	text := PlainText(html)
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}

// PlainText extracts the visible text of an HTML fragment. Block elements
// are separated by a space so adjacent paragraphs do not run together.
func PlainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, blockquote, br").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
