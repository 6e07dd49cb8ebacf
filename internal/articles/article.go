// Package articles mediates every article read and mutation against the
// ThoughtNest backend and normalizes its responses into one Article model.
package articles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UnknownAuthor is used when a response names no author at all.
const UnknownAuthor = "Unknown"

// Author is the nested author object some endpoints embed.
type Author struct {
	Username string `json:"username"`
}

// Article is the canonical client-side article.
type Article struct {
	ID               ID         `json:"id"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Date             Date       `json:"date"`
	Image            string     `json:"image,omitempty"`
	AuthorUsername   string     `json:"authorUsername"`
	Author           *Author    `json:"author,omitempty"`
	Published        bool       `json:"published"`
	LastModifiedDate *Timestamp `json:"lastModifiedDate,omitempty"`
}

// ID accepts both JSON numbers and strings and keeps the decimal text.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("articles: id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Date is a calendar date. The backend sends "2006-01-02"; older payloads
// and the editor send RFC 3339 timestamps.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate accepts "2006-01-02" or RFC 3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("articles: parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// Timestamp is a point in time that tolerates the zone-less
// "2006-01-02T15:04:05.999999999" form the backend emits for local date-times.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, *s); err == nil {
			*t = Timestamp{parsed}
			return nil
		}
	}
	return fmt.Errorf("articles: parse timestamp %q", *s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// ISO returns the date as an RFC 3339 timestamp at midnight UTC, the form
// the create/update endpoints expect.
func (d Date) ISO() string {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

// Route is the client path that displays a server article.
func (a Article) Route() string {
	return "/article/" + a.ID.String()
}

// backfillAuthor resolves AuthorUsername from the nested author object,
// defaulting to UnknownAuthor.
func (a *Article) backfillAuthor() {
	if a.AuthorUsername != "" {
		return
	}
	if a.Author != nil && a.Author.Username != "" {
		a.AuthorUsername = a.Author.Username
		return
	}
	a.AuthorUsername = UnknownAuthor
}

// Stats counts articles and the published subset.
func Stats(list []Article) (total, published int) {
	for _, a := range list {
		if a.Published {
			published++
		}
	}
	return len(list), published
}

// ParseID validates a path-supplied identifier.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("articles: empty id")
	}
	if strings.ContainsAny(s, "/?# ") {
		return "", fmt.Errorf("articles: invalid id %q", s)
	}
	return ID(s), nil
}
