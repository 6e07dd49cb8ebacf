package articles

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/thoughtnest/nestclient/internal/apperr"
)

// MsgIncomplete is shown when a draft misses a required field.
const MsgIncomplete = "Please fill in all fields before saving."

// Draft is an article as written in the editor, before the backend assigns
// an id and timestamps. Date is the editor's "YYYY-MM-DD" (or RFC 3339) text.
type Draft struct {
	Title   string
	Date    string
	Content string
	Image   string
	Author  string
}

// Validate checks the required fields. It never touches the network.
func (d Draft) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required.Error("title is required"), validation.By(notBlank)),
		validation.Field(&d.Date, validation.Required.Error("date is required"), validation.By(validDate)),
		validation.Field(&d.Content, validation.Required.Error("content is required"), validation.By(notBlankHTML)),
	)
	if err != nil {
		return apperr.Validation(MsgIncomplete, err)
	}
	return nil
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "must not be blank")
	}
	return nil
}

// notBlankHTML rejects editor output that renders to nothing, such as "<p><br></p>".
func notBlankHTML(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(Excerpt(s, 1)) == "" {
		return validation.NewError("validation_blank", "must not be blank")
	}
	return nil
}

func validDate(v any) error {
	s, _ := v.(string)
	if _, err := ParseDate(s); err != nil {
		return validation.NewError("validation_date", "must be a valid date")
	}
	return nil
}

// payload is the body sent to POST /articles and PUT /articles/{id}.
type payload struct {
	Title   string  `json:"title"`
	Date    string  `json:"date"`
	Content string  `json:"content"`
	Image   *string `json:"image"`
	Author  string  `json:"author,omitempty"`
}

// toPayload assumes Validate passed. Only absolute http(s) image URLs are
// forwarded; local previews and placeholders are sent as null.
func (d Draft) toPayload() payload {
	date, _ := ParseDate(d.Date)
	p := payload{
		Title:   strings.TrimSpace(d.Title),
		Date:    date.ISO(),
		Content: d.Content,
		Author:  d.Author,
	}
	if img := strings.TrimSpace(d.Image); strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		p.Image = &img
	}
	return p
}

// DraftFrom seeds an editor draft from an existing article (edit mode).
func DraftFrom(a Article) Draft {
	d := Draft{
		Title:   a.Title,
		Content: a.Content,
		Image:   a.Image,
		Author:  a.AuthorUsername,
	}
	if !a.Date.IsZero() {
		d.Date = a.Date.Format(dateLayout)
	}
	return d
}
