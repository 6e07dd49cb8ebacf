package mcpserver

// ArticleFormat describes the article fields accepted by create_article.
const ArticleFormat = `# ThoughtNest Article Format

Articles created through this server belong to the logged-in user and start
unpublished. Publishing is done from the dashboard.

## Fields

| Field     | Required | Format                                                    |
|-----------|----------|-----------------------------------------------------------|
| title     | yes      | Plain text, not blank.                                    |
| date      | yes      | ` + "`YYYY-MM-DD`" + ` (RFC 3339 timestamps are also accepted).    |
| content   | yes      | Rich-text HTML. Markup that renders to no text is blank.  |
| image     | no       | Absolute ` + "`http://`" + ` or ` + "`https://`" + ` URL. Anything else is dropped. |

## Rules

1. All required fields are checked before anything is sent; a missing field
   fails with "Please fill in all fields before saving."
2. Use ` + "`<p>`" + `, ` + "`<h2>`" + `, ` + "`<ul>`" + `, ` + "`<blockquote>`" + ` and inline markup. Scripts and
   styles are stripped from previews.
3. Upload a cover with the ` + "`upload_image`" + ` tool and pass the returned URL as
   ` + "`image`" + `. Images must be smaller than the configured upload limit.

## Example

` + "```" + `json
{
  "title": "Benefit of doubt",
  "date": "2024-03-01",
  "content": "<p>Why we should assume good intent.</p>",
  "image": "https://example.com/uploads/cover.png"
}
` + "```" + `
`
