package articles

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape names the list payload variants the backend is known to return.
type Shape int

const (
	ShapeEmpty   Shape = iota // null or no payload
	ShapeArray                // [ {...}, ... ]
	ShapeWrapped              // {"articles": [...]} or {"data": {"articles": [...]}} or {"data": [...]}
)

// wrapper covers the object forms; Data may itself be an array or another wrapper.
type wrapper struct {
	Articles json.RawMessage `json:"articles"`
	Data     json.RawMessage `json:"data"`
}

// DetectShape classifies raw without decoding the articles.
func DetectShape(raw json.RawMessage) Shape {
	b := bytes.TrimSpace(raw)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		return ShapeEmpty
	case b[0] == '[':
		return ShapeArray
	default:
		return ShapeWrapped
	}
}

// Normalize turns any known list payload into one ordered slice of
// articles with AuthorUsername resolved. An unknown object shape yields an
// empty slice, matching how the listing pages treat it.
func Normalize(raw json.RawMessage) ([]Article, error) {
	return normalize(raw, 0)
}

func normalize(raw json.RawMessage, depth int) ([]Article, error) {
	if depth > 2 {
		return []Article{}, nil
	}
	switch DetectShape(raw) {
	case ShapeEmpty:
		return []Article{}, nil
	case ShapeArray:
		var list []Article
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("articles: decode list: %w", err)
		}
		for i := range list {
			list[i].backfillAuthor()
		}
		return list, nil
	}

	var w wrapper
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("articles: decode wrapper: %w", err)
	}
	switch {
	case DetectShape(w.Articles) != ShapeEmpty:
		return normalize(w.Articles, depth+1)
	case DetectShape(w.Data) != ShapeEmpty:
		return normalize(w.Data, depth+1)
	}
	return []Article{}, nil
}

// normalizeOne decodes a single article payload and resolves its author.
func normalizeOne(raw json.RawMessage) (*Article, error) {
	if DetectShape(raw) == ShapeEmpty {
		return nil, fmt.Errorf("articles: empty article payload")
	}
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("articles: decode article: %w", err)
	}
	a.backfillAuthor()
	return &a, nil
}
