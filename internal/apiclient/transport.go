package apiclient

import "net/http"

// bearerTransport attaches "Authorization: Bearer <token>" when the token
// source has one. A missing token produces an anonymous request.
type bearerTransport struct {
	next   http.RoundTripper
	tokens TokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.next.RoundTrip(req)
	}
	tok, ok := t.tokens.Token(req.Context())
	if !ok {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok)
	return t.next.RoundTrip(clone)
}
