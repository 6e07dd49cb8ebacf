// Package apiclient is the single HTTP client every backend call goes
// through. It injects the session's bearer token, decodes the backend's
// {message, status, data} envelope, and classifies failures.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thoughtnest/nestclient/internal/apperr"
)

// TokenSource supplies the bearer token for outgoing requests.
// session.Store satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// UnauthorizedFunc is invoked once for every call answered with 401 or 403.
type UnauthorizedFunc func(ctx context.Context, status int)

// Client is a configured backend client.
type Client struct {
	base           *url.URL
	http           *http.Client
	logger         *slog.Logger
	onUnauthorized UnauthorizedFunc
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client. Its transport is
// wrapped so bearer injection still applies. A client without a Timeout
// keeps the one already configured, so option order does not matter.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		if cp.Timeout == 0 {
			cp.Timeout = c.http.Timeout
		}
		if t, ok := c.http.Transport.(*bearerTransport); ok {
			next := cp.Transport
			if next == nil {
				next = http.DefaultTransport
			}
			cp.Transport = &bearerTransport{next: next, tokens: t.tokens}
		}
		c.http = &cp
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithOnUnauthorized registers the session teardown hook.
func WithOnUnauthorized(fn UnauthorizedFunc) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// New creates a client rooted at baseURL. Paths passed to Do are appended to it.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported scheme %q", u.Scheme)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	c := &Client{
		base: u,
		http: &http.Client{
			Transport: &bearerTransport{next: transport, tokens: tokens},
			Timeout:   15 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Response is a decoded backend reply.
type Response struct {
	Status  int
	Message string
	// Data is the envelope's data member, or the whole body when the
	// backend did not wrap it.
	Data json.RawMessage
}

// Decode unmarshals Data into out. Empty or null data leaves out untouched.
func (r *Response) Decode(out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("apiclient: decode data: %w", err)
	}
	return nil
}

// Do sends a JSON request. body may be nil. path may carry a query string.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := c.newRequest(ctx, method, path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

// Upload sends a single-file multipart/form-data POST.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("apiclient: copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("apiclient: close multipart: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse path %q: %w", path, err)
	}
	target := *c.base
	target.Path = c.base.Path + "/" + ref.Path
	target.RawQuery = ref.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend unreachable",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.String("error", err.Error()))
		return nil, &apperr.Error{Kind: apperr.KindNetwork, Message: apperr.MsgNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindNetwork, Status: resp.StatusCode, Message: apperr.MsgNetwork, Err: err}
	}
	out := decodeEnvelope(resp.StatusCode, raw)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, nil
	}

	cerr := classify(resp.StatusCode, out)
	c.logger.Debug("backend rejected request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("message", cerr.Message))
	if cerr.Kind == apperr.KindAuth && c.onUnauthorized != nil {
		c.onUnauthorized(req.Context(), resp.StatusCode)
	}
	return out, cerr
}

type envelope struct {
	Message *string         `json:"message"`
	Error   *string         `json:"error"`
	Status  *int            `json:"status"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope accepts the wrapped {message, status, data} shape, the
// ad-hoc {message|error, data} maps some endpoints return, and bare JSON.
func decodeEnvelope(status int, raw []byte) *Response {
	out := &Response{Status: status}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out
	}
	if trimmed[0] != '{' {
		out.Data = json.RawMessage(trimmed)
		return out
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		out.Data = json.RawMessage(trimmed)
		return out
	}
	wrapped := env.Data != nil || env.Message != nil || env.Error != nil || env.Status != nil
	if !wrapped {
		out.Data = json.RawMessage(trimmed)
		return out
	}
	switch {
	case env.Message != nil:
		out.Message = *env.Message
	case env.Error != nil:
		out.Message = *env.Error
	}
	if env.Data != nil {
		out.Data = env.Data
	} else {
		out.Data = json.RawMessage(trimmed)
	}
	return out
}

func classify(status int, resp *Response) *apperr.Error {
	e := &apperr.Error{Kind: apperr.KindServer, Status: status, Message: resp.Message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = apperr.KindAuth
		if e.Message == "" {
			e.Message = apperr.MsgAuth
		}
		return e
	case status == http.StatusNotFound:
		e.Err = apperr.ErrNotFound
	case status == http.StatusConflict:
		e.Err = apperr.ErrConflict
	case status == http.StatusRequestEntityTooLarge:
		e.Err = apperr.ErrFileTooLarge
	}
	if e.Message == "" {
		e.Message = apperr.MsgGeneric
	}
	return e
}

// IsAuthFailure reports whether err is a 401/403 classification.
func IsAuthFailure(err error) bool {
	return errors.Is(err, apperr.ErrUnauthorized)
}
