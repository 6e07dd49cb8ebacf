// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ThoughtNest articles for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/articles"
	"github.com/thoughtnest/nestclient/internal/collection"
)

const (
	excerptSize   = 280
	searchLimit   = 20
	formatURI     = "thoughtnest://article-format"
	defaultPageSz = 5
)

// Server wraps the MCP server with ThoughtNest tools.
type Server struct {
	mcp      *server.MCPServer
	repo     *articles.Repository
	pageSize int
	fetch    *http.Client
}

// New creates a new MCP server with all article tools registered.
func New(repo *articles.Repository, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = defaultPageSz
	}
	s := &Server{
		repo:     repo,
		pageSize: pageSize,
		fetch:    newFetchClient(30 * time.Second),
	}

	s.mcp = server.NewMCPServer(
		"ThoughtNest",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_public_articles",
		mcp.WithDescription("List one page of published articles, followed by the built-in catalogue."),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
	), s.listPublic)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Search published and catalogue articles by title. "+
			"Reports the catalogue route when the query is an exact title."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Title text to look for (case-insensitive)")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read one article by id, with a plain-text excerpt and full text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Article id as returned by the list or search tools")),
	), s.readArticle)

	s.mcp.AddTool(mcp.NewTool("list_static_articles",
		mcp.WithDescription("List the built-in catalogue articles and their routes."),
	), s.listStatic)

	s.mcp.AddTool(mcp.NewTool("create_article",
		mcp.WithDescription("Create an unpublished article for the logged-in user. "+
			"Read the format first via get_article_format or the "+formatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Article title")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Publication date, YYYY-MM-DD")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Rich-text HTML body")),
		mcp.WithString("image", mcp.Description("Optional absolute http(s) cover image URL")),
	), s.createArticle)

	s.mcp.AddTool(mcp.NewTool("get_article_format",
		mcp.WithDescription("Returns the article format accepted by create_article."),
	), s.getArticleFormat)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Upload a cover image from an http(s) URL or a base64 data URI. "+
			"Returns the URL to pass as the image of create_article."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional file name for the upload")),
	), s.uploadImage)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Article Format",
			mcp.WithResourceDescription("Fields and rules for articles created through this server."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArticleFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error, fallback string) *mcp.CallToolResult {
	return mcp.NewToolResultError(apperr.Message(err, fallback))
}

func (s *Server) listPublic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	public, err := s.repo.ListPublic(ctx)
	if err != nil {
		return errorResult(err, "Failed to load public articles."), nil
	}
	entries := collection.MergePublic(public)
	page := collection.Paginate(len(entries), s.pageSize, req.GetInt("page", 1))
	return jsonResult(collection.PagedEntries{Page: page, Entries: collection.Slice(entries, page)}), nil
}

type searchResult struct {
	ExactRoute string             `json:"exactRoute,omitempty"`
	Results    []collection.Entry `json:"results"`
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	public, err := s.repo.ListPublic(ctx)
	if err != nil {
		return errorResult(err, "Failed to load public articles."), nil
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	out := searchResult{Results: []collection.Entry{}}
	out.ExactRoute, _ = collection.ExactMatch(query)
	for _, e := range collection.MergePublic(public) {
		if strings.Contains(strings.ToLower(e.Title), needle) {
			out.Results = append(out.Results, e)
			if len(out.Results) == searchLimit {
				break
			}
		}
	}
	return jsonResult(out), nil
}

type readResult struct {
	Article *articles.Article `json:"article,omitempty"`
	Entry   *collection.Entry `json:"entry,omitempty"`
	Excerpt string            `json:"excerpt"`
	Text    string            `json:"text"`
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if e, ok := staticEntry(raw); ok {
		return jsonResult(readResult{Entry: &e, Excerpt: e.Title, Text: e.Title}), nil
	}
	id, err := articles.ParseID(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid article id: %s", raw)), nil
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return errorResult(err, fmt.Sprintf("not found: %s", raw)), nil
	}
	return jsonResult(readResult{
		Article: a,
		Excerpt: articles.Excerpt(a.Content, excerptSize),
		Text:    articles.PlainText(a.Content),
	}), nil
}

// staticEntry resolves a catalogue id ("static-0") or route ("/articles/Article1").
func staticEntry(raw string) (collection.Entry, bool) {
	for _, e := range collection.StaticArticles() {
		if raw == e.ID.String() || raw == e.Route {
			return e, true
		}
	}
	return collection.Entry{}, false
}

func (s *Server) listStatic(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(collection.StaticArticles()), nil
}

func (s *Server) createArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d := articles.Draft{
		Title:   req.GetString("title", ""),
		Date:    req.GetString("date", ""),
		Content: req.GetString("content", ""),
		Image:   req.GetString("image", ""),
	}
	a, err := s.repo.Create(ctx, d)
	if err != nil {
		return errorResult(err, "Error while saving article. Please try again."), nil
	}
	return jsonResult(a), nil
}

func (s *Server) getArticleFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormat), nil
}

func (s *Server) readArticleFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormat,
		},
	}, nil
}
