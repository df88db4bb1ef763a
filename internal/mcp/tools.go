package mcp

// In this file: MCP tool definitions and handler implementations.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/birdsight/birdsight/internal/xapi"
)

// Tool names.  ToolRegisterCredential is the only tool callable on an
// anonymous connection.
const (
	ToolRegisterCredential = "register_credential"
	ToolSearch             = "search"
	ToolProfile            = "profile"
	ToolThread             = "thread"
	ToolGetPost            = "get_post"
)

const (
	defSearchLimit = 15
	maxSearchPages = 5
	defProfileN    = 20
	maxProfileN    = 100
	threadPages    = 2
)

// tools returns every tool this server can expose.  Visibility per
// connection state is decided by the server's tool filter, not here.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolRegisterCredential(),
		s.toolSearch(),
		s.toolProfile(),
		s.toolThread(),
		s.toolGetPost(),
	}
}

// ─── register_credential ──────────────────────────────────────────────────────

func (s *Server) toolRegisterCredential() mcpsrv.ServerTool {
	tool := mcplib.NewTool(ToolRegisterCredential,
		mcplib.WithDescription(`Register your X API bearer token with this server.

The token is stored behind a new opaque session id, returned together with a
ready-to-use reconnection URL.  Reconnect with that URL (or pass the
session_id parameter) and you will never need to enter the token again.
Each call creates a new independent session; existing sessions are never
modified.`),
		mcplib.WithString("credential",
			mcplib.Description("X API bearer token (read-only app credential)."),
			mcplib.Required(),
		),
		mcplib.WithIdempotentHintAnnotation(false),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handle(ToolRegisterCredential, (*Dispatcher).registerCredential)}
}

// registerPayload is the register_credential success payload.
type registerPayload struct {
	Success      bool     `json:"success"`
	SessionID    string   `json:"session_id"`
	MCPURL       string   `json:"mcp_url"`
	Message      string   `json:"message"`
	Instructions []string `json:"instructions"`
}

func (d *Dispatcher) registerCredential(ctx context.Context, req mcplib.CallToolRequest) *mcplib.CallToolResult {
	cred, _ := stringArg(req, "credential")
	if strings.TrimSpace(cred) == "" {
		return resultErr(errBlankCredential)
	}

	id, err := d.store.CreateSession(ctx, cred)
	if err != nil {
		return resultErr(fmt.Errorf("register_credential: %w", err))
	}
	d.logger.InfoContext(ctx, "credential registered", "session_id", id)

	res, err := resultJSON(registerPayload{
		Success:   true,
		SessionID: id,
		MCPURL:    reconnectURL(d.baseURL, id),
		Message:   "Credential stored. Use the mcp_url below to reconnect without re-entering it.",
		Instructions: []string{
			"Save the session_id somewhere safe; it is the only way to reuse this credential.",
			"Reconfigure your MCP client to connect to mcp_url.",
			"After reconnecting, the search, profile, thread and get_post tools become available.",
		},
	})
	if err != nil {
		return resultErr(fmt.Errorf("register_credential: serialise: %w", err))
	}
	return res
}

// reconnectURL builds the session-scoped connection address handed back to
// the user.
func reconnectURL(base, sessionID string) string {
	return strings.TrimRight(base, "/") + "/mcp?session_id=" + sessionID
}

// ─── search ───────────────────────────────────────────────────────────────────

func (s *Server) toolSearch() mcpsrv.ServerTool {
	tool := mcplib.NewTool(ToolSearch,
		mcplib.WithDescription(`Search recent posts (last 7 days) matching a query.

The query uses the X search syntax, e.g. "$BTC -is:retweet lang:en".  Results
are deduplicated and sorted by the requested metric before truncation.`),
		mcplib.WithString("query",
			mcplib.Description("Search query in X search syntax."),
			mcplib.Required(),
		),
		mcplib.WithString("sort",
			mcplib.Description(`Sort order: "likes" (default), "impressions", "retweets", or "recent".`),
		),
		mcplib.WithNumber("pages",
			mcplib.Description("Number of result pages to fetch upstream (1-5, default 1). More pages widen the candidate pool before sorting."),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of posts to return (default 15)."),
		),
		mcplib.WithString("since",
			mcplib.Description(`Only posts after this time: relative shorthand ("30m", "2h", "7d") or an RFC3339 timestamp. Invalid values are ignored.`),
		),
		mcplib.WithNumber("min_likes",
			mcplib.Description("Drop posts with fewer likes than this."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handle(ToolSearch, (*Dispatcher).search)}
}

// postsPayload is the result payload of search and thread.
type postsPayload struct {
	Posts []xapi.Post `json:"posts"`
	Count int         `json:"count"`
}

func (d *Dispatcher) search(ctx context.Context, req mcplib.CallToolRequest) *mcplib.CallToolResult {
	if !d.conn.Authenticated() {
		return resultErr(errUnauthenticated)
	}
	query, ok := stringArg(req, "query")
	if !ok || query == "" {
		return resultErr(errors.New("search: query is required"))
	}

	sortKey, _ := stringArg(req, "sort")
	if sortKey == "" {
		sortKey = xapi.MetricLikes
	}
	switch sortKey {
	case xapi.MetricLikes, xapi.MetricImpressions, xapi.MetricRetweets, "recent":
	default:
		return resultErr(fmt.Errorf("search: unknown sort %q", sortKey))
	}

	pages := max(min(intArg(req, "pages", 1), maxSearchPages), 1)
	limit := intArg(req, "limit", defSearchLimit)
	if limit < 1 {
		limit = defSearchLimit
	}
	since, _ := stringArg(req, "since")
	minLikes := intArg(req, "min_likes", 0)

	order := xapi.OrderRelevance
	if sortKey == "recent" {
		order = xapi.OrderRecency
	}

	posts, err := d.client.Search(ctx, d.conn.Credential, query, xapi.SearchOptions{
		Pages: pages,
		Order: order,
		Since: since,
	})
	if err != nil {
		return resultErr(fmt.Errorf("search: %w", err))
	}

	// Full fetch first, then filter, sort, dedupe, truncate.  Truncation
	// comes last so every fetched post competes in the sort.
	if minLikes > 0 {
		posts = xapi.FilterByEngagement(posts, xapi.EngagementFilter{MinLikes: minLikes})
	}
	if sortKey != "recent" {
		posts = xapi.SortByMetric(posts, sortKey)
	}
	posts = xapi.Dedupe(posts)
	if len(posts) > limit {
		posts = posts[:limit]
	}

	res, err := resultJSON(postsPayload{Posts: posts, Count: len(posts)})
	if err != nil {
		return resultErr(fmt.Errorf("search: serialise: %w", err))
	}
	return res
}

// ─── profile ──────────────────────────────────────────────────────────────────

func (s *Server) toolProfile() mcpsrv.ServerTool {
	tool := mcplib.NewTool(ToolProfile,
		mcplib.WithDescription("Look up an account by handle and return its profile together with its recent original posts (no retweets), most recent first."),
		mcplib.WithString("handle",
			mcplib.Description(`Account handle, with or without the leading "@".`),
			mcplib.Required(),
		),
		mcplib.WithNumber("count",
			mcplib.Description("Number of posts to return (default 20, max 100)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handle(ToolProfile, (*Dispatcher).profile)}
}

// profilePayload is the result payload of profile.
type profilePayload struct {
	Account *xapi.User  `json:"account"`
	Posts   []xapi.Post `json:"posts"`
}

func (d *Dispatcher) profile(ctx context.Context, req mcplib.CallToolRequest) *mcplib.CallToolResult {
	if !d.conn.Authenticated() {
		return resultErr(errUnauthenticated)
	}
	handle, ok := stringArg(req, "handle")
	if !ok || handle == "" {
		return resultErr(errors.New("profile: handle is required"))
	}
	handle = strings.TrimPrefix(handle, "@")

	count := min(intArg(req, "count", defProfileN), maxProfileN)
	if count < 1 {
		count = defProfileN
	}

	user, posts, err := d.client.Profile(ctx, d.conn.Credential, handle, xapi.ProfileOptions{Count: count})
	if err != nil {
		if errors.Is(err, xapi.ErrNotFound) {
			return resultErr(fmt.Errorf("profile: no account with handle %q", handle))
		}
		return resultErr(fmt.Errorf("profile: %w", err))
	}
	if len(posts) > count {
		posts = posts[:count]
	}

	res, err := resultJSON(profilePayload{Account: user, Posts: posts})
	if err != nil {
		return resultErr(fmt.Errorf("profile: serialise: %w", err))
	}
	return res
}

// ─── thread ───────────────────────────────────────────────────────────────────

func (s *Server) toolThread() mcpsrv.ServerTool {
	tool := mcplib.NewTool(ToolThread,
		mcplib.WithDescription("Retrieve the conversation thread rooted at a post: the root post (when still available) followed by the replies, most recent first."),
		mcplib.WithString("root_id",
			mcplib.Description("ID of the root post of the thread."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handle(ToolThread, (*Dispatcher).thread)}
}

func (d *Dispatcher) thread(ctx context.Context, req mcplib.CallToolRequest) *mcplib.CallToolResult {
	if !d.conn.Authenticated() {
		return resultErr(errUnauthenticated)
	}
	rootID, ok := stringArg(req, "root_id")
	if !ok || rootID == "" {
		return resultErr(errors.New("thread: root_id is required"))
	}

	posts, err := d.client.Thread(ctx, d.conn.Credential, rootID, xapi.ThreadOptions{Pages: threadPages})
	if err != nil {
		return resultErr(fmt.Errorf("thread: %w", err))
	}

	res, err := resultJSON(postsPayload{Posts: posts, Count: len(posts)})
	if err != nil {
		return resultErr(fmt.Errorf("thread: serialise: %w", err))
	}
	return res
}

// ─── get_post ─────────────────────────────────────────────────────────────────

func (s *Server) toolGetPost() mcpsrv.ServerTool {
	tool := mcplib.NewTool(ToolGetPost,
		mcplib.WithDescription("Fetch a single post by ID. Returns a null post (not an error) when it does not exist."),
		mcplib.WithString("id",
			mcplib.Description("ID of the post."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handle(ToolGetPost, (*Dispatcher).getPost)}
}

// postPayload is the result payload of get_post.  Post is null when the
// upstream has no record.
type postPayload struct {
	Post *xapi.Post `json:"post"`
}

func (d *Dispatcher) getPost(ctx context.Context, req mcplib.CallToolRequest) *mcplib.CallToolResult {
	if !d.conn.Authenticated() {
		return resultErr(errUnauthenticated)
	}
	id, ok := stringArg(req, "id")
	if !ok || id == "" {
		return resultErr(errors.New("get_post: id is required"))
	}

	post, err := d.client.Post(ctx, d.conn.Credential, id)
	if err != nil {
		return resultErr(fmt.Errorf("get_post: %w", err))
	}

	res, err := resultJSON(postPayload{Post: post})
	if err != nil {
		return resultErr(fmt.Errorf("get_post: serialise: %w", err))
	}
	return res
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// resultErr wraps an error in a CallToolResult with IsError=true.  Errors
// never propagate past the dispatcher to the transport layer.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns it as a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument.  The protocol serialises numbers as
// float64, so convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}
