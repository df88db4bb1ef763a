package mcp

// In this file: tool handler tests, including the end-to-end scenarios for
// registration, filtered search, missing posts and upstream rate limits.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdsight/birdsight/internal/xapi"
)

// toolReq builds a CallToolRequest with the given argument map.
func toolReq(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// firstText returns the text of the first TextContent in the result.
func firstText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Content, "result has no content")
	txt, ok := r.Content[0].(mcplib.TextContent)
	require.True(t, ok, "first content item is not TextContent")
	return txt.Text
}

// decodePayload unmarshals the result's first text content into out.
func decodePayload(t *testing.T, r *mcplib.CallToolResult, out any) {
	t.Helper()
	require.False(t, r.IsError, "unexpected error result: %s", firstText(t, r))
	require.NoError(t, json.Unmarshal([]byte(firstText(t, r)), out))
}

// postsJSON renders an upstream search response with one post per element of
// likes, ids "p0", "p1", ...
func postsJSON(likes ...int) string {
	data := make([]string, len(likes))
	for i, l := range likes {
		data[i] = fmt.Sprintf(`{"id": "p%d", "text": "post %d", "author_id": "u1",
			"created_at": "2026-05-01T10:00:00Z",
			"public_metrics": {"like_count": %d, "impression_count": %d}}`, i, i, l, l*10)
	}
	out := `{"data": [`
	for i, d := range data {
		if i > 0 {
			out += ","
		}
		out += d
	}
	return out + `], "includes": {"users": [{"id": "u1", "username": "alice", "name": "Alice"}]}, "meta": {}}`
}

// authedDispatcher registers a credential in the store and resolves a
// dispatcher bound to it.
func authedDispatcher(t *testing.T, env *testEnv) *Dispatcher {
	t.Helper()
	id, err := env.store.CreateSession(context.Background(), "tok")
	require.NoError(t, err)
	d, err := env.srv.resolve(ctxWith(id, ""))
	require.NoError(t, err)
	return d
}

func anonDispatcher(t *testing.T, env *testEnv) *Dispatcher {
	t.Helper()
	d, err := env.srv.resolve(context.Background())
	require.NoError(t, err)
	return d
}

// ─── register_credential ──────────────────────────────────────────────────────

func TestRegisterCredential_blank(t *testing.T) {
	// Scenario A: blank credential is an invalid argument.
	env := newTestEnv(t)
	d := anonDispatcher(t, env)

	for _, cred := range []string{"", "   ", "\t\n"} {
		res := d.registerCredential(context.Background(), toolReq(map[string]any{"credential": cred}))
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "blank")
	}
}

func TestRegisterCredential_success(t *testing.T) {
	// Scenario B: valid token yields a UUID session and a matching mcp_url.
	env := newTestEnv(t)
	d := anonDispatcher(t, env)

	res := d.registerCredential(context.Background(), toolReq(map[string]any{"credential": "validtoken123"}))

	var payload registerPayload
	decodePayload(t, res, &payload)
	assert.True(t, payload.Success)
	_, err := uuid.Parse(payload.SessionID)
	assert.NoError(t, err, "session id must be UUID shaped")
	assert.Equal(t, testBaseURL+"/mcp?session_id="+payload.SessionID, payload.MCPURL)
	assert.NotEmpty(t, payload.Message)
	assert.NotEmpty(t, payload.Instructions)

	cred, err := env.store.Credential(context.Background(), payload.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "validtoken123", cred)
}

func TestRegisterCredential_eachCallCreatesNewSession(t *testing.T) {
	env := newTestEnv(t)
	d := anonDispatcher(t, env)

	var p1, p2 registerPayload
	decodePayload(t, d.registerCredential(context.Background(), toolReq(map[string]any{"credential": "tok"})), &p1)
	decodePayload(t, d.registerCredential(context.Background(), toolReq(map[string]any{"credential": "tok"})), &p2)
	assert.NotEqual(t, p1.SessionID, p2.SessionID)
}

func TestRegisterCredential_availableOnAuthenticatedConnection(t *testing.T) {
	env := newTestEnv(t)
	d := authedDispatcher(t, env)

	res := d.registerCredential(context.Background(), toolReq(map[string]any{"credential": "another"}))
	assert.False(t, res.IsError)
}

// ─── unauthenticated access ───────────────────────────────────────────────────

func TestDataTools_unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	d := anonDispatcher(t, env)
	ctx := context.Background()

	calls := map[string]*mcplib.CallToolResult{
		ToolSearch:  d.search(ctx, toolReq(map[string]any{"query": "q"})),
		ToolProfile: d.profile(ctx, toolReq(map[string]any{"handle": "alice"})),
		ToolThread:  d.thread(ctx, toolReq(map[string]any{"root_id": "1"})),
		ToolGetPost: d.getPost(ctx, toolReq(map[string]any{"id": "1"})),
	}
	for name, res := range calls {
		assert.True(t, res.IsError, "%s must fail without a credential", name)
		assert.Contains(t, firstText(t, res), "credential", name)
	}
}

// ─── search ───────────────────────────────────────────────────────────────────

func TestSearch_minLikesFilterAndSort(t *testing.T) {
	// Scenario C: likes [10, 600, 900], min_likes 500 => [900, 600].
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postsJSON(10, 600, 900))
	}
	d := authedDispatcher(t, env)

	res := d.search(context.Background(), toolReq(map[string]any{
		"query":     "$BTC",
		"sort":      "likes",
		"min_likes": float64(500),
	}))

	var payload postsPayload
	decodePayload(t, res, &payload)
	require.Equal(t, 2, payload.Count)
	assert.Equal(t, 900, payload.Posts[0].Metrics.Likes)
	assert.Equal(t, 600, payload.Posts[1].Metrics.Likes)
}

func TestSearch_validation(t *testing.T) {
	env := newTestEnv(t)
	d := authedDispatcher(t, env)
	ctx := context.Background()

	t.Run("missing query", func(t *testing.T) {
		res := d.search(ctx, toolReq(nil))
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "query is required")
	})
	t.Run("unknown sort", func(t *testing.T) {
		res := d.search(ctx, toolReq(map[string]any{"query": "q", "sort": "banana"}))
		assert.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "unknown sort")
	})
}

func TestSearch_sortModes(t *testing.T) {
	env := newTestEnv(t)
	var gotOrder string
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		gotOrder = r.URL.Query().Get("sort_order")
		fmt.Fprint(w, postsJSON(1, 3, 2))
	}
	d := authedDispatcher(t, env)
	ctx := context.Background()

	t.Run("default sorts by likes via relevance fetch", func(t *testing.T) {
		var payload postsPayload
		decodePayload(t, d.search(ctx, toolReq(map[string]any{"query": "q"})), &payload)
		assert.Equal(t, xapi.OrderRelevance, gotOrder)
		assert.Equal(t, []int{3, 2, 1}, likesOf(payload.Posts))
	})
	t.Run("recent keeps upstream order", func(t *testing.T) {
		var payload postsPayload
		decodePayload(t, d.search(ctx, toolReq(map[string]any{"query": "q", "sort": "recent"})), &payload)
		assert.Equal(t, xapi.OrderRecency, gotOrder)
		assert.Equal(t, []int{1, 3, 2}, likesOf(payload.Posts))
	})
	t.Run("impressions", func(t *testing.T) {
		var payload postsPayload
		decodePayload(t, d.search(ctx, toolReq(map[string]any{"query": "q", "sort": "impressions"})), &payload)
		assert.Equal(t, []int{3, 2, 1}, likesOf(payload.Posts))
	})
}

func likesOf(posts []xapi.Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.Metrics.Likes
	}
	return out
}

func TestSearch_limitTruncatesAfterSort(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postsJSON(5, 50, 500, 1, 100))
	}
	d := authedDispatcher(t, env)

	var payload postsPayload
	decodePayload(t, d.search(context.Background(), toolReq(map[string]any{
		"query": "q",
		"limit": float64(2),
	})), &payload)

	// top two by likes over the full fetched set, not the first two fetched
	assert.Equal(t, []int{500, 100}, likesOf(payload.Posts))
	assert.Equal(t, 2, payload.Count)
}

func TestSearch_dedupesAcrossPages(t *testing.T) {
	env := newTestEnv(t)
	page := 0
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			// same ids appear again on the second page
			fmt.Fprint(w, `{"data": [{"id": "x", "text": "t", "author_id": "u1", "public_metrics": {"like_count": 5}}], "meta": {"next_token": "n"}}`)
			return
		}
		fmt.Fprint(w, `{"data": [{"id": "x", "text": "t", "author_id": "u1", "public_metrics": {"like_count": 5}}], "meta": {}}`)
	}
	d := authedDispatcher(t, env)

	var payload postsPayload
	decodePayload(t, d.search(context.Background(), toolReq(map[string]any{
		"query": "q",
		"pages": float64(2),
	})), &payload)
	assert.Equal(t, 1, payload.Count, "duplicate ids across pages must collapse")
}

func TestSearch_rateLimited(t *testing.T) {
	// Scenario E: upstream 429 with reset 30s out surfaces the wait time.
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(30*time.Second).Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}
	d := authedDispatcher(t, env)

	res := d.search(context.Background(), toolReq(map[string]any{"query": "q"}))
	assert.True(t, res.IsError)
	msg := firstText(t, res)
	assert.Contains(t, msg, "rate limited")
	assert.Regexp(t, `retry after (29|30)`, msg)
}

func TestSearch_upstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	d := authedDispatcher(t, env)

	res := d.search(context.Background(), toolReq(map[string]any{"query": "q"}))
	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), "502")
}

// ─── profile ──────────────────────────────────────────────────────────────────

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/by/username/alice":
			fmt.Fprint(w, `{"data": {"id": "u1", "username": "alice", "name": "Alice",
				"public_metrics": {"followers_count": 10, "tweet_count": 42}}}`)
		default:
			fmt.Fprint(w, postsJSON(1, 2))
		}
	}
	d := authedDispatcher(t, env)

	res := d.profile(context.Background(), toolReq(map[string]any{"handle": "@alice"}))

	var payload profilePayload
	decodePayload(t, res, &payload)
	require.NotNil(t, payload.Account)
	assert.Equal(t, "alice", payload.Account.Handle)
	assert.Equal(t, 42, payload.Account.PostCount)
	assert.Len(t, payload.Posts, 2)
}

func TestProfile_negativeCountFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/by/username/alice":
			fmt.Fprint(w, `{"data": {"id": "u1", "username": "alice", "name": "Alice",
				"public_metrics": {}}}`)
		default:
			fmt.Fprint(w, postsJSON(1, 2))
		}
	}
	d := authedDispatcher(t, env)

	res := d.profile(context.Background(), toolReq(map[string]any{"handle": "alice", "count": float64(-1)}))

	var payload profilePayload
	decodePayload(t, res, &payload)
	assert.False(t, res.IsError)
	assert.Len(t, payload.Posts, 2)
}

func TestProfile_notFound(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors": [{"title": "Not Found Error"}]}`)
	}
	d := authedDispatcher(t, env)

	res := d.profile(context.Background(), toolReq(map[string]any{"handle": "ghost"}))
	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), "no account")
}

func TestProfile_missingHandle(t *testing.T) {
	env := newTestEnv(t)
	d := authedDispatcher(t, env)

	res := d.profile(context.Background(), toolReq(nil))
	assert.True(t, res.IsError)
	assert.Contains(t, firstText(t, res), "handle is required")
}

// ─── thread ───────────────────────────────────────────────────────────────────

func TestThread(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tweets/100":
			fmt.Fprint(w, `{"data": {"id": "100", "text": "root", "author_id": "u1", "public_metrics": {}}}`)
		default:
			assert.Equal(t, "conversation_id:100", r.URL.Query().Get("query"))
			fmt.Fprint(w, postsJSON(1, 2))
		}
	}
	d := authedDispatcher(t, env)

	res := d.thread(context.Background(), toolReq(map[string]any{"root_id": "100"}))

	var payload postsPayload
	decodePayload(t, res, &payload)
	require.Equal(t, 3, payload.Count)
	assert.Equal(t, "100", payload.Posts[0].ID, "root post is prepended")
}

func TestThread_rootGoneStillReturnsReplies(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tweets/100":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, postsJSON(1, 2))
		}
	}
	d := authedDispatcher(t, env)

	res := d.thread(context.Background(), toolReq(map[string]any{"root_id": "100"}))

	var payload postsPayload
	decodePayload(t, res, &payload)
	assert.Equal(t, 2, payload.Count)
}

// ─── get_post ─────────────────────────────────────────────────────────────────

func TestGetPost_missing(t *testing.T) {
	// Scenario D: a missing post is a null payload, not an error.
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors": [{"title": "Not Found Error"}]}`)
	}
	d := authedDispatcher(t, env)

	res := d.getPost(context.Background(), toolReq(map[string]any{"id": "999"}))
	require.False(t, res.IsError)

	var payload postPayload
	decodePayload(t, res, &payload)
	assert.Nil(t, payload.Post)
}

func TestGetPost_found(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"id": "42", "text": "hello", "author_id": "u1", "public_metrics": {"like_count": 3}},
			"includes": {"users": [{"id": "u1", "username": "alice", "name": "Alice"}]}}`)
	}
	d := authedDispatcher(t, env)

	res := d.getPost(context.Background(), toolReq(map[string]any{"id": "42"}))

	var payload postPayload
	decodePayload(t, res, &payload)
	require.NotNil(t, payload.Post)
	assert.Equal(t, "42", payload.Post.ID)
	assert.Equal(t, "https://x.com/alice/status/42", payload.Post.URL)
}

// ─── interaction mirroring via the handler wrapper ────────────────────────────

func TestHandle_mirrorsInteractions(t *testing.T) {
	env := newTestEnv(t)
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postsJSON(7))
	}
	id, err := env.store.CreateSession(context.Background(), "tok")
	require.NoError(t, err)

	h := env.srv.handle(ToolSearch, (*Dispatcher).search)
	res, err := h(ctxWith(id, ""), toolReq(map[string]any{"query": "$BTC"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	recs, err := env.store.Interactions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ToolSearch, recs[0].Tool)
	require.NotNil(t, recs[0].SessionID)
	assert.Equal(t, id, *recs[0].SessionID)
	assert.Contains(t, recs[0].Request, "$BTC")
	assert.Contains(t, recs[0].Response, `"count":1`)
}

func TestHandle_mirrorsFailures(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.handle(ToolSearch, (*Dispatcher).search)

	res, err := h(context.Background(), toolReq(map[string]any{"query": "q"}))
	require.NoError(t, err, "operation failures stay inside the envelope")
	assert.True(t, res.IsError)

	recs, err := env.store.Interactions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].SessionID)
}

func TestHandle_redactsCredentialInLog(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.handle(ToolRegisterCredential, (*Dispatcher).registerCredential)

	res, err := h(context.Background(), toolReq(map[string]any{"credential": "super-secret-token"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	recs, err := env.store.Interactions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, recs[0].Request, "super-secret-token")
	assert.Contains(t, recs[0].Request, "[redacted]")
}

func TestHandle_unknownSessionIsConnectionLevelFailure(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.handle(ToolSearch, (*Dispatcher).search)

	_, err := h(ctxWith("missing-session", ""), toolReq(map[string]any{"query": "q"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
