package xapi

import (
	"context"
	"net/url"
	"strconv"
)

// Sort orders accepted by the upstream search endpoint.
const (
	OrderRelevance = "relevancy"
	OrderRecency   = "recency"
)

const (
	minPerPage = 10
	maxPerPage = 100
)

// tweetFields and friends list the raw fields requested on every call that
// returns posts; they must cover everything normalizePost consumes.
const (
	tweetFields = "created_at,public_metrics,conversation_id,entities,author_id"
	userFields  = "username,name,description,public_metrics,created_at,verified"
	expansions  = "author_id"
)

// SearchOptions control a recent-search call.
type SearchOptions struct {
	// MaxPerPage is clamped to [10, 100]; zero means 100.
	MaxPerPage int
	// Pages is the maximum number of pages to fetch; zero or negative
	// means 1.
	Pages int
	// Order is OrderRelevance or OrderRecency; empty means OrderRelevance.
	Order string
	// Since optionally restricts results to posts after a point in time.
	// Accepts relative shorthand ("30m", "2h", "7d") or an absolute RFC3339
	// timestamp.  Unparseable values are ignored: no time filter applies.
	Since string
}

func (o *SearchOptions) perPage() int {
	switch {
	case o.MaxPerPage <= 0:
		return maxPerPage
	case o.MaxPerPage < minPerPage:
		return minPerPage
	case o.MaxPerPage > maxPerPage:
		return maxPerPage
	}
	return o.MaxPerPage
}

func (o *SearchOptions) pages() int {
	if o.Pages < 1 {
		return 1
	}
	return o.Pages
}

func (o *SearchOptions) order() string {
	if o.Order == "" {
		return OrderRelevance
	}
	return o.Order
}

// Search runs the recent-search endpoint for query, following continuation
// tokens for up to the requested number of pages.  Pages are fetched strictly
// sequentially with the configured inter-page pacing.  Results preserve
// upstream order: no dedupe, no re-sort at this layer.
func (c *Client) Search(ctx context.Context, credential, query string, opts SearchOptions) ([]Post, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(opts.perPage()))
	q.Set("sort_order", opts.order())
	q.Set("tweet.fields", tweetFields)
	q.Set("user.fields", userFields)
	q.Set("expansions", expansions)
	if start, ok := ParseSince(opts.Since); ok {
		q.Set("start_time", start)
	}

	var posts []Post
	for page := 0; page < opts.pages(); page++ {
		if err := c.pages.Wait(ctx); err != nil {
			return nil, err
		}
		var sr searchResponse
		if err := c.get(ctx, credential, "/tweets/search/recent?"+q.Encode(), &sr); err != nil {
			return nil, err
		}
		authors := userIndex(sr.Includes.Users)
		for _, t := range sr.Data {
			posts = append(posts, normalizePost(t, authors))
		}
		c.logger.DebugContext(ctx, "search page fetched",
			"page", page+1, "results", len(sr.Data), "next", sr.Meta.NextToken != "")
		if sr.Meta.NextToken == "" {
			break
		}
		q.Set("next_token", sr.Meta.NextToken)
	}
	return posts, nil
}
