package xapi

import (
	"context"
	"fmt"
	"net/url"
)

// ThreadOptions control thread retrieval.
type ThreadOptions struct {
	// Pages bounds the reply search; zero means 2.
	Pages int
}

func (o *ThreadOptions) pages() int {
	if o.Pages < 1 {
		return 2
	}
	return o.Pages
}

// ProfileOptions control profile retrieval.
type ProfileOptions struct {
	// Count is the number of posts to request; clamped to [10, 100], zero
	// means 100.
	Count int
	// IncludeReplies keeps the account's replies in the result.
	IncludeReplies bool
}

// Post looks up a single post by id.  A missing post is not an error: both
// return values are nil.
func (c *Client) Post(ctx context.Context, credential, id string) (*Post, error) {
	q := url.Values{}
	q.Set("tweet.fields", tweetFields)
	q.Set("user.fields", userFields)
	q.Set("expansions", expansions)

	var tr tweetResponse
	if err := c.get(ctx, credential, "/tweets/"+url.PathEscape(id)+"?"+q.Encode(), &tr); err != nil {
		return nil, err
	}
	if tr.Data == nil {
		return nil, nil
	}
	p := normalizePost(*tr.Data, userIndex(tr.Includes.Users))
	return &p, nil
}

// User resolves an account by handle.  Returns ErrNotFound when the upstream
// has no such account.
func (c *Client) User(ctx context.Context, credential, handle string) (*User, error) {
	q := url.Values{}
	q.Set("user.fields", userFields)

	var ur userResponse
	if err := c.get(ctx, credential, "/users/by/username/"+url.PathEscape(handle)+"?"+q.Encode(), &ur); err != nil {
		return nil, err
	}
	if ur.Data == nil {
		return nil, fmt.Errorf("user %q: %w", handle, ErrNotFound)
	}
	u := normalizeUser(*ur.Data)
	return &u, nil
}

// Profile resolves the account for handle and fetches its recent original
// posts (retweets always excluded, replies excluded unless requested), most
// recent first.
func (c *Client) Profile(ctx context.Context, credential, handle string, opts ProfileOptions) (*User, []Post, error) {
	user, err := c.User(ctx, credential, handle)
	if err != nil {
		return nil, nil, err
	}

	query := fmt.Sprintf("from:%s -is:retweet", user.Handle)
	if !opts.IncludeReplies {
		query += " -is:reply"
	}
	posts, err := c.Search(ctx, credential, query, SearchOptions{
		MaxPerPage: opts.Count,
		Pages:      1,
		Order:      OrderRecency,
	})
	if err != nil {
		return nil, nil, err
	}
	return user, posts, nil
}

// Thread fetches all posts in the conversation rooted at rootID, most recent
// first, and prepends the root post itself on a best-effort basis.  A failed
// root fetch (e.g. the post was deleted) is swallowed: the reply set is still
// returned.
func (c *Client) Thread(ctx context.Context, credential, rootID string, opts ThreadOptions) ([]Post, error) {
	replies, err := c.Search(ctx, credential, "conversation_id:"+rootID, SearchOptions{
		Pages: opts.pages(),
		Order: OrderRecency,
	})
	if err != nil {
		return nil, err
	}

	root, err := c.Post(ctx, credential, rootID)
	if err != nil {
		c.logger.DebugContext(ctx, "thread root fetch failed, returning replies only",
			"root_id", rootID, "error", err)
		return replies, nil
	}
	if root == nil {
		return replies, nil
	}
	// The root carries its own conversation_id, so the reply search may have
	// returned it already.  Dedupe keeps the prepended copy.
	return Dedupe(append([]Post{*root}, replies...)), nil
}
