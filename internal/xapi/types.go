package xapi

import (
	"fmt"
	"time"
)

// Metrics holds the engagement counters of a single post.
type Metrics struct {
	Likes       int `json:"likes"`
	Reposts     int `json:"reposts"`
	Replies     int `json:"replies"`
	Quotes      int `json:"quotes"`
	Impressions int `json:"impressions"`
	Bookmarks   int `json:"bookmarks"`
}

// Post is the normalized domain record for a single post, derived from the
// raw upstream payload joined with its author record.  Immutable once
// constructed.
type Post struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorHandle   string    `json:"author_handle,omitempty"`
	AuthorName     string    `json:"author_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Metrics        Metrics   `json:"metrics"`
	URLs           []string  `json:"urls,omitempty"`
	Mentions       []string  `json:"mentions,omitempty"`
	Hashtags       []string  `json:"hashtags,omitempty"`
	URL            string    `json:"url"`
}

// User is an account profile as returned by the user lookup endpoint.
type User struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	PostCount int       `json:"post_count"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Verified  bool      `json:"verified,omitempty"`
}

// ─── raw wire types (upstream v2 schema) ──────────────────────────────────────

type rawTweet struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	AuthorID       string     `json:"author_id"`
	ConversationID string     `json:"conversation_id"`
	CreatedAt      string     `json:"created_at"`
	PublicMetrics  rawMetrics `json:"public_metrics"`
	Entities       *struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
			URL         string `json:"url"`
		} `json:"urls"`
		Mentions []struct {
			Username string `json:"username"`
		} `json:"mentions"`
		Hashtags []struct {
			Tag string `json:"tag"`
		} `json:"hashtags"`
	} `json:"entities"`
}

type rawMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	QuoteCount      int `json:"quote_count"`
	ImpressionCount int `json:"impression_count"`
	BookmarkCount   int `json:"bookmark_count"`
}

type rawUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	CreatedAt     string `json:"created_at"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
	} `json:"public_metrics"`
}

type rawIncludes struct {
	Users []rawUser `json:"users"`
}

type searchResponse struct {
	Data     []rawTweet  `json:"data"`
	Includes rawIncludes `json:"includes"`
	Meta     struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type tweetResponse struct {
	Data     *rawTweet   `json:"data"`
	Includes rawIncludes `json:"includes"`
}

type userResponse struct {
	Data   *rawUser `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// ─── normalization ────────────────────────────────────────────────────────────

// userIndex maps author IDs to their user records from the includes section.
func userIndex(users []rawUser) map[string]rawUser {
	idx := make(map[string]rawUser, len(users))
	for _, u := range users {
		idx[u.ID] = u
	}
	return idx
}

// normalizePost converts a raw tweet plus its (possibly absent) author record
// into the domain Post.
func normalizePost(t rawTweet, authors map[string]rawUser) Post {
	p := Post{
		ID:             t.ID,
		Text:           t.Text,
		AuthorID:       t.AuthorID,
		ConversationID: t.ConversationID,
		Metrics: Metrics{
			Likes:       t.PublicMetrics.LikeCount,
			Reposts:     t.PublicMetrics.RetweetCount,
			Replies:     t.PublicMetrics.ReplyCount,
			Quotes:      t.PublicMetrics.QuoteCount,
			Impressions: t.PublicMetrics.ImpressionCount,
			Bookmarks:   t.PublicMetrics.BookmarkCount,
		},
	}
	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		p.CreatedAt = ts
	}
	if a, ok := authors[t.AuthorID]; ok {
		p.AuthorHandle = a.Username
		p.AuthorName = a.Name
	}
	if t.Entities != nil {
		for _, u := range t.Entities.URLs {
			if u.ExpandedURL != "" {
				p.URLs = append(p.URLs, u.ExpandedURL)
			} else {
				p.URLs = append(p.URLs, u.URL)
			}
		}
		for _, m := range t.Entities.Mentions {
			p.Mentions = append(p.Mentions, m.Username)
		}
		for _, h := range t.Entities.Hashtags {
			p.Hashtags = append(p.Hashtags, h.Tag)
		}
	}
	p.URL = canonicalURL(p.AuthorHandle, p.ID)
	return p
}

// canonicalURL builds the public web URL of a post.  The "i" placeholder is
// what the web client itself uses when the handle is unknown.
func canonicalURL(handle, id string) string {
	if handle == "" {
		handle = "i"
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", handle, id)
}

func normalizeUser(u rawUser) User {
	usr := User{
		ID:        u.ID,
		Handle:    u.Username,
		Name:      u.Name,
		Bio:       u.Description,
		Followers: u.PublicMetrics.FollowersCount,
		Following: u.PublicMetrics.FollowingCount,
		PostCount: u.PublicMetrics.TweetCount,
		Verified:  u.Verified,
	}
	if ts, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
		usr.CreatedAt = ts
	}
	return usr
}
