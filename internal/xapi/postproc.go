package xapi

import "sort"

// Metric names accepted by SortByMetric.
const (
	MetricLikes       = "likes"
	MetricImpressions = "impressions"
	MetricRetweets    = "retweets"
)

// metricOf returns the value of the named metric for p.  Unknown metrics
// read as zero, which leaves the input order untouched under a stable sort.
func metricOf(p Post, metric string) int {
	switch metric {
	case MetricLikes:
		return p.Metrics.Likes
	case MetricImpressions:
		return p.Metrics.Impressions
	case MetricRetweets:
		return p.Metrics.Reposts
	}
	return 0
}

// SortByMetric returns posts stable-sorted by the named metric, descending.
// Posts with equal metric values retain their relative input order.  The
// input slice is not modified.
func SortByMetric(posts []Post, metric string) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		return metricOf(out[i], metric) > metricOf(out[j], metric)
	})
	return out
}

// EngagementFilter holds minimum thresholds; zero values mean "no threshold".
type EngagementFilter struct {
	MinLikes       int
	MinImpressions int
}

// FilterByEngagement keeps the posts meeting every supplied threshold.  With
// no thresholds set, the input is returned unchanged.
func FilterByEngagement(posts []Post, f EngagementFilter) []Post {
	if f.MinLikes <= 0 && f.MinImpressions <= 0 {
		return posts
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if f.MinLikes > 0 && p.Metrics.Likes < f.MinLikes {
			continue
		}
		if f.MinImpressions > 0 && p.Metrics.Impressions < f.MinImpressions {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Dedupe drops posts whose id has already been seen, preserving first-seen
// order.  It is idempotent.
func Dedupe(posts []Post) []Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
