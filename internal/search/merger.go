package search

import "sort"

// Result is one entry of the merged, externally consistent ranking. ReviewID
// is always the review to link to; CommentID is set when the match came from
// a comment body.
type Result struct {
	ReviewID  int64      `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Score     float64    `json:"score"`
	Source    SourceKind `json:"source"`
	CommentID int64      `json:"commentId,omitempty"`
}

// mergeOrder fixes the cross-corpus processing order so that on an exact
// score tie the direct review match wins over a comment-derived one.
var mergeOrder = []SourceKind{SourceReview, SourceComment}

// Merge combines per-corpus rankings into one bounded, deduplicated ordering.
//
// Every comment hit resolves to its parent review; a review reachable both
// directly and through a matching comment appears once, with the higher of
// the two scores. Ordering is score descending, ties broken by review id
// ascending. limit <= 0 yields an empty result.
func Merge(hitsBySource map[SourceKind][]RankedHit, limit int) []Result {
	if limit <= 0 {
		return []Result{}
	}

	best := make(map[int64]Result)
	for _, source := range mergeOrder {
		seen := make(map[int64]bool)
		for _, hit := range hitsBySource[source] {
			if seen[hit.DocumentID] {
				continue
			}
			seen[hit.DocumentID] = true

			entry := Result{
				ReviewID: hit.ParentReviewID,
				Title:    hit.Title,
				Snippet:  hit.Snippet,
				Score:    hit.Score,
				Source:   source,
			}
			if source == SourceComment {
				entry.CommentID = hit.DocumentID
			}
			// strict > keeps the earlier source on exact ties
			if cur, ok := best[entry.ReviewID]; !ok || entry.Score > cur.Score {
				best[entry.ReviewID] = entry
			}
		}
	}

	out := make([]Result, 0, len(best))
	for _, entry := range best {
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ReviewID < out[j].ReviewID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
