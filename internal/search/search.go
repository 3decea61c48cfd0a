package search

import (
	"log"
	"strings"
	"sync"
)

// Service runs one relevance query across both corpora and merges the
// rankings. Stateless per request; fully parallel across callers.
type Service struct {
	reviews   *Corpus
	comments  *Corpus
	overFetch int
	logger    *log.Logger
}

func NewService(ix *Indexer, overFetch int, logger *log.Logger) *Service {
	if overFetch < 1 {
		overFetch = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{reviews: ix.Reviews(), comments: ix.Comments(), overFetch: overFetch, logger: logger}
}

// Search ranks both corpora concurrently and merges the results. A corpus
// that errors contributes zero hits instead of failing the query, so callers
// always get a well-formed (possibly partial) ranking.
func (s *Service) Search(query string, limit int) []Result {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []Result{}
	}
	// over-fetch each corpus so neither is starved in the merge
	per := limit * s.overFetch

	var wg sync.WaitGroup
	var reviewHits, commentHits []RankedHit
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := s.reviews.Rank(query, per)
		if err != nil {
			s.logger.Printf("review ranking failed, degrading: %v", err)
			return
		}
		reviewHits = hits
	}()
	go func() {
		defer wg.Done()
		hits, err := s.comments.Rank(query, per)
		if err != nil {
			s.logger.Printf("comment ranking failed, degrading: %v", err)
			return
		}
		commentHits = hits
	}()
	wg.Wait()

	results := Merge(map[SourceKind][]RankedHit{
		SourceReview:  reviewHits,
		SourceComment: commentHits,
	}, limit)

	// comment-derived entries surface the parent review; make sure they
	// carry its title even if the comment was indexed before the review
	for i := range results {
		if results[i].Source == SourceComment && results[i].Title == "" {
			if parent, ok := s.reviews.Meta(results[i].ReviewID); ok {
				results[i].Title = parent.Title
			}
		}
	}
	return results
}
