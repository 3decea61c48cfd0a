package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/reviewly/reviewly/internal/store"
)

// Indexer owns the two relevance corpora and keeps them in sync with
// Postgres: a full load at startup, incremental updates as reviews and
// comments change, and a cron-scheduled rebuild to catch anything that
// slipped through.
type Indexer struct {
	store    *store.Store
	reviews  *Corpus
	comments *Corpus
	schedule *cronexpr.Expression
	logger   *log.Logger
}

func NewIndexer(st *store.Store, rebuildCron string, logger *log.Logger) (*Indexer, error) {
	if logger == nil {
		logger = log.Default()
	}
	reviews, err := NewCorpus(SourceReview)
	if err != nil {
		return nil, fmt.Errorf("review corpus: %w", err)
	}
	comments, err := NewCorpus(SourceComment)
	if err != nil {
		return nil, fmt.Errorf("comment corpus: %w", err)
	}
	ix := &Indexer{store: st, reviews: reviews, comments: comments, logger: logger}
	if rebuildCron != "" {
		expr, err := cronexpr.Parse(rebuildCron)
		if err != nil {
			return nil, fmt.Errorf("parse rebuild cron %q: %w", rebuildCron, err)
		}
		ix.schedule = expr
	}
	return ix, nil
}

func (ix *Indexer) Reviews() *Corpus  { return ix.reviews }
func (ix *Indexer) Comments() *Corpus { return ix.comments }

// Rebuild reloads both corpora from the store.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	reviewDocs, err := ix.store.ListReviewDocs(ctx)
	if err != nil {
		return fmt.Errorf("list review docs: %w", err)
	}
	commentDocs, err := ix.store.ListCommentDocs(ctx)
	if err != nil {
		return fmt.Errorf("list comment docs: %w", err)
	}

	docs := make([]Document, 0, len(reviewDocs))
	titles := make(map[int64]string, len(reviewDocs))
	for _, d := range reviewDocs {
		titles[d.ID] = d.Title
		docs = append(docs, Document{ID: d.ID, ParentReviewID: d.ID, Title: d.Title, Text: d.Title + "\n" + d.Text})
	}
	if err := ix.reviews.Reload(docs); err != nil {
		return fmt.Errorf("reload review corpus: %w", err)
	}

	cdocs := make([]Document, 0, len(commentDocs))
	for _, d := range commentDocs {
		cdocs = append(cdocs, Document{ID: d.ID, ParentReviewID: d.ReviewID, Title: titles[d.ReviewID], Text: d.Text})
	}
	if err := ix.comments.Reload(cdocs); err != nil {
		return fmt.Errorf("reload comment corpus: %w", err)
	}
	ix.logger.Printf("index rebuilt: %d reviews, %d comments", len(docs), len(cdocs))
	return nil
}

func (ix *Indexer) IndexReview(d store.ReviewDoc) error {
	return ix.reviews.Index(Document{ID: d.ID, ParentReviewID: d.ID, Title: d.Title, Text: d.Title + "\n" + d.Text})
}

// RemoveReview drops the review document and schedules a rebuild; the
// review's comments were cascade-deleted in Postgres and a rebuild is the
// cheapest way to purge them from the comment corpus.
func (ix *Indexer) RemoveReview(id int64) error {
	if err := ix.reviews.Delete(id); err != nil {
		return err
	}
	go func() {
		if err := ix.Rebuild(context.Background()); err != nil {
			ix.logger.Printf("rebuild after review delete: %v", err)
		}
	}()
	return nil
}

func (ix *Indexer) IndexComment(d store.CommentDoc) error {
	title := ""
	if parent, ok := ix.reviews.Meta(d.ReviewID); ok {
		title = parent.Title
	}
	return ix.comments.Index(Document{ID: d.ID, ParentReviewID: d.ReviewID, Title: title, Text: d.Text})
}

// Run blocks until ctx is cancelled, rebuilding on the configured schedule.
// Returns immediately when no schedule is set.
func (ix *Indexer) Run(ctx context.Context) error {
	if ix.schedule == nil {
		return nil
	}
	for {
		next := ix.schedule.Next(time.Now())
		if next.IsZero() {
			return nil
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := ix.Rebuild(ctx); err != nil {
				ix.logger.Printf("scheduled rebuild: %v", err)
			}
		}
	}
}
