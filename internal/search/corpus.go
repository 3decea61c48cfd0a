package search

import (
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve"
)

// SourceKind names one of the independently ranked text collections.
type SourceKind string

const (
	SourceReview  SourceKind = "review"
	SourceComment SourceKind = "comment"
)

// Document is one indexable unit of a corpus. For review documents
// ParentReviewID equals ID; for comment documents it is the review the
// comment belongs to.
type Document struct {
	ID             int64
	ParentReviewID int64
	Title          string
	Text           string
}

// RankedHit is one scored match from a single corpus. Scores are
// engine-native and comparable only within one ranking run.
type RankedHit struct {
	DocumentID     int64
	Source         SourceKind
	ParentReviewID int64
	Score          float64
	Title          string
	Snippet        string
}

type indexedDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Corpus wraps an in-memory bleve index over one document collection.
// Safe for concurrent Rank/Index/Delete; Reload swaps the whole index
// atomically under the write lock.
type Corpus struct {
	kind SourceKind

	mu    sync.RWMutex
	index bleve.Index
	meta  map[int64]Document
}

func NewCorpus(kind SourceKind) (*Corpus, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Corpus{kind: kind, index: index, meta: make(map[int64]Document)}, nil
}

func (c *Corpus) Kind() SourceKind { return c.kind }

func (c *Corpus) Index(doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta[doc.ID] = doc
	return c.index.Index(strconv.FormatInt(doc.ID, 10), indexedDoc{Title: doc.Title, Text: doc.Text})
}

func (c *Corpus) Delete(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meta, id)
	return c.index.Delete(strconv.FormatInt(id, 10))
}

// Reload rebuilds the corpus from scratch and swaps it in.
func (c *Corpus) Reload(docs []Document) error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	meta := make(map[int64]Document, len(docs))
	for _, doc := range docs {
		meta[doc.ID] = doc
		if err := index.Index(strconv.FormatInt(doc.ID, 10), indexedDoc{Title: doc.Title, Text: doc.Text}); err != nil {
			return err
		}
	}
	c.mu.Lock()
	old := c.index
	c.index = index
	c.meta = meta
	c.mu.Unlock()
	_ = old.Close()
	return nil
}

// Meta returns the stored document for an id, if indexed.
func (c *Corpus) Meta(id int64) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.meta[id]
	return doc, ok
}

// Rank scores the corpus against the query, best first. An empty query
// matches nothing, never everything. limit bounds this corpus's work, not the
// merged result.
func (c *Corpus) Rank(query string, limit int) ([]RankedHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]RankedHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		doc := c.meta[id]
		out = append(out, RankedHit{
			DocumentID:     id,
			Source:         c.kind,
			ParentReviewID: doc.ParentReviewID,
			Score:          hit.Score,
			Title:          doc.Title,
			Snippet:        snippet(doc.Text),
		})
	}
	return out, nil
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	cut := 300
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
