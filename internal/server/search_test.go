package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/store"
)

func newSearchHandler(t *testing.T) *SearchHandler {
	t.Helper()
	ix, err := search.NewIndexer(nil, "", nil)
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	if err := ix.IndexReview(store.ReviewDoc{ID: 1, Title: "Great toaster", Text: "toasts evenly"}); err != nil {
		t.Fatalf("IndexReview: %v", err)
	}
	if err := ix.IndexComment(store.CommentDoc{ID: 10, ReviewID: 2, Text: "a great kettle after all"}); err != nil {
		t.Fatalf("IndexComment: %v", err)
	}
	return &SearchHandler{Svc: search.NewService(ix, 3, nil)}
}

func postSearch(t *testing.T, h *SearchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.search(e.NewContext(req, rec)); err != nil {
		t.Fatalf("search handler: %v", err)
	}
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	h := newSearchHandler(t)
	rec := postSearch(t, h, `{"search":"great","limit":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var results []search.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
}

func TestSearchEndpointEmptyQuery(t *testing.T) {
	h := newSearchHandler(t)
	rec := postSearch(t, h, `{"search":"","limit":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("empty query should return an empty array, got %q", body)
	}
}
