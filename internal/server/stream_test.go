package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/reviewly/reviewly/internal/stream"
)

func newStreamServer(t *testing.T) (*httptest.Server, *stream.Registry, *stream.Dispatcher) {
	t.Helper()
	registry := stream.NewRegistry()
	dispatcher := stream.NewDispatcher(registry, nil)
	h := &ReviewsHandler{Registry: registry, Dispatcher: dispatcher, Buffer: 16}

	e := echo.New()
	e.GET("/api/reviews/:id/comments", h.streamComments)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, registry, dispatcher
}

func openStream(t *testing.T, srv *httptest.Server, reviewID string) (*bufio.Reader, func()) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/reviews/" + reviewID + "/comments")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	return bufio.NewReader(resp.Body), func() { resp.Body.Close() }
}

func waitForCount(t *testing.T, registry *stream.Registry, reviewID int64, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count(reviewID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber count for review %d never reached %d (is %d)", reviewID, want, registry.Count(reviewID))
}

func readFrame(t *testing.T, r *bufio.Reader) stream.CommentEvent {
	t.Helper()
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				ch <- lineResult{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				continue
			}
			ch <- lineResult{line: line}
			return
		}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read frame: %v", res.err)
		}
		if !strings.HasPrefix(res.line, "data: ") {
			t.Fatalf("malformed frame line %q", res.line)
		}
		var ev stream.CommentEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(res.line, "data: ")), &ev); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame within timeout")
	}
	return stream.CommentEvent{}
}

func TestCommentStreamDeliversPublishedEvents(t *testing.T) {
	srv, registry, dispatcher := newStreamServer(t)

	reader, closeStream := openStream(t, srv, "7")
	defer closeStream()
	waitForCount(t, registry, 7, 1)

	dispatcher.Publish(stream.CommentEvent{
		ID:       42,
		ReviewID: 7,
		Text:     "hot off the press",
		Author:   stream.Author{ID: 3, Username: "sam"},
	})

	ev := readFrame(t, reader)
	if ev.ID != 42 || ev.ReviewID != 7 || ev.Text != "hot off the press" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Author.Username != "sam" {
		t.Fatalf("unexpected author: %+v", ev.Author)
	}
}

func TestCommentStreamScopedToReview(t *testing.T) {
	srv, registry, dispatcher := newStreamServer(t)

	target, closeTarget := openStream(t, srv, "7")
	defer closeTarget()
	bystander, closeBystander := openStream(t, srv, "8")
	defer closeBystander()
	waitForCount(t, registry, 7, 1)
	waitForCount(t, registry, 8, 1)

	dispatcher.Publish(stream.CommentEvent{ID: 1, ReviewID: 7, Text: "only for seven"})
	dispatcher.Publish(stream.CommentEvent{ID: 2, ReviewID: 8, Text: "only for eight"})

	if ev := readFrame(t, target); ev.ReviewID != 7 || ev.ID != 1 {
		t.Fatalf("review 7 stream got wrong event: %+v", ev)
	}
	// the bystander's first frame must be its own event, never review 7's
	if ev := readFrame(t, bystander); ev.ReviewID != 8 || ev.ID != 2 {
		t.Fatalf("review 8 stream got wrong event: %+v", ev)
	}
}

func TestCommentStreamDisconnectUnsubscribes(t *testing.T) {
	srv, registry, _ := newStreamServer(t)

	_, closeStream := openStream(t, srv, "7")
	waitForCount(t, registry, 7, 1)

	closeStream()
	waitForCount(t, registry, 7, 0)
}
