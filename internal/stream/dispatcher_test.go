package stream

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func testEvent(reviewID, commentID int64, text string) CommentEvent {
	return CommentEvent{
		ID:        commentID,
		ReviewID:  reviewID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Author:    Author{ID: 1, Username: "alice"},
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)

	subs := []*Subscriber{NewSubscriber(4), NewSubscriber(4), NewSubscriber(4)}
	for _, sub := range subs {
		r.Subscribe(42, sub)
	}

	d.Publish(testEvent(42, 9, "great product"))

	for i, sub := range subs {
		select {
		case frame := <-sub.Events():
			if !strings.Contains(string(frame), "great product") {
				t.Fatalf("subscriber %d got wrong frame: %s", i, frame)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishScopedToResource(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)

	watcher := NewSubscriber(4)
	bystander := NewSubscriber(4)
	r.Subscribe(42, watcher)
	r.Subscribe(7, bystander)

	d.Publish(testEvent(42, 1, "hello"))

	select {
	case <-watcher.Events():
	case <-time.After(time.Second):
		t.Fatalf("watcher received nothing")
	}
	select {
	case frame := <-bystander.Events():
		t.Fatalf("bystander should receive nothing, got %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishToEmptyResourceIsNoop(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)
	// zero subscribers is success, not failure
	d.Publish(testEvent(99, 1, "nobody listening"))
}

func TestPublishDropsDeadHandlesAndDeliversToRest(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)

	const k, m = 5, 2
	healthy := make([]*Subscriber, 0, k-m)
	for i := 0; i < k-m; i++ {
		sub := NewSubscriber(4)
		r.Subscribe(3, sub)
		healthy = append(healthy, sub)
	}
	// full buffers simulate write failure
	for i := 0; i < m; i++ {
		sub := NewSubscriber(1)
		sub.ch <- []byte("stuck")
		r.Subscribe(3, sub)
	}

	d.Publish(testEvent(3, 1, "fan out"))

	for i, sub := range healthy {
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("healthy subscriber %d received nothing", i)
		}
	}

	// failed handles are unsubscribed asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for r.Count(3) != k-m {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d survivors, got %d", k-m, r.Count(3))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishPreservesPerResourceOrder(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)

	sub := NewSubscriber(64)
	r.Subscribe(42, sub)

	const n = 20
	for i := 1; i <= n; i++ {
		d.Publish(testEvent(42, int64(i), "msg"))
	}

	for i := 1; i <= n; i++ {
		select {
		case frame := <-sub.Events():
			var ev CommentEvent
			if err := json.Unmarshal(frame, &ev); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			if ev.ID != int64(i) {
				t.Fatalf("expected comment %d at position %d, got %d", i, i, ev.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing frame %d", i)
		}
	}
}

func TestPublishAfterUnsubscribeIsNoop(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil)

	sub := NewSubscriber(4)
	r.Subscribe(42, sub)
	r.Unsubscribe(42, sub)

	// racing write against a removed handle must not panic
	d.Publish(testEvent(42, 1, "late"))
}
