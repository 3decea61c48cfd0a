package stream

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber is one live client connection watching a review's comment stream.
// Frames are delivered over a buffered channel; a subscriber whose buffer is
// full is considered dead and gets dropped by the dispatcher.
type Subscriber struct {
	id     string
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{id: uuid.NewString(), ch: make(chan []byte, buffer)}
}

func (s *Subscriber) ID() string { return s.id }

// Events is the receive side consumed by the stream endpoint. The channel is
// closed when the subscriber is removed from the registry.
func (s *Subscriber) Events() <-chan []byte { return s.ch }

// deliver attempts a non-blocking write. It reports false when the subscriber
// is gone or its buffer is full; writes after close are no-ops.
func (s *Subscriber) deliver(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Registry maps review ids to their live subscriber sets. It is an explicit
// dependency of the stream endpoint and the dispatcher, never package state.
// A coarse RWMutex guards the map; fan-out never writes under it (the
// dispatcher snapshots first).
type Registry struct {
	mu   sync.RWMutex
	subs map[int64][]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[int64][]*Subscriber)}
}

// Subscribe files the handle under the review id, creating the entry if
// absent, and returns the subscription token.
func (r *Registry) Subscribe(reviewID int64, sub *Subscriber) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[reviewID] = append(r.subs[reviewID], sub)
	subscribersGauge.Inc()
	return sub.ID()
}

// Unsubscribe removes the handle and closes it. Idempotent: racing a
// disconnect against a dispatcher-triggered drop is safe, and unknown review
// ids are a no-op.
func (r *Registry) Unsubscribe(reviewID int64, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.subs[reviewID]
	if !ok {
		return
	}
	removed := false
	for i, existing := range entry {
		if existing == sub {
			entry[i] = entry[len(entry)-1]
			entry = entry[:len(entry)-1]
			subscribersGauge.Dec()
			removed = true
			break
		}
	}
	if !removed {
		// handle is filed under a different review; leave it alone
		return
	}
	if len(entry) == 0 {
		// last subscriber left, drop the entry so dead review keys
		// never accumulate
		delete(r.subs, reviewID)
	} else {
		r.subs[reviewID] = entry
	}
	sub.close()
}

// Snapshot returns a copy of the current subscriber set, safe to iterate
// while concurrent subscribes and unsubscribes proceed.
func (r *Registry) Snapshot(reviewID int64) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry := r.subs[reviewID]
	if len(entry) == 0 {
		return nil
	}
	out := make([]*Subscriber, len(entry))
	copy(out, entry)
	return out
}

// Count reports the live subscriber count for a review.
func (r *Registry) Count(reviewID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[reviewID])
}
