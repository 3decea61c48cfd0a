package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Dispatcher fans new-comment events out to every live subscriber of the
// event's review.
//
// Delivery is at-most-once per event per handle: a subscriber that
// disconnects mid-broadcast, or whose buffer is full, simply misses the event.
// There is no backlog and no replay on reconnect; clients are expected to
// reconnect and receive future events only. Publish never reports delivery
// failures to its caller.
type Dispatcher struct {
	registry *Registry
	relay    *Relay
	logger   *log.Logger

	// serializes fan-out so all subscribers of a review observe events in
	// publish order; individual writes are non-blocking channel sends, so
	// holding this across a broadcast cannot stall on a slow consumer
	mu sync.Mutex
}

func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// SetRelay attaches the optional cross-replica relay. Must be called before
// the dispatcher is shared.
func (d *Dispatcher) SetRelay(r *Relay) { d.relay = r }

// Publish delivers the event to the review's current subscribers and, when a
// relay is attached, forwards it to the other replicas. Fire and forget: a
// review with zero subscribers is a successful broadcast.
func (d *Dispatcher) Publish(event CommentEvent) {
	frame, err := json.Marshal(event)
	if err != nil {
		d.logger.Printf("marshal comment event %d: %v", event.ID, err)
		return
	}
	d.fanOut(event.ReviewID, frame)
	if d.relay != nil {
		go d.relay.publish(context.Background(), event)
	}
}

// fanOut writes the frame to a snapshot of the subscriber set. Handles that
// refuse the write are unsubscribed asynchronously; the failing handle never
// blocks delivery to the rest.
func (d *Dispatcher) fanOut(reviewID int64, frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.registry.Snapshot(reviewID) {
		if sub.deliver(frame) {
			deliveriesTotal.Inc()
			continue
		}
		deliveriesDropped.Inc()
		go d.registry.Unsubscribe(reviewID, sub)
	}
}
