package stream

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Relay bridges comment events between replicas over a Redis pub/sub channel
// so a comment posted on one node reaches subscribers connected to another.
// Each relay tags outgoing envelopes with its origin id and ignores its own
// messages when they echo back; local delivery already happened in-process.
type Relay struct {
	rdb        *redis.Client
	channel    string
	origin     string
	dispatcher *Dispatcher
	logger     *log.Logger
}

type relayEnvelope struct {
	Origin string       `json:"origin"`
	Event  CommentEvent `json:"event"`
}

func NewRelay(rdb *redis.Client, channel string, dispatcher *Dispatcher, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{
		rdb:        rdb,
		channel:    channel,
		origin:     uuid.NewString(),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (r *Relay) publish(ctx context.Context, event CommentEvent) {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: event})
	if err != nil {
		r.logger.Printf("marshal relay envelope: %v", err)
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		relayPublishErrors.Inc()
		r.logger.Printf("relay publish: %v", err)
	}
}

// Run consumes the relay channel until ctx is cancelled, feeding foreign
// events into the local fan-out path.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Printf("relay decode: %v", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			frame, err := json.Marshal(env.Event)
			if err != nil {
				continue
			}
			r.dispatcher.fanOut(env.Event.ReviewID, frame)
		}
	}
}
