package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewly_comment_deliveries_total",
		Help: "Comment frames successfully handed to subscriber buffers.",
	})
	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewly_comment_deliveries_dropped_total",
		Help: "Comment frames dropped because a subscriber was gone or too slow.",
	})
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewly_comment_subscribers",
		Help: "Currently registered comment stream subscribers.",
	})
	relayPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewly_comment_relay_publish_errors_total",
		Help: "Failed publishes of comment events to the Redis relay channel.",
	})
)
