package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_api_requests_total",
			Help: "Total requests made to the remote API",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buddy_api_request_duration_seconds",
			Help:    "Remote API request duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Real-time channel metrics
	ChannelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_channel_events_total",
			Help: "Total channel events",
		},
		[]string{"direction", "event"}, // "in" or "out"
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buddy_channel_reconnects_total",
			Help: "Total channel reconnect attempts",
		},
	)

	ChannelDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_channel_dropped_total",
			Help: "Outbound events dropped while disconnected",
		},
		[]string{"event"},
	)

	ChannelConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buddy_channel_connected",
			Help: "1 while the real-time channel is connected",
		},
	)

	// Chat state metrics
	UnreadMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buddy_unread_messages",
			Help: "Sum of unread counters across all previews",
		},
	)

	// Local state API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_http_requests_total",
			Help: "Total local state API requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buddy_http_request_duration_seconds",
			Help:    "Local state API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
