package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sixwire_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sixwire_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	IdentitiesAllocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sixwire_identities_allocated_total",
			Help: "Total identities allocated with a generated code",
		},
	)

	IdentitiesReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sixwire_identities_reserved_total",
			Help: "Total identities reserved with a caller-chosen code",
		},
	)

	IdentitiesMarked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sixwire_identities_marked_total",
			Help: "Total identities marked for deletion",
		},
		[]string{"reason"}, // "inactivity", "manual" or "beacon"
	)

	IdentitiesPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sixwire_identities_purged_total",
			Help: "Total identities purged",
		},
		[]string{"reason"},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sixwire_messages_sent_total",
			Help: "Total messages accepted for relay",
		},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sixwire_messages_delivered_total",
			Help: "Total messages delivered and consumed on read",
		},
	)

	MessagesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sixwire_messages_purged_total",
			Help: "Total messages removed by identity purge cascades",
		},
	)

	// Sweep metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sixwire_sweep_duration_seconds",
			Help:    "Lifecycle sweep pass duration",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5},
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sixwire_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
