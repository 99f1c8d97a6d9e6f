package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcaster Metrics
var (
	// SubscribersConnected tracks subscribers currently in the registry
	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "craftlist_subscribers_connected",
			Help: "Number of event-stream subscribers in the registry",
		},
	)

	// BroadcastsTotal counts broadcast calls by event tag
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftlist_broadcasts_total",
			Help: "Total broadcast calls by event",
		},
		[]string{"event"},
	)

	// SendFailuresTotal counts failed subscriber sends by frame kind (data/ping)
	SendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftlist_subscriber_send_failures_total",
			Help: "Total failed sends to subscribers by frame kind",
		},
		[]string{"kind"},
	)

	// SubscribersPrunedTotal counts subscribers removed by the liveness probe
	SubscribersPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "craftlist_subscribers_pruned_total",
			Help: "Total subscribers removed by the liveness probe",
		},
	)
)

// Poll Task Metrics
var (
	// PollRoundsTotal counts poll rounds by task and outcome
	PollRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftlist_poll_rounds_total",
			Help: "Total poll rounds by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	// PollFetchDuration tracks fetch latency in seconds
	PollFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "craftlist_poll_fetch_duration_seconds",
			Help:    "Poll task fetch duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"task"},
	)
)

// HTTP Metrics
var (
	// HTTPRequestsTotal counts requests by route pattern, method and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftlist_http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
)
