// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==================== HTTP METRICS ====================

	// HTTPRequestDuration tracks the duration of HTTP requests by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepulse_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestsInFlight tracks currently processing requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storepulse_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== INGEST METRICS ====================

	// BeaconsTotal counts beacons by outcome: stored, bot, excluded or error.
	BeaconsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_beacons_total",
			Help: "Total number of tracking beacons by outcome",
		},
		[]string{"outcome"},
	)

	// BotHitsTotal counts short-circuited bot beacons by bot family.
	BotHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_bot_hits_total",
			Help: "Total number of bot beacons skipped at ingest",
		},
		[]string{"bot"},
	)

	// GeoLookupsTotal counts geolocation lookups by source and outcome.
	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_geo_lookups_total",
			Help: "Total number of geolocation lookups",
		},
		[]string{"source", "outcome"},
	)

	// ==================== LIVE METRICS ====================

	// LiveSubscribers tracks connected live dashboard streams.
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storepulse_live_subscribers",
			Help: "Number of connected live activity subscribers",
		},
	)

	// BroadcastsTotal counts change notifications by delivery path.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_broadcasts_total",
			Help: "Total number of live change notifications",
		},
		[]string{"via"}, // local, redis, fallback
	)

	// DroppedSignalsTotal counts signals dropped on full subscriber buffers.
	DroppedSignalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storepulse_live_dropped_signals_total",
			Help: "Total number of live signals dropped for slow subscribers",
		},
	)

	// ==================== QUERY METRICS ====================

	// QueryDuration tracks aggregation latency per dashboard widget.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepulse_query_duration_seconds",
			Help:    "Duration of aggregation queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"widget"},
	)
)

// Beacon outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeBot      = "bot"
	OutcomeExcluded = "excluded"
	OutcomeError    = "error"
)

// RecordBeacon increments the beacon counter for outcome.
func RecordBeacon(outcome string) {
	BeaconsTotal.WithLabelValues(outcome).Inc()
}

// RecordBotHit increments the bot counter for a bot family.
func RecordBotHit(bot string) {
	BotHitsTotal.WithLabelValues(bot).Inc()
}

// RecordGeoLookup increments the geolocation counter.
func RecordGeoLookup(source, outcome string) {
	GeoLookupsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordBroadcast increments the broadcast counter for a delivery path.
func RecordBroadcast(via string) {
	BroadcastsTotal.WithLabelValues(via).Inc()
}
