package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the request counters.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeUnavailable   = "unavailable"
	OutcomeUpstreamError = "upstream_error"
)

// Metrics holds the collectors updated by the request handlers.
type Metrics struct {
	Registrations    *prometheus.CounterVec
	Broadcasts       *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	PrunedTokens     prometheus.Counter
	UpstreamDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Token registration requests by outcome.",
		}, []string{"outcome"}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast requests by outcome.",
		}, []string{"outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery results reported by the push gateway.",
		}, []string{"result", "code"}),
		PrunedTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_tokens_total",
			Help:      "Registrations removed because their token was unregistered.",
		}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of document store and push gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}
