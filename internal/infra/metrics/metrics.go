// Package metrics exposes answer pipeline measurements to Prometheus.
package metrics

import (
	"time"

	"programme-qa/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "programme_qa"

// Collector implements usecase.Metrics.
type Collector struct {
	outcomes          *prometheus.CounterVec
	prefilterRejects  prometheus.Counter
	guardTrips        *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	retrievedDocs     prometheus.Histogram
	usableDocs        prometheus.Histogram
}

var _ usecase.Metrics = (*Collector)(nil)

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	docBuckets := []float64{0, 1, 2, 3, 5, 8, 13, 20}
	return &Collector{
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Answer requests by terminal outcome",
			},
			[]string{"outcome"},
		),
		prefilterRejects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prefilter_rejections_total",
				Help:      "Questions rejected by the scope pre-filter",
			},
		),
		guardTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_trips_total",
				Help:      "Streams cut by the inline guard, by reason",
			},
			[]string{"reason"},
		),
		retrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Duration of vector search calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		retrievedDocs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieved_documents",
				Help:      "Documents returned by vector search",
				Buckets:   docBuckets,
			},
		),
		usableDocs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "usable_documents",
				Help:      "Documents above the relevance threshold",
				Buckets:   docBuckets,
			},
		),
	}
}

func (c *Collector) ObserveOutcome(outcome usecase.Outcome) {
	c.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (c *Collector) ObservePrefilterRejection() {
	c.prefilterRejects.Inc()
}

func (c *Collector) ObserveGuardTrip(reason string) {
	c.guardTrips.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveRetrieval(elapsed time.Duration, retrieved, usable int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.retrievalDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	c.retrievedDocs.Observe(float64(retrieved))
	c.usableDocs.Observe(float64(usable))
}
