// Package observability exposes Prometheus metrics for evaluation runs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-run evaluation metrics.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ExampleDone("ok", 2, false)
//	metrics.AdapterCall("scorer", time.Since(start), err)
type Metrics struct {
	// Examples counts processed examples.
	// Labels: outcome (ok|lookup|adapter|...)
	Examples *prometheus.CounterVec

	// HardExamples counts examples whose selection missed every positive image.
	HardExamples prometheus.Counter

	// EvidenceSize observes how many images were handed to the generator.
	// Buckets: 0..5, 10, 20
	EvidenceSize prometheus.Histogram

	// AdapterDuration measures backend call latency in seconds.
	// Labels: adapter (index|scorer|generator)
	AdapterDuration *prometheus.HistogramVec

	// AdapterErrors counts failed backend calls.
	// Labels: adapter
	AdapterErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Call it once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Examples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rageval_examples_total",
				Help: "Total number of examples processed by outcome",
			},
			[]string{"outcome"},
		),

		HardExamples: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rageval_hard_examples_total",
				Help: "Total number of examples whose selected images contain no ground-truth image",
			},
		),

		EvidenceSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rageval_evidence_images",
				Help:    "Number of images passed to the answer generator per example",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10, 20},
			},
		),

		AdapterDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rageval_adapter_duration_seconds",
				Help:    "Duration of index, scorer and generator calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"adapter"},
		),

		AdapterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rageval_adapter_errors_total",
				Help: "Total number of failed backend calls by adapter",
			},
			[]string{"adapter"},
		),
	}
}

// ExampleDone records the outcome of one example.
func (m *Metrics) ExampleDone(outcome string, evidence int, hard bool) {
	m.Examples.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		return
	}
	m.EvidenceSize.Observe(float64(evidence))
	if hard {
		m.HardExamples.Inc()
	}
}

// AdapterCall records one backend call.
func (m *Metrics) AdapterCall(adapter string, elapsed time.Duration, err error) {
	m.AdapterDuration.WithLabelValues(adapter).Observe(elapsed.Seconds())
	if err != nil {
		m.AdapterErrors.WithLabelValues(adapter).Inc()
	}
}
