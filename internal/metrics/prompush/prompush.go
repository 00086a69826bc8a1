// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Scrape-based Prometheus does not suit a batch job that exits after one run,
// so the backend accumulates into a private registry and pushes the whole
// registry once per Flush().
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"postetl/internal/metrics"
)

const namespace = "postetl"

// pusher is the subset of *push.Pusher the backend needs. Tests substitute a
// fake to avoid a live gateway.
type pusher interface {
	Add() error
}

// Backend implements metrics.Backend on top of a Pushgateway.
type Backend struct {
	registry *prometheus.Registry
	pusher   pusher

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpErrors    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewBackend constructs a Pushgateway backend. jobName becomes the gateway
// grouping key; empty defaults to "postetl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "postetl"
	}

	b := newBackend()
	b.pusher = push.New(gatewayURL, jobName).Gatherer(b.registry)
	return b, nil
}

func newBackend() *Backend {
	reg := prometheus.NewRegistry()

	b := &Backend{
		registry: reg,

		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Pipeline stage completions by outcome",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage", "status"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed by kind",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Upstream fetch attempts by status code",
		}, []string{"status"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Failed upstream fetch attempts by status code",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Upstream fetch latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"status"}),
	}

	reg.MustRegister(
		b.stageTotal,
		b.stageDuration,
		b.recordsTotal,
		b.httpRequests,
		b.httpErrors,
		b.httpDuration,
	)
	return b
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	switch name {
	case metrics.MetricStageTotal:
		b.stageTotal.WithLabelValues(labels["stage"], labels["status"]).Add(delta)

	case metrics.MetricRecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.recordsTotal.WithLabelValues(kind).Add(delta)

	case metrics.MetricHTTPRequests:
		b.httpRequests.WithLabelValues(statusOrUnknown(labels)).Add(delta)

	case metrics.MetricHTTPErrors:
		b.httpErrors.WithLabelValues(statusOrUnknown(labels)).Add(delta)

	default:
		// Unknown metrics are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	switch name {
	case metrics.MetricStageDuration:
		b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)

	case metrics.MetricHTTPReqDuration:
		b.httpDuration.WithLabelValues(statusOrUnknown(labels)).Observe(value)

	default:
		// Unknown histograms are ignored.
	}
}

// Flush pushes the full registry to the gateway. Add (not Push) so repeated
// jobs under the same grouping key accumulate instead of overwriting.
func (b *Backend) Flush() error {
	if err := b.pusher.Add(); err != nil {
		return fmt.Errorf("prompush: push failed: %w", err)
	}
	return nil
}

func statusOrUnknown(labels metrics.Labels) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

var _ metrics.Backend = (*Backend)(nil)
var _ metrics.Flusher = (*Backend)(nil)
