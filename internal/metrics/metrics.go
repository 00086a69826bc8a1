// Package metrics is a minimal, backend-pluggable metrics facade.
//
// The pipeline records through package-level helpers; a process wires a real
// backend (Datadog, Prometheus Pushgateway) at startup via SetBackend. With
// no backend set, recording is a cheap no-op, so library code never guards
// its metric calls.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are the tag set attached to one observation.
type Labels map[string]string

// Backend receives raw observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer and submit on demand.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush submits buffered metrics if the installed backend buffers at all.
func Flush() error {
	mu.RLock()
	b := backend
	mu.RUnlock()

	if f, ok := b.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Metric names shared by all backends.
const (
	MetricStageTotal      = "etl_stage_total"
	MetricStageDuration   = "etl_stage_duration_seconds"
	MetricRecordsTotal    = "etl_records_total"
	MetricHTTPRequests    = "etl_http_requests_total"
	MetricHTTPErrors      = "etl_http_errors_total"
	MetricHTTPReqDuration = "etl_http_request_duration_seconds"
)

// RecordStage records one pipeline stage completion with its outcome and
// duration.
func RecordStage(stage string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"stage": stage, "status": status}

	b := current()
	b.IncCounter(MetricStageTotal, 1, l)
	b.ObserveHistogram(MetricStageDuration, d.Seconds(), l)
}

// RecordRecords counts records flowing through the pipeline for one kind
// ("posts", "users").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(MetricRecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordHTTP records one upstream fetch attempt.
func RecordHTTP(statusCode int, err error, d time.Duration) {
	status := "unknown"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	l := Labels{"status": status}

	b := current()
	b.IncCounter(MetricHTTPRequests, 1, l)
	if err != nil {
		b.IncCounter(MetricHTTPErrors, 1, l)
	}
	b.ObserveHistogram(MetricHTTPReqDuration, d.Seconds(), l)
}
