package datadog

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"postetl/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func newTestBackend(t *testing.T, fake *fakeSubmitter) *Backend {
	t.Helper()

	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour, // ticker never fires during a unit test
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  fake,
	})
	if err != nil {
		t.Fatalf("NewBackend() err = %v", err)
	}
	return b
}

func TestFlush_EmptySubmitsNothing(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err = %v", err)
	}
	if _, ok := fake.last(); ok {
		t.Fatalf("empty flush submitted a payload")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
}

func TestFlush_BuildsStageAndRecordSeries(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)

	b.IncCounter(metrics.MetricStageTotal, 1, metrics.Labels{"stage": "load", "status": "ok"})
	b.ObserveHistogram(metrics.MetricStageDuration, 0.25, metrics.Labels{"stage": "load", "status": "ok"})
	b.IncCounter(metrics.MetricRecordsTotal, 100, metrics.Labels{"kind": "posts"})
	b.IncCounter(metrics.MetricHTTPRequests, 1, metrics.Labels{"status": "200"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err = %v", err)
	}

	payload, ok := fake.last()
	if !ok {
		t.Fatalf("no payload submitted")
	}

	names := map[string]bool{}
	var stageTags []string
	for _, s := range payload.Series {
		names[s.Metric] = true
		if s.Metric == "postetl.stage.total" {
			stageTags = s.Tags
		}
	}
	for _, want := range []string{
		"postetl.stage.total",
		"postetl.records.total",
		"postetl.http.requests.total",
		"postetl.stage.duration_seconds.p95",
		"postetl.stage.duration_seconds.max",
	} {
		if !names[want] {
			t.Fatalf("series %q missing; got %v", want, names)
		}
	}

	joined := strings.Join(stageTags, ",")
	for _, tag := range []string{"job:test", "stage:load", "status:ok"} {
		if !strings.Contains(joined, tag) {
			t.Fatalf("stage tags %v missing %q", stageTags, tag)
		}
	}

	// Buffers reset after flush, so a second flush has nothing to send.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush() err = %v", err)
	}
	fake.mu.Lock()
	n := len(fake.payloads)
	fake.mu.Unlock()
	if n != 1 {
		t.Fatalf("payloads after second flush = %d, want 1", n)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
}

func TestIncCounter_IgnoresUnknownAndNonPositive(t *testing.T) {
	fake := &fakeSubmitter{}
	b := newTestBackend(t, fake)
	defer func() { _ = b.Close() }()

	b.IncCounter("unknown_metric", 5, nil)
	b.IncCounter(metrics.MetricStageTotal, 0, metrics.Labels{"stage": "x", "status": "ok"})
	b.IncCounter(metrics.MetricStageTotal, -1, metrics.Labels{"stage": "x", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err = %v", err)
	}
	if _, ok := fake.last(); ok {
		t.Fatalf("ignored observations still produced a payload")
	}
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDD := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDD)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: " ", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStageStatusKey_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stage  string
		status string
	}{
		{name: "normal", stage: "load", status: "ok"},
		{name: "empty_stage", stage: "", status: "error"},
		{name: "both_empty", stage: "", status: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stage, status := splitStageStatusKey(stageStatusKey(tc.stage, tc.status))
			if stage != tc.stage || status != tc.status {
				t.Fatalf("round trip = (%q, %q), want (%q, %q)", stage, status, tc.stage, tc.status)
			}
		})
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentileNearestRank(s, 0.50); got != 6 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentileNearestRank(s, 1); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod , service:etl ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:etl" {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("ParseTagsCSV(empty) = %v", got)
	}
}
