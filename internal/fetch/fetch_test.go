package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecords_OK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 1, "name": "Ann"}, {"id": 2, "name": "Bo"}]`))
	}))
	defer srv.Close()

	got, err := NewClient(5*time.Second).Records(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Records() err = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0]["id"] != json.Number("1") {
		t.Fatalf("id = %#v, want json.Number(1)", got[0]["id"])
	}
	if got[1]["name"] != "Bo" {
		t.Fatalf("name = %v", got[1]["name"])
	}
}

func TestRecords_EmptyArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	got, err := NewClient(0).Records(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Records() err = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d records, want 0", len(got))
	}
}

func TestRecords_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "not_found", status: http.StatusNotFound},
		{name: "server_error", status: http.StatusInternalServerError},
		{name: "too_many_requests", status: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(time.Second).Records(context.Background(), srv.URL)

			var ferr *Error
			if !errors.As(err, &ferr) {
				t.Fatalf("err = %T, want *fetch.Error", err)
			}
			if ferr.StatusCode != tt.status {
				t.Fatalf("StatusCode = %d, want %d", ferr.StatusCode, tt.status)
			}
			if !strings.Contains(ferr.Error(), "unexpected status") {
				t.Fatalf("message = %q", ferr.Error())
			}
		})
	}
}

func TestRecords_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := NewClient(time.Second).Records(context.Background(), srv.URL)

	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %T, want *fetch.Error", err)
	}
	if ferr.StatusCode != 0 {
		t.Fatalf("StatusCode = %d, want 0 for transport error", ferr.StatusCode)
	}
}

func TestRecords_MalformedBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "object_root", body: `{"a": 1}`, want: "expected array root"},
		{name: "scalar_element", body: `[1, 2]`, want: "not an object"},
		{name: "truncated", body: `[{"a": 1}`, want: "json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(time.Second).Records(context.Background(), srv.URL)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestRecords_NullElementsSkipped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 1}, null, {"id": 2}]`))
	}))
	defer srv.Close()

	got, err := NewClient(time.Second).Records(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Records() err = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
}
