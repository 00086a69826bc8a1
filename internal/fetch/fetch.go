// Package fetch retrieves a JSON array of records from an HTTP endpoint.
//
// The pipeline has no retry policy: a transport failure or non-2xx status is
// fatal and surfaces as *Error. Timeout policy lives on the client.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"postetl/internal/metrics"
)

// Error is a fetch failure: transport error or non-success HTTP status.
type Error struct {
	URL        string
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches record collections over HTTP.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with connection reuse tuned for a small number of
// hosts. timeout bounds each whole request; <= 0 means 30s.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 8,
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Records GETs url and decodes the body as a JSON array of objects.
//
// Decoding is streaming: elements are consumed one at a time and numbers are
// kept as json.Number so integer values survive undamaged for the validator.
//
// Errors:
//   - *Error for transport failures and non-2xx statuses.
//   - A wrapped decode error when the body is not an array of objects.
func (c *Client) Records(ctx context.Context, url string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start))
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &Error{URL: url, StatusCode: resp.StatusCode}
	}

	records, err := decodeArrayOfObjects(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return records, nil
}

// decodeArrayOfObjects streams a root JSON array, requiring every element to
// be an object. nil elements are skipped.
func decodeArrayOfObjects(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("json: expected array root, got %v", tok)
	}

	var out []map[string]any
	for dec.More() {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("json: decode array element %d: %w", len(out), err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json: array element %d not an object (got %T)", len(out), raw)
		}
		out = append(out, obj)
	}

	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read array end: %w", err)
	} else if end != json.Delim(']') {
		return nil, fmt.Errorf("json: expected array end ']', got %v", end)
	}
	return out, nil
}
