package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"
)

// Orchestrator drives the select-server, delay, fetch, reassess loop:
// every attempt picks a server by weighted score, sleeps out the computed
// backoff, issues the request with its own timeout, and feeds the outcome
// back into the server metrics and the network detector.
type Orchestrator struct {
	Failover *FailoverManager
	Detector *NetworkDetector
	Retry    RetryConfig
	Client   *http.Client
	Timeout  time.Duration

	// dedup collapses concurrent Fetch calls for the same path into a
	// single request in flight.
	dedup singleflight.Group

	// rangeSlots caps concurrent range requests; nil means unlimited.
	rangeSlots chan struct{}
}

// DefaultMaxConnsPerHost bounds the HTTP connection pool per server.
const DefaultMaxConnsPerHost = 16

// DefaultMaxConcurrentRanges bounds in-flight range requests.
const DefaultMaxConcurrentRanges = 32

// NewOrchestrator wires a FailoverManager and NetworkDetector together with
// DefaultRetryConfig, a 30s per-attempt timeout, and the default
// connection-pool and concurrent-range caps.
func NewOrchestrator(failover *FailoverManager) *Orchestrator {
	return &Orchestrator{
		Failover: failover,
		Detector: NewNetworkDetector(),
		Retry:    DefaultRetryConfig(),
		Client: &http.Client{
			Transport: &http.Transport{MaxConnsPerHost: DefaultMaxConnsPerHost},
		},
		Timeout:    30 * time.Second,
		rangeSlots: make(chan struct{}, DefaultMaxConcurrentRanges),
	}
}

// ErrMaxAttemptsExceeded is returned when Fetch exhausts Retry.MaxAttempts.
var ErrMaxAttemptsExceeded = errors.New("streaming: max attempts exceeded")

// byteRange is a closed interval: both endpoints are inclusive, matching
// the Range header's bytes=a-b form.
type byteRange struct {
	start, end int64
}

func (r byteRange) header() string {
	return fmt.Sprintf("bytes=%d-%d", r.start, r.end)
}

// Fetch runs the orchestrator loop for a single resource path, returning
// its body on success. Concurrent callers requesting the same path share a
// single in-flight attempt.
func (o *Orchestrator) Fetch(ctx context.Context, path string) ([]byte, error) {
	v, err, _ := o.dedup.Do(path, func() (interface{}, error) {
		return o.fetch(ctx, path, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// FetchRange fetches the closed byte interval [start, end] of path with a
// Range request. Concurrent callers for the same range share one attempt,
// and distinct ranges are throttled by the concurrent-range cap.
func (o *Orchestrator) FetchRange(ctx context.Context, path string, start, end int64) ([]byte, error) {
	if o.rangeSlots != nil {
		select {
		case o.rangeSlots <- struct{}{}:
			defer func() { <-o.rangeSlots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	rng := byteRange{start: start, end: end}
	v, err, _ := o.dedup.Do(path+"#"+rng.header(), func() (interface{}, error) {
		return o.fetch(ctx, path, &rng)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ContentLength discovers the total size of path via a HEAD request,
// falling back to a one-byte Range GET (parsing Content-Range) against
// servers that do not answer HEAD.
func (o *Orchestrator) ContentLength(ctx context.Context, path string) (int64, error) {
	server, err := o.Failover.Select()
	if err != nil {
		return 0, fmt.Errorf("streaming: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, server.URL+path, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := o.Client.Do(req)
	if err == nil && resp.StatusCode < 400 && resp.ContentLength >= 0 {
		resp.Body.Close()
		o.Failover.MarkServerSucceeded(server, time.Since(start), 0)
		return resp.ContentLength, nil
	}
	if err == nil {
		resp.Body.Close()
	}

	// HEAD refused or length unknown: read the first byte by range and take
	// the total from Content-Range ("bytes 0-0/total").
	total, err := o.rangeProbe(ctx, path)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (o *Orchestrator) rangeProbe(ctx context.Context, path string) (int64, error) {
	server, err := o.Failover.Select()
	if err != nil {
		return 0, fmt.Errorf("streaming: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, server.URL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", byteRange{0, 0}.header())
	start := time.Now()
	resp, err := o.Client.Do(req)
	if err != nil {
		o.Failover.MarkServerFailed(server, nil)
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		o.Failover.MarkServerFailed(server, resp)
		return 0, fmt.Errorf("streaming: content-length probe got status %d", resp.StatusCode)
	}
	o.Failover.MarkServerSucceeded(server, time.Since(start), 1)

	cr := resp.Header.Get("Content-Range")
	if i := strings.LastIndexByte(cr, '/'); i >= 0 {
		if total, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
			return total, nil
		}
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		// Server ignored the Range header and sent the whole body.
		return resp.ContentLength, nil
	}
	return 0, fmt.Errorf("streaming: no usable Content-Range in %q", cr)
}

func (o *Orchestrator) fetch(ctx context.Context, path string, rng *byteRange) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= o.Retry.MaxAttempts; attempt++ {
		server, err := o.Failover.Select()
		if err != nil {
			return nil, fmt.Errorf("streaming: %w", err)
		}

		cond := o.Detector.Snapshot().Condition
		if attempt > 1 {
			delay := o.Retry.Delay(attempt, cond)
			if err := Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, status, header, duration, err := o.get(ctx, server.URL+path, rng)
		o.Detector.RecordResponse(duration, err == nil && status < 400)

		if err == nil && status < 400 {
			o.Failover.MarkServerSucceeded(server, duration, int64(len(body)))
			return body, nil
		}

		if err != nil {
			o.Detector.RecordError(err.Error())
			o.Failover.MarkServerFailed(server, nil)
			lastErr = err
			if !o.Retry.IsRetryable(err, 0) {
				return nil, fmt.Errorf("streaming: non-retryable: %w", err)
			}
			klog.V(3).Infof("streaming: attempt %d against %s failed: %v", attempt, server.URL, err)
			continue
		}

		resp := &http.Response{StatusCode: status, Header: header}
		o.Failover.MarkServerFailed(server, resp)
		lastErr = fmt.Errorf("status %d", status)
		if !o.Retry.IsRetryable(nil, status) {
			return nil, fmt.Errorf("streaming: non-retryable status %d", status)
		}
		klog.V(3).Infof("streaming: attempt %d against %s returned status %d", attempt, server.URL, status)
	}
	return nil, fmt.Errorf("%w: last error: %v", ErrMaxAttemptsExceeded, lastErr)
}

func (o *Orchestrator) get(ctx context.Context, url string, rng *byteRange) ([]byte, int, http.Header, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	if rng != nil {
		req.Header.Set("Range", rng.header())
	}

	start := time.Now()
	resp, err := o.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, 0, nil, duration, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, duration, err
	}
	return body, resp.StatusCode, resp.Header, duration, nil
}
