// Package streaming implements CDN fetch with error recovery: exponential
// backoff scaled by observed network conditions, weighted-random server
// failover with decaying scores, and an orchestrator that drives the
// select/delay/fetch/reassess loop for whole-file and ranged requests.
package streaming

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"
)

// NetworkCondition buckets recent server behavior into a retry-delay
// multiplier.
type NetworkCondition int

const (
	ConditionExcellent NetworkCondition = iota
	ConditionGood
	ConditionFair
	ConditionPoor
	ConditionVeryPoor
)

func (c NetworkCondition) multiplier() float64 {
	switch c {
	case ConditionExcellent:
		return 0.5
	case ConditionGood:
		return 0.8
	case ConditionFair:
		return 1.0
	case ConditionPoor:
		return 1.5
	case ConditionVeryPoor:
		return 2.0
	default:
		return 1.0
	}
}

// RetryConfig parameterizes Delay and IsRetryable.
type RetryConfig struct {
	Base            time.Duration
	Max             time.Duration
	JitterFactor    float64
	MaxAttempts     int
	RetryableStatus map[int]bool
}

// DefaultRetryConfig retries 429 and the transient 5xx statuses.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Base:         1 * time.Second,
		Max:          30 * time.Second,
		JitterFactor: 0.1,
		MaxAttempts:  5,
		RetryableStatus: map[int]bool{
			429: true, 500: true, 502: true, 503: true, 504: true,
		},
	}
}

// Delay computes the backoff before attempt (1-indexed):
// min(base * 2^(attempt-1), max) scaled by the condition's multiplier,
// plus jitter of up to ±base*JitterFactor.
func (c RetryConfig) Delay(attempt int, cond NetworkCondition) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Pow(2, float64(attempt-1))
	base := float64(c.Base) * exp
	if max := float64(c.Max); base > max {
		base = max
	}
	delay := base * cond.multiplier()

	jitterRange := float64(c.Base) * c.JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsRetryable reports whether err or statusCode (0 if no response was
// received) should trigger a retry.
func (c RetryConfig) IsRetryable(err error, statusCode int) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		if isNetworkError(err) {
			return true
		}
		return false
	}
	return c.RetryableStatus[statusCode]
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
