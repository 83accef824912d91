package memorypool

import (
	"sync"
	"time"
)

// windowSize is the rolling-window length for usage tracking.
const windowSize = 100

type allocation struct {
	size     int
	interval time.Duration
	reused   bool
}

// UsageSnapshot is the derived view of a sub-pool's recent allocation history.
type UsageSnapshot struct {
	AvgSize            float64
	PeakAllocationRate float64 // allocations per second
	CurrentReuseRate   float64
	Trend              float64
	Confidence         float64
	SampleCount        int
}

// usageTracker maintains the rolling window and EWMA reuse rate for one
// sub-pool.
type usageTracker struct {
	mu        sync.Mutex
	window    []allocation
	lastAlloc time.Time
	reuseEWMA float64
	haveEWMA  bool
}

func newUsageTracker() *usageTracker {
	return &usageTracker{}
}

const reuseEWMAAlpha = 0.1

func (t *usageTracker) record(size int, reused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := monotonicNow()
	var interval time.Duration
	if !t.lastAlloc.IsZero() {
		interval = now.Sub(t.lastAlloc)
	}
	t.lastAlloc = now

	t.window = append(t.window, allocation{size: size, interval: interval, reused: reused})
	if len(t.window) > windowSize {
		t.window = t.window[len(t.window)-windowSize:]
	}

	reusedVal := 0.0
	if reused {
		reusedVal = 1.0
	}
	if !t.haveEWMA {
		t.reuseEWMA = reusedVal
		t.haveEWMA = true
	} else {
		t.reuseEWMA = reuseEWMAAlpha*reusedVal + (1-reuseEWMAAlpha)*t.reuseEWMA
	}
}

func (t *usageTracker) snapshot() UsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.window)
	if n == 0 {
		return UsageSnapshot{}
	}

	var totalSize float64
	var totalInterval time.Duration
	for _, a := range t.window {
		totalSize += float64(a.size)
		totalInterval += a.interval
	}
	avgSize := totalSize / float64(n)

	var rate float64
	if totalInterval > 0 {
		rate = float64(n) / totalInterval.Seconds()
	}

	trend := 0.0
	if n >= 2 {
		half := n / 2
		firstHalf := t.window[:half]
		secondHalf := t.window[n-half:]
		firstMean := meanSize(firstHalf)
		secondMean := meanSize(secondHalf)
		if firstMean != 0 {
			trend = (secondMean - firstMean) / firstMean
		}
	}

	confidence := float64(n) / float64(windowSize)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return UsageSnapshot{
		AvgSize:            avgSize,
		PeakAllocationRate: rate,
		CurrentReuseRate:   t.reuseEWMA,
		Trend:              trend,
		Confidence:         confidence,
		SampleCount:        n,
	}
}

func meanSize(allocs []allocation) float64 {
	if len(allocs) == 0 {
		return 0
	}
	var sum float64
	for _, a := range allocs {
		sum += float64(a.size)
	}
	return sum / float64(len(allocs))
}

// monotonicNow is a seam so tests can't be broken by wall-clock skew; it
// simply wraps time.Now, whose monotonic reading is already suitable for
// interval measurement.
func monotonicNow() time.Time {
	return time.Now()
}
