package memorypool

import "math"

// Strategy selects how aggressively the tuner reacts to usage trends.
type Strategy int

const (
	Conservative Strategy = iota
	Aggressive
	Adaptive
)

// params returns the strategy's maximum per-step adjustment and the
// minimum usage-tracker confidence it requires before acting.
func (s Strategy) params() (maxAdjustment, minConfidence float64) {
	switch s {
	case Aggressive:
		return 0.5, 0.3
	case Adaptive:
		return 0.3, 0.5
	default: // Conservative
		return 0.1, 0.8
	}
}

// needsTuning reports whether the snapshot warrants a capacity change:
// reuse rate outside [0.3, 0.9] or a trend whose magnitude exceeds 0.3.
func needsTuning(snap UsageSnapshot) bool {
	return snap.CurrentReuseRate < 0.3 || snap.CurrentReuseRate > 0.9 || math.Abs(snap.Trend) > 0.3
}

// TunePoolSize proposes a new capacity for hint given its current capacity,
// target reuse rate, and the active strategy. Returns (newCapacity, changed).
func (p *Pool) TunePoolSize(hint ContentTypeHint, strategy Strategy, targetReuse float64) (int, bool) {
	s := p.sub(hint)
	snap := s.usage.snapshot()

	maxAdj, minConfidence := strategy.params()
	if snap.Confidence < minConfidence || !needsTuning(snap) {
		return currentCapacity(s), false
	}

	s.mu.Lock()
	current := float64(s.capacity)
	s.mu.Unlock()
	if current == 0 {
		current = 1
	}

	recommended := current * (targetReuse / clampReuse(snap.CurrentReuseRate))
	delta := clamp((recommended-current)/current, -maxAdj, maxAdj)
	newSize := int(current * (1 + delta))

	floor := hint.floor()
	if newSize < floor {
		newSize = floor
	}

	s.mu.Lock()
	changed := newSize != s.capacity
	s.capacity = newSize
	s.mu.Unlock()
	return newSize, changed
}

func currentCapacity(s *subPool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

func clampReuse(r float64) float64 {
	if r <= 0 {
		return 0.01
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
