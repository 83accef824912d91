package memorypool

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Scheduler runs the pool's background tasks, one self-rescheduling
// ticker goroutine per task, all joined on Stop.
type Scheduler struct {
	pool *Pool

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler creates a Scheduler bound to pool. Start/Stop are idempotent.
func NewScheduler(pool *Pool) *Scheduler {
	return &Scheduler{pool: pool}
}

func (s *Scheduler) spawn(ctx context.Context, interval time.Duration, task func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				task()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Start launches MonitorUsage, TunePoolSize, MemoryPressureCheck, and
// CleanupUnused as independent, self-rescheduling tasks. Calling Start
// again while already running is a no-op.
func (s *Scheduler) Start(parent context.Context, cfg SchedulerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(parent)
	s.cancels = append(s.cancels, cancel)

	s.spawn(ctx, cfg.MonitorInterval, func() {
		for hint := range s.pool.subs {
			snap := s.pool.Stats(hint)
			klog.V(4).Infof("memorypool: %s avg_size=%.0f reuse=%.2f trend=%.2f", hint, snap.AvgSize, snap.CurrentReuseRate, snap.Trend)
		}
	})

	s.spawn(ctx, cfg.TuneInterval, func() {
		for hint := range s.pool.subs {
			if newSize, changed := s.pool.TunePoolSize(hint, cfg.Strategy, cfg.TargetReuse); changed {
				klog.V(2).Infof("memorypool: tuned %s pool to capacity %d", hint, newSize)
			}
		}
	})

	s.spawn(ctx, cfg.PressureCheckInterval, func() {
		if cfg.PressureEstimator == nil {
			return
		}
		if pressure := cfg.PressureEstimator(); pressure > cfg.PressureThreshold {
			s.pool.ApplyPressure(cfg.PressureResponse, cfg.ReducePoolsPct)
		}
	})

	s.spawn(ctx, cfg.CleanupInterval, func() {
		s.pool.CleanupUnused(cfg.MaxAge, cfg.MinPoolSize)
	})

	if len(cfg.WarmUpPredictions) > 0 && cfg.WarmUpInterval > 0 {
		s.spawn(ctx, cfg.WarmUpInterval, func() {
			s.pool.WarmUpPools(cfg.WarmUpPredictions)
		})
	}
}

// Stop cancels every running task and waits for them to exit. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancels := s.cancels
	s.cancels = nil
	s.started = false
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.wg.Wait()
}

// SchedulerConfig parameterizes the four background tasks.
type SchedulerConfig struct {
	MonitorInterval       time.Duration
	TuneInterval          time.Duration
	Strategy              Strategy
	TargetReuse           float64
	PressureCheckInterval time.Duration
	PressureEstimator     func() float64
	PressureThreshold     float64
	PressureResponse      PressureResponse
	ReducePoolsPct        float64
	CleanupInterval       time.Duration
	MaxAge                time.Duration
	MinPoolSize           int
	WarmUpInterval        time.Duration
	WarmUpPredictions     map[ContentTypeHint]int
}

// WarmUpPools pre-populates each predicted sub-pool's free list with the
// given number of typical-size buffers so the first allocation burst after
// startup hits warm buffers instead of the allocator.
func (p *Pool) WarmUpPools(predictions map[ContentTypeHint]int) {
	for hint, count := range predictions {
		s := p.sub(hint)
		for i := 0; i < count; i++ {
			buf := s.pool.Get()
			buf.B = grow(buf.B, hint.TypicalSize())
			s.mu.Lock()
			s.pool.Put(buf)
			s.mu.Unlock()
		}
	}
}

// CleanupUnused shrinks any sub-pool whose capacity exceeds minPoolSize and
// which has seen no allocation for longer than maxAge back down to
// minPoolSize.
func (p *Pool) CleanupUnused(maxAge time.Duration, minPoolSize int) {
	p.mu.RLock()
	subs := make([]*subPool, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.RUnlock()

	for _, s := range subs {
		s.usage.mu.Lock()
		idle := !s.usage.lastAlloc.IsZero() && time.Since(s.usage.lastAlloc) > maxAge
		s.usage.mu.Unlock()
		if !idle {
			continue
		}
		s.mu.Lock()
		if s.capacity > minPoolSize {
			s.capacity = minPoolSize
		}
		s.mu.Unlock()
	}
}
