package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"
)

// ErrValidationFailed is returned by PutWithValidation/GetWithValidation on
// a content mismatch.
var ErrValidationFailed = errors.New("cache: content validation failed")

// ErrNotFound is returned when a key is absent from every layer.
var ErrNotFound = errors.New("cache: key not found")

// GlobalStats is the cache-wide statistics snapshot.
type GlobalStats struct {
	Promotions     int64
	Hits           int64
	Misses         int64
	TrackedEntries int
}

func (s GlobalStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type promoteRequest struct {
	key   string
	value []byte
	from  int
}

// MultiLayerCache tries each layer in order on Get, writes always land on
// layer 0, and promotion across layers is decided by a PromotionStrategy.
// A hit never copies bytes synchronously: qualifying hits are handed to a
// background worker through an unbounded queue, so an L1 hit costs the
// same whether or not the entry is due for promotion.
type MultiLayerCache struct {
	layers   []Layer
	strategy PromotionStrategy
	tracker  *PromotionTracker

	validator Validator

	hits       atomic.Int64
	misses     atomic.Int64
	promotions atomic.Int64

	valMu    sync.Mutex
	valStats ValidationStats

	promoteMu   sync.Mutex
	promoteQ    []promoteRequest
	promoteWake chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	workerDone  sync.WaitGroup
}

// New builds a MultiLayerCache over layers (ordered fastest-first) using
// strategy to decide deferred promotions, and starts the promotion worker.
// Call Close to stop it.
func New(layers []Layer, strategy PromotionStrategy) *MultiLayerCache {
	c := &MultiLayerCache{
		layers:      layers,
		strategy:    strategy,
		tracker:     newPromotionTracker(),
		validator:   MD5Validator{},
		promoteWake: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	c.workerDone.Add(1)
	go c.promotionLoop()
	return c
}

// SetValidator overrides the default MD5Validator.
func (c *MultiLayerCache) SetValidator(v Validator) { c.validator = v }

// Close stops the promotion worker. Idempotent.
func (c *MultiLayerCache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.workerDone.Wait()
}

// Get tries layer 0, then 1, and so on. A layer error counts as a miss for
// that layer and does not abort the search.
func (c *MultiLayerCache) Get(key string) ([]byte, bool) {
	for i, l := range c.layers {
		v, ok, err := l.Get(key)
		if err != nil {
			klog.V(3).Infof("cache: layer %d get error for %q: %v", i, key, err)
			continue
		}
		if !ok {
			continue
		}
		c.hits.Add(1)
		entry := c.tracker.recordHit(key, i)
		if i > 0 && c.strategy != nil && c.strategy.ShouldPromote(entry) {
			c.enqueuePromotion(key, v, i)
		}
		return v, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *MultiLayerCache) enqueuePromotion(key string, value []byte, from int) {
	c.promoteMu.Lock()
	c.promoteQ = append(c.promoteQ, promoteRequest{key: key, value: value, from: from})
	c.promoteMu.Unlock()
	select {
	case c.promoteWake <- struct{}{}:
	default:
	}
}

func (c *MultiLayerCache) promotionLoop() {
	defer c.workerDone.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.promoteWake:
		}
		for {
			c.promoteMu.Lock()
			if len(c.promoteQ) == 0 {
				c.promoteMu.Unlock()
				break
			}
			req := c.promoteQ[0]
			c.promoteQ = c.promoteQ[1:]
			c.promoteMu.Unlock()
			c.applyPromotion(req.key, req.value, req.from, 0)
		}
	}
}

// Put always writes to layer 0; it is the source of truth for fresh writes.
func (c *MultiLayerCache) Put(key string, value []byte) error {
	if len(c.layers) == 0 {
		return errors.New("cache: no layers configured")
	}
	return c.layers[0].Put(key, value)
}

// PutWithTTL writes to layer 0 with ttl. The TTL is not recorded anywhere
// else: lower layers are not written, and later copies made by Promote or
// background promotion go through Put and carry no TTL.
func (c *MultiLayerCache) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	if len(c.layers) == 0 {
		return errors.New("cache: no layers configured")
	}
	return c.layers[0].PutWithTTL(key, value, ttl)
}

// Contains reports whether any layer holds key.
func (c *MultiLayerCache) Contains(key string) bool {
	for _, l := range c.layers {
		if l.Contains(key) {
			return true
		}
	}
	return false
}

// Remove deletes key from every layer and drops its promotion history.
func (c *MultiLayerCache) Remove(key string) error {
	var lastErr error
	for _, l := range c.layers {
		if err := l.Remove(key); err != nil {
			lastErr = err
		}
	}
	c.tracker.forget(key)
	return lastErr
}

// Clear empties every layer.
func (c *MultiLayerCache) Clear() error {
	var lastErr error
	for _, l := range c.layers {
		if err := l.Clear(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Promote copies bytes from layer `from` to layer `to` explicitly,
// independent of any automatic strategy.
func (c *MultiLayerCache) Promote(key string, from, to int) error {
	if from < 0 || from >= len(c.layers) || to < 0 || to >= len(c.layers) {
		return errors.New("cache: layer index out of range")
	}
	v, ok, err := c.layers[from].Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("cache: key not present in source layer")
	}
	if err := c.layers[to].Put(key, v); err != nil {
		return err
	}
	c.promotions.Add(1)
	return nil
}

func (c *MultiLayerCache) applyPromotion(key string, value []byte, from, to int) {
	if err := c.layers[to].Put(key, value); err != nil {
		klog.Warningf("cache: promotion of %q from layer %d to %d failed: %v", key, from, to, err)
		return
	}
	c.promotions.Add(1)
}

// PutWithValidation writes value to layer 0 only if validator accepts it
// against expectedKey; a failure aborts the store.
func (c *MultiLayerCache) PutWithValidation(key, expectedKey string, value []byte) error {
	result := c.validator.Validate(value, expectedKey)
	c.recordValidation(result)
	if !result.IsValid {
		return ErrValidationFailed
	}
	return c.Put(key, value)
}

// GetWithValidation fetches key and validates it against expectedKey. An
// empty expectedKey skips validation (counted as skipped). A mismatch
// means cache corruption: the entry is removed from every layer and an
// error is surfaced.
func (c *MultiLayerCache) GetWithValidation(key, expectedKey string) ([]byte, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if expectedKey == "" {
		c.recordSkipped()
		return v, nil
	}
	result := c.validator.Validate(v, expectedKey)
	c.recordValidation(result)
	if !result.IsValid {
		if err := c.Remove(key); err != nil {
			klog.V(3).Infof("cache: removing corrupt entry %q: %v", key, err)
		}
		return nil, ErrValidationFailed
	}
	return v, nil
}

func (c *MultiLayerCache) recordValidation(r ValidationResult) {
	c.valMu.Lock()
	defer c.valMu.Unlock()
	c.valStats.Total++
	c.valStats.Bytes += int64(r.ContentSize)
	c.valStats.TotalTime += r.HashTime + r.CompareTime
	if r.IsValid {
		c.valStats.Successful++
	} else {
		c.valStats.Failed++
	}
}

func (c *MultiLayerCache) recordSkipped() {
	c.valMu.Lock()
	defer c.valMu.Unlock()
	c.valStats.Total++
	c.valStats.Skipped++
}

// ValidationSnapshot returns the running validation statistics.
func (c *MultiLayerCache) ValidationSnapshot() ValidationStats {
	c.valMu.Lock()
	defer c.valMu.Unlock()
	return c.valStats
}

// GlobalStats returns the cache-wide statistics.
func (c *MultiLayerCache) GlobalStats() GlobalStats {
	return GlobalStats{
		Promotions:     c.promotions.Load(),
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		TrackedEntries: c.tracker.TrackedEntries(),
	}
}

// LayerStats returns the statistics for layer i.
func (c *MultiLayerCache) LayerStats(i int) LayerStats {
	return c.layers[i].Stats()
}
