package memorypool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllocateMeetsTypicalSize(t *testing.T) {
	p := New()
	buf := p.Allocate(ContentConfig, 10)
	require.GreaterOrEqual(t, len(buf.B), ContentConfig.TypicalSize())
}

func TestAllContentTypesHaveDistinctSubPools(t *testing.T) {
	p := New()
	for _, h := range []ContentTypeHint{
		ContentConfig, ContentEncoding, ContentArchive, ContentRoot,
		ContentInstall, ContentDownload, ContentBlte, ContentGeneric,
	} {
		buf := p.Allocate(h, 1)
		require.GreaterOrEqual(t, len(buf.B), h.TypicalSize())
		p.Deallocate(buf)
	}
}

func TestAllocateDeallocateTracksReuse(t *testing.T) {
	p := New()
	buf := p.Allocate(ContentArchive, 100)
	p.Deallocate(buf)

	buf2 := p.Allocate(ContentArchive, 100)
	p.Deallocate(buf2)

	snap := p.Stats(ContentArchive)
	require.Equal(t, 2, snap.SampleCount)
}

func TestEmergencyModeBypassesPool(t *testing.T) {
	p := New()
	p.ApplyPressure(EmergencyMode, 0)
	require.True(t, p.IsEmergency())

	buf := p.Allocate(ContentEncoding, 1024)
	require.GreaterOrEqual(t, len(buf.B), 1024)

	p.ExitEmergencyMode()
	require.False(t, p.IsEmergency())
}

func TestReducePoolsShrinksCapacityNotBelowFloor(t *testing.T) {
	p := New()
	p.ApplyPressure(ReducePools, 0.9)
	capacity := currentCapacity(p.sub(ContentEncoding))
	require.GreaterOrEqual(t, capacity, ContentEncoding.floor())
}

func TestUsageSnapshotConfidenceGrowsWithSamples(t *testing.T) {
	p := New()
	for i := 0; i < 10; i++ {
		buf := p.Allocate(ContentDownload, 1024)
		p.Deallocate(buf)
	}
	snap := p.Stats(ContentDownload)
	require.InDelta(t, 0.1, snap.Confidence, 1e-9)
}

func TestWarmUpPoolsPrimesFreeList(t *testing.T) {
	p := New()
	p.WarmUpPools(map[ContentTypeHint]int{ContentBlte: 2})

	buf := p.Allocate(ContentBlte, 1)
	require.GreaterOrEqual(t, cap(buf.B), ContentBlte.TypicalSize())
	snap := p.Stats(ContentBlte)
	require.Equal(t, 1, snap.SampleCount)
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	p := New()
	s := NewScheduler(p)
	cfg := SchedulerConfig{
		MonitorInterval:       10 * time.Millisecond,
		TuneInterval:          10 * time.Millisecond,
		Strategy:              Adaptive,
		TargetReuse:           0.5,
		PressureCheckInterval: 10 * time.Millisecond,
		PressureThreshold:     0.9,
		PressureResponse:      LogWarning,
		CleanupInterval:       10 * time.Millisecond,
		MaxAge:                time.Hour,
		MinPoolSize:           1,
	}
	s.Start(context.Background(), cfg)
	s.Start(context.Background(), cfg) // no-op
	time.Sleep(25 * time.Millisecond)
	s.Stop()
	s.Stop() // no-op
}
