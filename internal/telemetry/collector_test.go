package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/vitals/internal/domain"
)

type fakeMemory struct {
	n   atomic.Int64
	err error
}

func (f *fakeMemory) SampleMemory(context.Context) (domain.MemoryStats, error) {
	if f.err != nil {
		return domain.MemoryStats{}, f.err
	}
	v := float64(f.n.Add(1))
	return domain.MemoryStats{UsedMB: v, TotalMB: 1 << 20, UsagePercent: 10}, nil
}

// fakeSurface отдает то же значение, что последний замер памяти
type fakeSurface struct{ mem *fakeMemory }

func (f fakeSurface) Stats() domain.SurfaceStats {
	return domain.SurfaceStats{ElementCount: int(f.mem.n.Load())}
}

type panicNavigation struct{}

func (panicNavigation) SampleNavigation(context.Context) (domain.NavigationTiming, error) {
	panic("navigation exploded")
}

type fakeLink struct{ online atomic.Bool }

func (f *fakeLink) Online(context.Context) (bool, error) { return f.online.Load(), nil }

type fakeProber struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeProber) Probe(ctx context.Context) (domain.RoundTrip, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return domain.RoundTrip{ElapsedMs: 40, ThroughputMbps: 25, Bytes: 1024}, nil
}

func fastConfig() CollectorConfig {
	return CollectorConfig{
		FastInterval:   time.Hour,
		MediumInterval: time.Hour,
		SlowInterval:   time.Hour,
		SampleTimeout:  time.Second,
	}
}

func TestCollector_CurrentBeforeFirstSample(t *testing.T) {
	c := NewCollector(Sources{}, fastConfig(), nil, nil)
	snap := c.Current()

	assert.True(t, snap.Timestamp.IsZero())
	assert.Nil(t, snap.Memory)
	assert.Nil(t, snap.Network)
	assert.Nil(t, snap.Surface)
	assert.Nil(t, snap.Resources)
	assert.Nil(t, snap.Navigation)
	assert.Nil(t, snap.Probe)
}

func TestCollector_RefreshDegradesFailingFields(t *testing.T) {
	link := &fakeLink{}
	link.online.Store(true)
	c := NewCollector(Sources{
		Memory:     &fakeMemory{err: errors.New("no procfs")},
		Link:       link,
		Surface:    fakeSurface{mem: &fakeMemory{}},
		Resources:  NewResourceTracker(time.Second),
		Navigation: panicNavigation{},
		Probe:      &fakeProber{},
	}, fastConfig(), nil, nil)

	snap := c.Refresh(context.Background())

	assert.Nil(t, snap.Memory, "failed sampler must leave field absent")
	assert.Nil(t, snap.Navigation, "panicking sampler must leave field absent")
	require.NotNil(t, snap.Surface)
	require.NotNil(t, snap.Resources)
	require.NotNil(t, snap.Network)
	require.NotNil(t, snap.Probe)
	assert.True(t, snap.Network.Online)
	assert.Equal(t, domain.EffectiveType4G, snap.Network.EffectiveType)
	assert.InDelta(t, 40, snap.Network.RTTMs, 0.001)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestCollector_OfflineSkipsProbe(t *testing.T) {
	link := &fakeLink{}
	prober := &fakeProber{}
	c := NewCollector(Sources{Link: link, Probe: prober}, fastConfig(), nil, nil)

	snap := c.Refresh(context.Background())
	require.NotNil(t, snap.Network)
	assert.False(t, snap.Network.Online)
	assert.Equal(t, domain.EffectiveTypeUnknown, snap.Network.EffectiveType)
	assert.Nil(t, snap.Probe)
	assert.Equal(t, int32(0), prober.calls.Load())
}

func TestCollector_CurrentReturnsCopy(t *testing.T) {
	mem := &fakeMemory{}
	c := NewCollector(Sources{Memory: mem}, fastConfig(), nil, nil)
	c.Refresh(context.Background())

	snap := c.Current()
	snap.Memory.UsedMB = -1

	assert.NotEqual(t, -1.0, c.Current().Memory.UsedMB)
}

func TestCollector_StartIsIdempotentAndStopIsRepeatable(t *testing.T) {
	mem := &fakeMemory{}
	c := NewCollector(Sources{Memory: mem}, fastConfig(), nil, nil)

	c.Start(context.Background())
	c.Start(context.Background())
	assert.True(t, c.Running())

	// один запуск = один немедленный тик fast-цикла
	require.Eventually(t, func() bool { return c.Current().Memory != nil }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return mem.n.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestCollector_DiscardsResultsAfterStop(t *testing.T) {
	link := &fakeLink{}
	link.online.Store(true)
	prober := &fakeProber{release: make(chan struct{})}
	c := NewCollector(Sources{Link: link, Probe: prober}, fastConfig(), nil, nil)

	c.Start(context.Background())
	require.Eventually(t, func() bool { return prober.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	close(prober.release)

	assert.Never(t, func() bool { return c.Current().Probe != nil }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestCollector_OfflineTransitionHooks(t *testing.T) {
	link := &fakeLink{}
	link.online.Store(true)
	c := NewCollector(Sources{Link: link}, fastConfig(), nil, nil)

	var offline atomic.Int32
	var changes atomic.Int32
	unregister := c.OnOffline(func() { offline.Add(1) })
	c.OnNetworkChange(func(domain.NetworkStats) { changes.Add(1) })

	c.Refresh(context.Background())
	assert.Equal(t, int32(0), offline.Load(), "initial state is not a transition")
	assert.Equal(t, int32(1), changes.Load())

	link.online.Store(false)
	c.Refresh(context.Background())
	assert.Equal(t, int32(1), offline.Load())
	assert.Equal(t, int32(2), changes.Load())

	// повторный offline-тик не является переходом
	c.Refresh(context.Background())
	assert.Equal(t, int32(1), offline.Load())
	assert.Equal(t, int32(2), changes.Load())

	unregister()
	link.online.Store(true)
	c.Refresh(context.Background())
	link.online.Store(false)
	c.Refresh(context.Background())
	assert.Equal(t, int32(1), offline.Load())
}

// Снимок публикуется целиком: память и поверхность одного тика всегда согласованы.
func TestCollector_SnapshotAtomicity(t *testing.T) {
	mem := &fakeMemory{}
	c := NewCollector(Sources{Memory: mem, Surface: fakeSurface{mem: mem}}, fastConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for ctx.Err() == nil {
			c.tickFast(ctx, c.gen.Load())
		}
	}()

	var wg sync.WaitGroup
	var mismatches atomic.Int32
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				snap := c.Current()
				if snap.Memory == nil || snap.Surface == nil {
					continue
				}
				if int(snap.Memory.UsedMB) != snap.Surface.ElementCount {
					mismatches.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	cancel()

	assert.Equal(t, int32(0), mismatches.Load())
}
