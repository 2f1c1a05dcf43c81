// Package telemetry собирает снимки телеметрии хоста на трех независимых каденциях.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra"
)

type CollectorConfig struct {
	FastInterval   time.Duration // memory, surface
	MediumInterval time.Duration // navigation, resources
	SlowInterval   time.Duration // network + зонд
	SampleTimeout  time.Duration
}

type hooks struct {
	mu      sync.Mutex
	seq     int
	network map[int]func(domain.NetworkStats)
	offline map[int]func()
}

// Collector держит последний снимок. Снимок меняется только целиком (atomic swap),
// поэтому читатели никогда не видят смесь полей двух тиков.
type Collector struct {
	src     Sources
	cfg     CollectorConfig
	metrics *infra.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex // жизненный цикл
	running bool
	cancel  context.CancelFunc

	// поколение запуска: результаты старого поколения после Stop отбрасываются
	gen atomic.Uint64

	writeMu sync.Mutex
	current atomic.Pointer[domain.MetricsSnapshot]

	hooks hooks
}

func NewCollector(src Sources, cfg CollectorConfig, metrics *infra.Metrics, logger *zap.Logger) *Collector {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = time.Second
	}
	if cfg.MediumInterval <= 0 {
		cfg.MediumInterval = 5 * time.Second
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = 10 * time.Second
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		src:     src,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "collector")),
		now:     time.Now,
		hooks: hooks{
			network: make(map[int]func(domain.NetworkStats)),
			offline: make(map[int]func()),
		},
	}
	c.current.Store(&domain.MetricsSnapshot{})
	return c
}

// Start запускает три периодические задачи. Повторный вызов ничего не делает.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	gen := c.gen.Add(1)

	go c.loop(ctx, c.cfg.FastInterval, func(ctx context.Context) { c.tickFast(ctx, gen) })
	go c.loop(ctx, c.cfg.MediumInterval, func(ctx context.Context) { c.tickMedium(ctx, gen) })
	go c.loop(ctx, c.cfg.SlowInterval, func(ctx context.Context) { c.tickSlow(ctx, gen) })

	c.logger.Info("collector started",
		zap.Duration("fast", c.cfg.FastInterval),
		zap.Duration("medium", c.cfg.MediumInterval),
		zap.Duration("slow", c.cfg.SlowInterval))
}

// Stop отменяет таймеры. Зонды в полете не прерываются, их результаты отбрасываются.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.gen.Add(1)
	c.cancel()
	c.logger.Info("collector stopped")
}

func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Current копия последнего снимка; никогда не блокируется на I/O
func (c *Collector) Current() domain.MetricsSnapshot {
	return c.current.Load().Clone()
}

// Refresh синхронно опрашивает все поля и публикует снимок (CLI, тесты).
func (c *Collector) Refresh(ctx context.Context) domain.MetricsSnapshot {
	gen := c.gen.Load()
	c.tickFast(ctx, gen)
	c.tickMedium(ctx, gen)
	c.tickSlow(ctx, gen)
	return c.Current()
}

// OnNetworkChange вызывается при смене online или effectiveType. Возвращает отписку.
func (c *Collector) OnNetworkChange(fn func(domain.NetworkStats)) func() {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.seq++
	id := c.hooks.seq
	c.hooks.network[id] = fn
	return func() {
		c.hooks.mu.Lock()
		delete(c.hooks.network, id)
		c.hooks.mu.Unlock()
	}
}

// OnOffline вызывается на переходе online -> offline
func (c *Collector) OnOffline(fn func()) func() {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.seq++
	id := c.hooks.seq
	c.hooks.offline[id] = fn
	return func() {
		c.hooks.mu.Lock()
		delete(c.hooks.offline, id)
		c.hooks.mu.Unlock()
	}
}

func (c *Collector) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	tick(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// sampleCtx: таймаут на I/O шага; отмена Stop на него не распространяется
func (c *Collector) sampleCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.SampleTimeout)
}

func (c *Collector) tickFast(ctx context.Context, gen uint64) {
	ctx, cancel := c.sampleCtx(ctx)
	defer cancel()

	var mem Result[domain.MemoryStats]
	if c.src.Memory != nil {
		mem = safeSample(func() (domain.MemoryStats, error) { return c.src.Memory.SampleMemory(ctx) })
		c.observe(domain.MetricMemory, mem.Err)
	} else {
		mem = Fail[domain.MemoryStats](ErrUnavailable)
	}

	var surface Result[domain.SurfaceStats]
	if c.src.Surface != nil {
		surface = safeSample(func() (domain.SurfaceStats, error) { return c.src.Surface.Stats(), nil })
		c.observe(domain.MetricSurface, surface.Err)
	} else {
		surface = Fail[domain.SurfaceStats](ErrUnavailable)
	}

	c.publish(gen, func(s *domain.MetricsSnapshot) {
		s.Memory = mem.Ptr()
		s.Surface = surface.Ptr()
	})
}

func (c *Collector) tickMedium(ctx context.Context, gen uint64) {
	ctx, cancel := c.sampleCtx(ctx)
	defer cancel()

	var res Result[domain.ResourceStats]
	if c.src.Resources != nil {
		res = safeSample(func() (domain.ResourceStats, error) { return c.src.Resources.SampleResources(), nil })
		c.observe(domain.MetricResources, res.Err)
	} else {
		res = Fail[domain.ResourceStats](ErrUnavailable)
	}

	var nav Result[domain.NavigationTiming]
	if c.src.Navigation != nil {
		nav = safeSample(func() (domain.NavigationTiming, error) { return c.src.Navigation.SampleNavigation(ctx) })
		c.observe(domain.MetricNavigation, nav.Err)
	} else {
		nav = Fail[domain.NavigationTiming](ErrUnavailable)
	}

	c.publish(gen, func(s *domain.MetricsSnapshot) {
		s.Resources = res.Ptr()
		s.Navigation = nav.Ptr()
	})
}

func (c *Collector) tickSlow(ctx context.Context, gen uint64) {
	ctx, cancel := c.sampleCtx(ctx)
	defer cancel()

	var online Result[bool]
	if c.src.Link != nil {
		online = safeSample(func() (bool, error) { return c.src.Link.Online(ctx) })
		c.observe(domain.MetricNetwork, online.Err)
	} else {
		online = Fail[bool](ErrUnavailable)
	}

	// без линка зонд бесполезен
	probe := Fail[domain.RoundTrip](ErrUnavailable)
	if c.src.Probe != nil && (online.Err != nil || online.Value) {
		probe = safeSample(func() (domain.RoundTrip, error) { return c.src.Probe.Probe(ctx) })
		c.observe("probe", probe.Err)
	}

	var network *domain.NetworkStats
	if online.Err == nil {
		network = &domain.NetworkStats{Online: online.Value, EffectiveType: domain.EffectiveTypeUnknown}
		if probe.Err == nil {
			network.RTTMs = probe.Value.ElapsedMs
			network.DownlinkMbps = probe.Value.ThroughputMbps
			network.EffectiveType = EffectiveType(network.RTTMs, network.DownlinkMbps)
		}
	}

	prev, published := c.publish(gen, func(s *domain.MetricsSnapshot) {
		s.Network = network
		s.Probe = probe.Ptr()
	})
	if published {
		c.notifyNetwork(prev.Network, network)
	}
}

// publish копирует текущий снимок, применяет изменения тика и подменяет указатель.
// Возвращает предыдущий снимок.
func (c *Collector) publish(gen uint64, mutate func(*domain.MetricsSnapshot)) (domain.MetricsSnapshot, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.gen.Load() != gen {
		return domain.MetricsSnapshot{}, false
	}

	prev := c.current.Load()
	next := prev.Clone()
	mutate(&next)
	next.Timestamp = c.now()
	c.current.Store(&next)
	return *prev, true
}

func (c *Collector) notifyNetwork(prev, next *domain.NetworkStats) {
	if next == nil {
		return
	}
	changed := prev == nil || prev.Online != next.Online || prev.EffectiveType != next.EffectiveType
	wentOffline := prev != nil && prev.Online && !next.Online
	if !changed {
		return
	}

	c.hooks.mu.Lock()
	netHooks := make([]func(domain.NetworkStats), 0, len(c.hooks.network))
	for _, fn := range c.hooks.network {
		netHooks = append(netHooks, fn)
	}
	var offHooks []func()
	if wentOffline {
		for _, fn := range c.hooks.offline {
			offHooks = append(offHooks, fn)
		}
	}
	c.hooks.mu.Unlock()

	if wentOffline {
		c.logger.Warn("network went offline")
	}
	for _, fn := range netHooks {
		fn(*next)
	}
	for _, fn := range offHooks {
		fn()
	}
}

func (c *Collector) observe(field string, err error) {
	if err == nil {
		return
	}
	c.metrics.SampleFailures.WithLabelValues(field).Inc()
	c.logger.Debug("sample unavailable", zap.String("field", field), zap.Error(err))
}

// safeSample превращает панику сэмплера в ошибку поля
func safeSample[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Fail[T](fmt.Errorf("sampler panic: %v", r))
		}
	}()
	v, err := fn()
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}
