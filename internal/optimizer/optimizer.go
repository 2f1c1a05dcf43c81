// Package optimizer реализует контур управления: по баллу здоровья и отчету аудита
// применяет ограниченные идемпотентные действия и адаптирует флаги возможностей.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/health"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/journal"
)

type SnapshotSource interface {
	Current() domain.MetricsSnapshot
}

// ReportSource последний отчет аудита, может отсутствовать
type ReportSource interface {
	Latest() (domain.AuditReport, bool)
}

type Config struct {
	TickInterval   time.Duration
	ScoreThreshold int
	Cooldown       time.Duration
}

// Результаты применения
const (
	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

type Optimizer struct {
	cfg      Config
	snapshot SnapshotSource
	reports  ReportSource
	flags    *Flags
	actions  map[domain.ActionName]Action
	recorder journal.Recorder
	metrics  *infra.Metrics
	logger   *zap.Logger
	now      func() time.Time

	// applyMu сериализует тики и ручные применения: одно действие
	// не выполнится дважды за тик даже при конкурентных вызовах
	applyMu sync.Mutex
	tick    uint64
	state   map[domain.ActionName]*domain.OptimizationAction

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(cfg Config, snapshot SnapshotSource, reports ReportSource, flags *Flags, actions []Action,
	recorder journal.Recorder, metrics *infra.Metrics, logger *zap.Logger) *Optimizer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 80
	}
	if flags == nil {
		flags = NewFlags()
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Optimizer{
		cfg:      cfg,
		snapshot: snapshot,
		reports:  reports,
		flags:    flags,
		actions:  make(map[domain.ActionName]Action, len(actions)),
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.Named("optimizer"),
		now:      time.Now,
		state:    make(map[domain.ActionName]*domain.OptimizationAction, len(actions)),
	}
	for _, a := range actions {
		o.actions[a.Name()] = a
		o.state[a.Name()] = &domain.OptimizationAction{Name: a.Name()}
	}
	return o
}

// Select действия для снимка: по нарушенным порогам, если балл ниже threshold,
// и по провалившимся категориям аудита независимо от балла.
func Select(snap domain.MetricsSnapshot, score domain.HealthScore, report *domain.AuditReport, threshold int) []domain.ActionName {
	set := make(map[domain.ActionName]struct{})

	if score.Value < threshold {
		b := health.Detect(snap)
		if b.MemoryPressure() {
			set[domain.ActionReleaseMemoryHint] = struct{}{}
			set[domain.ActionPruneHiddenDOM] = struct{}{}
		}
		if b.Offline {
			set[domain.ActionEnableOfflineBanner] = struct{}{}
		}
		if b.NavigationSlow {
			set[domain.ActionLazyifyImages] = struct{}{}
			set[domain.ActionPrefetchLikelyRoutes] = struct{}{}
		}
		if b.ElementTree {
			set[domain.ActionPruneHiddenDOM] = struct{}{}
		}
	}

	if report != nil {
		for _, c := range report.Failing() {
			switch c {
			case domain.CategoryPerformance:
				set[domain.ActionReleaseMemoryHint] = struct{}{}
			case domain.CategoryNetworking:
				set[domain.ActionEnableOfflineBanner] = struct{}{}
			case domain.CategoryComponents:
				set[domain.ActionPruneHiddenDOM] = struct{}{}
			}
		}
	}

	out := make([]domain.ActionName, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tick один шаг контура. Возвращает примененные действия.
func (o *Optimizer) Tick(ctx context.Context) []domain.ActionName {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.tick++
	snap := o.snapshot.Current()
	score := health.Score(snap)
	o.metrics.HealthScore.Set(float64(score.Value))

	var report *domain.AuditReport
	if o.reports != nil {
		if r, ok := o.reports.Latest(); ok {
			report = &r
		}
	}

	o.maybeClearBanner(snap, report)

	var applied []domain.ActionName
	for _, name := range Select(snap, score, report, o.cfg.ScoreThreshold) {
		if o.applyLocked(ctx, name, "tick") == ResultApplied {
			applied = append(applied, name)
		}
	}

	if len(applied) > 0 {
		o.logger.Info("optimization tick",
			zap.Uint64("tick", o.tick),
			zap.Int("score", score.Value),
			zap.Any("applied", applied))
	}
	return applied
}

// Apply ручное применение в рамках текущего тика
func (o *Optimizer) Apply(ctx context.Context, name domain.ActionName) (string, error) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	if _, ok := o.actions[name]; !ok {
		return "", fmt.Errorf("optimizer: unknown action %q", name)
	}
	return o.applyLocked(ctx, name, "manual"), nil
}

func (o *Optimizer) applyLocked(ctx context.Context, name domain.ActionName, trigger string) string {
	action, ok := o.actions[name]
	if !ok {
		return ResultSkipped
	}
	st := o.state[name]
	now := o.now()

	// Applied -> Idle только после cool-down и не в том же тике
	if st.Applied > 0 && (st.LastTick == o.tick || now.Sub(st.LastAppliedAt) < o.cfg.Cooldown) {
		o.metrics.OptimizationActions.WithLabelValues(string(name), ResultSkipped).Inc()
		return ResultSkipped
	}

	if err := safeApply(ctx, action); err != nil {
		o.metrics.OptimizationActions.WithLabelValues(string(name), ResultFailed).Inc()
		o.logger.Warn("optimization action failed", zap.String("action", string(name)), zap.Error(err))
		return ResultFailed
	}

	st.Applied++
	st.LastAppliedAt = now
	st.LastTick = o.tick
	o.metrics.OptimizationActions.WithLabelValues(string(name), ResultApplied).Inc()

	if o.recorder != nil {
		o.recorder.Log(journal.NewEvent(journal.KindOptimization, map[string]interface{}{
			"action":  string(name),
			"trigger": trigger,
			"tick":    o.tick,
		}))
	}
	return ResultApplied
}

// maybeClearBanner баннер снимается, когда сеть снова доступна
func (o *Optimizer) maybeClearBanner(snap domain.MetricsSnapshot, report *domain.AuditReport) {
	if !o.flags.Get().OfflineBanner {
		return
	}
	if snap.Network == nil || !snap.Network.Online {
		return
	}
	if report != nil {
		if res, ok := report.Result(domain.CategoryNetworking); ok && res.Status == domain.StatusFail {
			return
		}
	}
	if o.flags.SetOfflineBanner(false) {
		o.logger.Info("network back online: offline banner cleared")
	}
}

// Adapt пересчитывает флаги по классу сети и памяти. Вызывается на старте
// и при смене сети.
func (o *Optimizer) Adapt(n *domain.NetworkStats, m *domain.MemoryStats) domain.FeatureFlags {
	flags := o.flags.Adapt(n, m)
	o.logger.Debug("feature flags adapted",
		zap.String("connection", ConnectionClass(n)),
		zap.Bool("high_quality_assets", flags.HighQualityAssets),
		zap.Bool("background_sync", flags.BackgroundSync),
		zap.Bool("reduced_animations", flags.ReducedAnimations),
		zap.Bool("limited_caching", flags.LimitedCaching))
	return flags
}

func (o *Optimizer) FeatureFlags() domain.FeatureFlags {
	return o.flags.Get()
}

// Actions состояние действий для дашборда
func (o *Optimizer) Actions() []domain.OptimizationAction {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	out := make([]domain.OptimizationAction, 0, len(o.state))
	for _, st := range o.state {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start цикл тиков. Повторный вызов ничего не делает.
func (o *Optimizer) Start(ctx context.Context) {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	if o.cancel != nil {
		return
	}

	snap := o.snapshot.Current()
	o.Adapt(snap.Network, snap.Memory)

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.stopped = make(chan struct{})

	go func(stopped chan struct{}) {
		defer close(stopped)
		ticker := time.NewTicker(o.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.Tick(ctx)
			}
		}
	}(o.stopped)
}

func (o *Optimizer) Stop() {
	o.lifeMu.Lock()
	cancel, stopped := o.cancel, o.stopped
	o.cancel, o.stopped = nil, nil
	o.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func safeApply(ctx context.Context, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return a.Apply(ctx)
}
