// Package engine содержит корень композиции сервиса мониторинга. Сборщик телеметрии,
// аудит, оптимизатор, восстановление и журнал живут внутри одного Supervisor.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/audit"
	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/health"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/journal"
	"github.com/xela07ax/vitals/internal/optimizer"
	"github.com/xela07ax/vitals/internal/recovery"
	"github.com/xela07ax/vitals/internal/store"
	"github.com/xela07ax/vitals/internal/surface"
	"github.com/xela07ax/vitals/internal/telemetry"
)

// Options внешние зависимости супервизора. Surface и Resources в Sources
// можно не задавать: их займут реестр элементов и трекер ресурсов супервизора.
type Options struct {
	Sources    telemetry.Sources
	Stores     []store.KV
	Storage    journal.Storage
	Hinter     optimizer.Hinter
	Strategies []recovery.Strategy // nil: clear_storage, soft_reset, hard_restart

	// AuditProber зонд аудита сети. nil: независимая копия HTTP-зонда сборщика
	AuditProber telemetry.Prober
}

type Supervisor struct {
	cfg     *infra.Config
	metrics *infra.Metrics
	logger  *zap.Logger

	registry   *surface.Registry
	tracker    *telemetry.ResourceTracker
	collector  *telemetry.Collector
	auditor    *audit.Orchestrator
	flags      *optimizer.Flags
	prefetcher *optimizer.Prefetcher
	optimizer  *optimizer.Optimizer
	recovery   *recovery.Manager
	journal    *journal.Journal

	mu         sync.Mutex
	running    bool
	unregister []func()
}

func NewSupervisor(cfg *infra.Config, opts Options, metrics *infra.Metrics, logger *zap.Logger) *Supervisor {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Supervisor{
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("supervisor"),
		registry: surface.NewRegistry(),
		tracker:  telemetry.NewResourceTracker(cfg.Monitor.SlowResourceThreshold),
	}

	src := opts.Sources
	if src.Surface == nil {
		src.Surface = s.registry
	}
	if src.Resources == nil {
		src.Resources = s.tracker
	}

	s.journal = journal.New(opts.Storage, metrics, logger)

	auditProber := opts.AuditProber
	if auditProber == nil {
		auditProber = src.Probe
		if hp, ok := src.Probe.(*telemetry.HTTPProber); ok {
			auditProber = hp.Independent("audit_probe")
		}
	}

	s.collector = telemetry.NewCollector(src, telemetry.CollectorConfig{
		FastInterval:   cfg.Monitor.FastInterval,
		MediumInterval: cfg.Monitor.MediumInterval,
		SlowInterval:   cfg.Monitor.SlowInterval,
		SampleTimeout:  cfg.Monitor.ProbeTimeout,
	}, metrics, logger)

	s.auditor = audit.NewOrchestrator(audit.DefaultChecks(audit.Deps{
		Snapshot:        s.collector,
		Surface:         s.registry,
		Prober:          auditProber,
		Stores:          opts.Stores,
		ExpectedRegions: cfg.Audit.ExpectedRegions,
		SecureTransport: cfg.Server.TLSEnabled(),
	}), audit.Config{
		Interval:     cfg.Audit.Interval,
		CheckTimeout: cfg.Audit.CheckTimeout,
		Weights:      cfg.Audit.Weights,
	}, metrics, logger)
	s.auditor.Subscribe(s.onReport)

	hinter := opts.Hinter
	if hinter == nil {
		hinter = optimizer.NewHTTPHinter(cfg.Optimizer.PrefetchBase)
	}
	s.flags = optimizer.NewFlags()
	s.prefetcher = optimizer.NewPrefetcher(s.registry, hinter, cfg.Optimizer.PrefetchRadius, logger)
	s.optimizer = optimizer.New(optimizer.Config{
		TickInterval:   cfg.Optimizer.TickInterval,
		ScoreThreshold: cfg.Optimizer.ScoreThreshold,
		Cooldown:       cfg.Optimizer.Cooldown,
	}, s.collector, s.auditor, s.flags,
		optimizer.DefaultActions(s.registry, s.prefetcher, s.flags),
		s.journal, metrics, logger)

	strategies := opts.Strategies
	if strategies == nil {
		strategies = []recovery.Strategy{
			recovery.ClearStorage{Stores: opts.Stores},
			recovery.SoftReset{Reset: s.registry.Reset},
			recovery.NewHardRestart(cfg.Recovery.HardRestart, logger),
		}
	}
	s.recovery = recovery.NewManager(recovery.Config{
		MaxFailures: cfg.Recovery.MaxFailures,
		HistorySize: cfg.Recovery.HistorySize,
	}, strategies, s.journal, metrics, logger)

	return s
}

// InitializeMonitoring запускает все контуры и ждет первый отчет аудита,
// но не дольше monitor.startup_timeout. Истекший таймаут не ошибка.
// Повторный вызов на работающем супервизоре ничего не делает.
func (s *Supervisor) InitializeMonitoring(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	// контуры живут до ShutdownMonitoring, а не до конца запроса, который их поднял
	runCtx := context.WithoutCancel(ctx)

	s.journal.Start()
	s.recovery.Start(runCtx)
	s.collector.Start(runCtx)
	s.unregister = append(s.unregister,
		s.collector.OnOffline(s.recovery.ReportOffline),
		s.collector.OnNetworkChange(func(n domain.NetworkStats) {
			s.optimizer.Adapt(&n, s.collector.Current().Memory)
		}),
	)
	first := s.auditor.Start(runCtx)
	s.optimizer.Start(runCtx)
	s.running = true
	s.mu.Unlock()

	s.logger.Info("monitoring initialized")

	timer := time.NewTimer(s.cfg.Monitor.StartupTimeout)
	defer timer.Stop()
	select {
	case <-first:
		return nil
	case <-timer.C:
		s.logger.Warn("first audit not ready within startup timeout, continuing",
			zap.Duration("timeout", s.cfg.Monitor.StartupTimeout))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownMonitoring останавливает контуры, снимает обработчики и дожидается
// сброса журнала. Если ctx истек раньше, возвращает ошибку, остановка доходит в фоне.
func (s *Supervisor) ShutdownMonitoring(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	unregister := s.unregister
	s.unregister = nil

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer s.mu.Unlock()

		for _, fn := range unregister {
			fn()
		}
		s.optimizer.Stop()
		s.auditor.Stop()
		s.collector.Stop()
		s.recovery.Stop()
		s.journal.Stop()
	}()

	select {
	case <-done:
		s.logger.Info("monitoring stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown monitoring: %w", ctx.Err())
	}
}

// Restart: ручной повтор из безопасного режима
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.ShutdownMonitoring(ctx); err != nil {
		return err
	}
	return s.InitializeMonitoring(ctx)
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// onReport: журнал отчета аудита и балла здоровья на момент отчета
func (s *Supervisor) onReport(r domain.AuditReport) {
	categories := make(map[string]interface{}, len(r.Categories))
	for _, c := range r.Categories {
		categories[string(c.Name)] = string(c.Status)
	}
	ev := journal.NewEvent(journal.KindAuditReport, map[string]interface{}{
		"report_id":     r.ID,
		"overall_score": r.OverallScore,
		"categories":    categories,
	})
	ev.TraceID = r.ID
	s.journal.Log(ev)

	score := s.Health()
	s.journal.Log(journal.NewEvent(journal.KindHealth, map[string]interface{}{
		"value":           score.Value,
		"recommendations": score.Texts(),
	}))
}

// Refresh синхронный опрос всех полей (CLI)
func (s *Supervisor) Refresh(ctx context.Context) domain.MetricsSnapshot {
	return s.collector.Refresh(ctx)
}

func (s *Supervisor) Snapshot() domain.MetricsSnapshot {
	return s.collector.Current()
}

// Health балл по текущему снимку
func (s *Supervisor) Health() domain.HealthScore {
	score := health.Score(s.collector.Current())
	s.metrics.HealthScore.Set(float64(score.Value))
	return score
}

func (s *Supervisor) LatestAudit() (domain.AuditReport, bool) {
	return s.auditor.Latest()
}

// RunAudit внеочередной прогон аудита
func (s *Supervisor) RunAudit(ctx context.Context) domain.AuditReport {
	return s.auditor.RunAudit(ctx)
}

func (s *Supervisor) Flags() domain.FeatureFlags {
	return s.optimizer.FeatureFlags()
}

func (s *Supervisor) RecoveryState() domain.FailureRecord {
	return s.recovery.State()
}

func (s *Supervisor) RecoveryEvents() []domain.RecoveryEvent {
	return s.recovery.Events()
}

// Dashboard агрегат для виджетов UI
func (s *Supervisor) Dashboard() domain.Dashboard {
	snap := s.collector.Current()
	score := health.Score(snap)
	s.metrics.HealthScore.Set(float64(score.Value))

	d := domain.Dashboard{
		Snapshot: snap,
		Health:   score,
		Flags:    s.optimizer.FeatureFlags(),
		Recovery: s.recovery.State(),
		Actions:  s.optimizer.Actions(),
	}
	if r, ok := s.auditor.Latest(); ok {
		d.Audit = &r
	}
	return d
}

// ApplyAction ручное применение действия оптимизатора
func (s *Supervisor) ApplyAction(ctx context.Context, name domain.ActionName) (string, error) {
	return s.optimizer.Apply(ctx, name)
}

func (s *Supervisor) Actions() []domain.OptimizationAction {
	return s.optimizer.Actions()
}

// ReplaceSurface UI присылает свое дерево элементов целиком
func (s *Supervisor) ReplaceSurface(els []surface.Element) domain.SurfaceStats {
	s.registry.Replace(els)
	return s.registry.Stats()
}

// ObservePointer позиция указателя -> подсказки предзагрузки
func (s *Supervisor) ObservePointer(ctx context.Context, x, y float64) []string {
	return s.prefetcher.Observe(ctx, x, y)
}

func (s *Supervisor) Registry() *surface.Registry { return s.registry }
func (s *Supervisor) Tracker() *telemetry.ResourceTracker { return s.tracker }
func (s *Supervisor) Recovery() *recovery.Manager { return s.recovery }
func (s *Supervisor) Optimizer() *optimizer.Optimizer { return s.optimizer }
func (s *Supervisor) Journal() journal.Recorder { return s.journal }
