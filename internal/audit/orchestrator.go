// Package audit: периодическая многокатегорийная инспекция рантайма.
// Дороже, чем балл здоровья, поэтому запускается редко (раз в 5 минут) и по требованию.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra"
)

var tracer = otel.Tracer("vitals.audit")

type Config struct {
	Interval     time.Duration
	CheckTimeout time.Duration
	Weights      map[string]float64 // по имени категории, нет веса: 1
}

type Orchestrator struct {
	checks  []Check
	cfg     Config
	metrics *infra.Metrics
	logger  *zap.Logger
	now     func() time.Time

	runMu  sync.Mutex // прогоны не перекрываются
	mu     sync.RWMutex
	latest *domain.AuditReport

	subMu       sync.Mutex
	subscribers []func(domain.AuditReport)

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewOrchestrator(checks []Check, cfg Config, metrics *infra.Metrics, logger *zap.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		checks:  checks,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("audit"),
		now:     time.Now,
	}
}

// Subscribe получает каждый готовый отчет (журнал, оптимизатор)
func (o *Orchestrator) Subscribe(fn func(domain.AuditReport)) {
	o.subMu.Lock()
	o.subscribers = append(o.subscribers, fn)
	o.subMu.Unlock()
}

// RunAudit: один прогон всех категорий. Никогда не возвращает ошибку:
// сбой категории превращается в fail с деталями.
func (o *Orchestrator) RunAudit(ctx context.Context) domain.AuditReport {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	ctx, span := tracer.Start(ctx, "audit.Run",
		trace.WithAttributes(attribute.Int("audit.categories", len(o.checks))))
	defer span.End()

	report := domain.AuditReport{
		ID:         uuid.NewString(),
		StartedAt:  o.now(),
		Categories: make([]domain.CategoryResult, len(o.checks)),
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i, check := range o.checks {
		g.Go(func() error {
			report.Categories[i] = o.runCheck(gCtx, check)
			return nil
		})
	}
	_ = g.Wait()

	report.CompletedAt = o.now()
	report.OverallScore = o.overall(report.Categories)

	o.record(report)
	span.SetAttributes(attribute.Float64("audit.overall_score", report.OverallScore))
	if failing := report.Failing(); len(failing) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d categories failing", len(failing)))
	}

	o.mu.Lock()
	o.latest = &report
	o.mu.Unlock()

	o.subMu.Lock()
	subs := append([](func(domain.AuditReport))(nil), o.subscribers...)
	o.subMu.Unlock()
	for _, fn := range subs {
		fn(cloneReport(report))
	}

	return cloneReport(report)
}

// runCheck изолирует категорию: паника, таймаут или зависание дают fail
func (o *Orchestrator) runCheck(ctx context.Context, check Check) domain.CategoryResult {
	ctx, span := tracer.Start(ctx, "audit."+string(check.Category))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CheckTimeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failed("check panicked: %v", r)
			}
		}()
		done <- check.Run(ctx)
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = Failed("check timed out: %v", ctx.Err())
	}
	if out.Status == "" {
		out.Status = domain.StatusFail
	}

	span.SetAttributes(attribute.String("audit.status", string(out.Status)))
	if out.Status == domain.StatusFail {
		span.SetStatus(codes.Error, out.Details)
		o.logger.Warn("audit category failed",
			zap.String("category", string(check.Category)),
			zap.String("details", out.Details))
	}

	return domain.CategoryResult{
		Name:    check.Category,
		Status:  out.Status,
		Details: out.Details,
		Score:   out.Status.Score(),
	}
}

// overall взвешенное среднее, 0..100
func (o *Orchestrator) overall(results []domain.CategoryResult) float64 {
	var sum, weights float64
	for _, r := range results {
		w := 1.0
		if cw, ok := o.cfg.Weights[string(r.Name)]; ok {
			w = cw
		}
		if w <= 0 {
			continue
		}
		sum += w * r.Score
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights * 100
}

func (o *Orchestrator) record(r domain.AuditReport) {
	o.metrics.AuditDuration.Observe(r.CompletedAt.Sub(r.StartedAt).Seconds())
	o.metrics.AuditOverallScore.Set(r.OverallScore)
	for _, c := range r.Categories {
		o.metrics.AuditCategoryScore.WithLabelValues(string(c.Name)).Set(c.Score)
	}
	o.logger.Info("audit completed",
		zap.String("id", r.ID),
		zap.Float64("overall_score", r.OverallScore),
		zap.Int("failing", len(r.Failing())))
}

// Latest последний отчет, false: аудит еще не выполнялся
func (o *Orchestrator) Latest() (domain.AuditReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return domain.AuditReport{}, false
	}
	return cloneReport(*o.latest), true
}

// Start первый прогон сразу, дальше по интервалу. Возвращаемый канал закрывается
// после первого отчета. Повторный Start возвращает уже закрытый канал.
func (o *Orchestrator) Start(ctx context.Context) <-chan struct{} {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	first := make(chan struct{})
	if o.cancel != nil {
		close(first)
		return first
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.stopped = make(chan struct{})

	go func(stopped chan struct{}) {
		defer close(stopped)
		o.RunAudit(ctx)
		close(first)

		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.RunAudit(ctx)
			}
		}
	}(o.stopped)

	return first
}

// Stop останавливает цикл и ждет текущий прогон
func (o *Orchestrator) Stop() {
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

func cloneReport(r domain.AuditReport) domain.AuditReport {
	r.Categories = append([]domain.CategoryResult(nil), r.Categories...)
	return r
}
