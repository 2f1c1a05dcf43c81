// Package recovery: глобальный супервизор восстановления с эскалацией.
//
// Healthy (count=0) -> Degraded (0<count<MAX) -> Escalating (count>=MAX) -> Healthy.
// Все сигналы отказов обрабатываются одной горутиной-обработчиком.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/journal"
)

var tracer = otel.Tracer("vitals.recovery")

// ErrAllStrategiesFailed: ни одна стратегия не отработала; счетчик все равно сброшен
var ErrAllStrategiesFailed = errors.New("recovery: all strategies failed")

// Strategy: один шаг упорядоченной эскалации
type Strategy interface {
	Name() string
	Attempt(ctx context.Context) error
}

type Config struct {
	MaxFailures int
	HistorySize int
}

const signalBuffer = 64

type Manager struct {
	cfg        Config
	strategies []Strategy
	recorder   journal.Recorder
	metrics    *infra.Metrics
	logger     *zap.Logger
	now        func() time.Time

	signals chan domain.Failure

	// handleMu: обработка сигналов строго последовательная
	handleMu sync.Mutex

	mu      sync.RWMutex
	count   int
	state   domain.RecoveryState
	recent  []domain.Failure
	events  []domain.RecoveryEvent
	lastErr error

	// lifeMu: running, cancel и прием сигналов. Остановленный менеджер сигналы не принимает.
	lifeMu   sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopped  chan struct{}
	inflight sync.WaitGroup // обработка вне основной горутины (буфер был полон)
}

func NewManager(cfg Config, strategies []Strategy, recorder journal.Recorder, metrics *infra.Metrics, logger *zap.Logger) *Manager {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		strategies: strategies,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger.Named("recovery"),
		now:        time.Now,
		signals:    make(chan domain.Failure, signalBuffer),
		state:      domain.RecoveryHealthy,
	}
}

// Start запускает горутину-обработчик сигналов
func (m *Manager) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.running {
		return
	}
	m.discard()
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})
	m.running = true

	go func(stopped chan struct{}) {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				m.drain()
				return
			case f := <-m.signals:
				m.Handle(context.WithoutCancel(ctx), f)
			}
		}
	}(m.stopped)
}

// Stop перестает принимать сигналы, обрабатывает принятые до остановки
// и дожидается обработчика. После возврата ни одна стратегия не запускается.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	if !m.running {
		m.lifeMu.Unlock()
		return
	}
	m.running = false
	cancel, stopped := m.cancel, m.stopped
	m.cancel, m.stopped = nil, nil
	m.lifeMu.Unlock()

	cancel()
	<-stopped
	m.inflight.Wait()
}

func (m *Manager) Running() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.running
}

// discard выбрасывает все, что лежит в буфере
func (m *Manager) discard() {
	for {
		select {
		case <-m.signals:
		default:
			return
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case f := <-m.signals:
			m.Handle(context.Background(), f)
		default:
			return
		}
	}
}

// Report: неблокирующая подача сигнала отказа. Если буфер полон,
// сигнал обрабатывается отдельной горутиной (все равно последовательно).
// Пока менеджер остановлен, сигналы отбрасываются.
func (m *Manager) Report(f domain.Failure) {
	if f.At.IsZero() {
		f.At = m.now()
	}

	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if !m.running {
		m.logger.Debug("recovery stopped, failure signal dropped",
			zap.String("type", string(f.Kind)), zap.String("message", f.Message))
		return
	}
	select {
	case m.signals <- f:
	default:
		m.logger.Warn("failure signal buffer full, handling out of band", zap.String("type", string(f.Kind)))
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.Handle(context.Background(), f)
		}()
	}
}

// ReportPanic сигнал uncaught_error из перехваченной паники
func (m *Manager) ReportPanic(where string, v interface{}) {
	m.logger.Error("panic recovered",
		zap.String("where", where),
		zap.Any("panic", v),
		zap.ByteString("stack", debug.Stack()))
	m.Report(domain.Failure{Kind: domain.FailureUncaughtError, Message: fmt.Sprintf("%s: %v", where, v)})
}

// ReportOffline сигнал перехода в offline
func (m *Manager) ReportOffline() {
	m.Report(domain.Failure{Kind: domain.FailureOffline, Message: "network went offline"})
}

// Handle синхронная обработка одного сигнала. Возвращает события стратегий,
// если сигнал вызвал эскалацию.
func (m *Manager) Handle(ctx context.Context, f domain.Failure) []domain.RecoveryEvent {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	if f.At.IsZero() {
		f.At = m.now()
	}

	m.mu.Lock()
	m.count++
	count := m.count
	m.recent = append(m.recent, f)
	if len(m.recent) > m.cfg.HistorySize {
		m.recent = m.recent[len(m.recent)-m.cfg.HistorySize:]
	}
	if count >= m.cfg.MaxFailures {
		m.state = domain.RecoveryEscalating
	} else {
		m.state = domain.RecoveryDegraded
	}
	m.mu.Unlock()

	m.metrics.FailureSignals.WithLabelValues(string(f.Kind)).Inc()
	m.metrics.FailureCount.Set(float64(count))
	m.logger.Warn("failure signal",
		zap.String("type", string(f.Kind)),
		zap.String("count", fmt.Sprintf("%d/%d", count, m.cfg.MaxFailures)),
		zap.String("message", f.Message))
	m.journal(journal.KindFailure, map[string]interface{}{
		"type":    string(f.Kind),
		"message": f.Message,
		"count":   count,
	})

	if count < m.cfg.MaxFailures {
		return nil
	}
	return m.escalate(ctx)
}

// escalate стратегии по порядку до первой успешной. Стратегии не отменяются.
func (m *Manager) escalate(ctx context.Context) []domain.RecoveryEvent {
	ctx, span := tracer.Start(ctx, "recovery.Escalate")
	defer span.End()

	m.logger.Error("failure budget exhausted, escalating", zap.Int("max", m.cfg.MaxFailures))

	var events []domain.RecoveryEvent
	var recovered bool
	for _, s := range m.strategies {
		err := attempt(ctx, s)
		ev := domain.RecoveryEvent{
			ID:        uuid.NewString(),
			Strategy:  s.Name(),
			Succeeded: err == nil,
			At:        m.now(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		events = append(events, ev)
		m.record(ev)

		if err == nil {
			recovered = true
			span.SetAttributes(attribute.String("recovery.strategy", s.Name()))
			break
		}
		m.logger.Error("recovery strategy failed, trying next",
			zap.String("strategy", s.Name()), zap.Error(err))
	}

	m.mu.Lock()
	// счетчик сбрасывается в любом случае, иначе следующий сигнал снова запустит эскалацию
	m.count = 0
	m.state = domain.RecoveryHealthy
	if recovered {
		m.lastErr = nil
	} else {
		m.lastErr = ErrAllStrategiesFailed
	}
	m.mu.Unlock()
	m.metrics.FailureCount.Set(0)

	if !recovered {
		span.SetStatus(codes.Error, ErrAllStrategiesFailed.Error())
		m.logger.Error("all recovery strategies failed", zap.Error(ErrAllStrategiesFailed))
	}
	return events
}

func (m *Manager) record(ev domain.RecoveryEvent) {
	result := "ok"
	if !ev.Succeeded {
		result = "failed"
	}
	m.metrics.RecoveryAttempts.WithLabelValues(ev.Strategy, result).Inc()

	m.mu.Lock()
	m.events = append(m.events, ev)
	if len(m.events) > m.cfg.HistorySize {
		m.events = m.events[len(m.events)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	m.journal(journal.KindRecovery, map[string]interface{}{
		"strategy":  ev.Strategy,
		"succeeded": ev.Succeeded,
		"error":     ev.Error,
	})
}

func (m *Manager) journal(kind journal.Kind, payload map[string]interface{}) {
	if m.recorder != nil {
		m.recorder.Log(journal.NewEvent(kind, payload))
	}
}

// State снимок счетчика и последних отказов
func (m *Manager) State() domain.FailureRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.FailureRecord{
		Count:  m.count,
		Max:    m.cfg.MaxFailures,
		State:  m.state,
		Recent: append([]domain.Failure(nil), m.recent...),
	}
}

// Events последние попытки стратегий
func (m *Manager) Events() []domain.RecoveryEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.RecoveryEvent(nil), m.events...)
}

// LastError ErrAllStrategiesFailed, если последняя эскалация не помогла
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func attempt(ctx context.Context, s Strategy) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Attempt(ctx)
}
