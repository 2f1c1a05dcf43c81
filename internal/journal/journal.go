// Package journal: неблокирующий журнал событий мониторинга.
//
// События копятся в буфере и пишутся пачками (100 штук или по таймеру 500мс).
// При остановке буфер вычитывается полностью, затем финальный flush.
// Переполнение буфера не блокирует вызывающего: событие сбрасывается (load shedding).
package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/infra"
)

const (
	bufferSize    = 10000
	batchSize     = 100
	flushInterval = 500 * time.Millisecond
)

// Storage определяет, куда физически сохраняются события
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Recorder: то, что нужно компонентам мониторинга
type Recorder interface {
	Log(event Event)
}

type Journal struct {
	repo    Storage
	metrics *infra.Metrics
	logger  *zap.Logger

	// mu защищает ch и closed: Log держит RLock на время отправки,
	// Stop закрывает канал под Lock, поэтому отправки в закрытый канал не бывает
	mu     sync.RWMutex
	ch     chan Event
	closed bool
	wg     sync.WaitGroup
}

// New repo может быть nil: тогда события только пишутся в debug-лог
func New(repo Storage, metrics *infra.Metrics, logger *zap.Logger) *Journal {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "journal")),
		closed:  true,
	}
	if j.repo == nil {
		j.repo = logStorage{logger: j.logger}
	}
	return j
}

// Start запускает воркер. После Stop можно запустить снова.
func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		return
	}
	j.ch = make(chan Event, bufferSize)
	j.closed = false
	j.wg.Add(1)
	go j.worker(j.ch)
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.logger.Debug("journal event dropped: journal is stopped",
			zap.String("id", event.ID), zap.String("kind", string(event.Kind)))
		return
	}

	select {
	case j.ch <- event:
	default:
		// Backpressure: не блокируем мониторинг из-за медленного хранилища
		j.logger.Error("journal_buffer_overflow",
			zap.String("id", event.ID),
			zap.String("kind", string(event.Kind)),
		)
	}
}

func (j *Journal) worker(ch <-chan Event) {
	defer j.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		j.metrics.JournalBufferFill.Set(float64(len(ch)))
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]Event, 0, batchSize)
	}

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				// канал закрыт только после вычитки всего, что в нем было
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type logStorage struct {
	logger *zap.Logger
}

func (s logStorage) WriteBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Debug("journal event",
			zap.String("id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.Any("payload", e.Payload))
	}
	return nil
}
