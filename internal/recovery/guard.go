package recovery

import (
	"context"
	"fmt"

	"github.com/xela07ax/vitals/internal/domain"
)

// Go запускает супервизируемую горутину. Паника: uncaught_error,
// возвращенная ошибка: unhandled_rejection.
func (m *Manager) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.ReportPanic(name, r)
			}
		}()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			m.Report(domain.Failure{
				Kind:    domain.FailureUnhandledRejection,
				Message: fmt.Sprintf("%s: %v", name, err),
			})
		}
	}()
}

// Guard выполняет fn синхронно и превращает панику в ошибку и сигнал отказа
func (m *Manager) Guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.ReportPanic(name, r)
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn()
}
