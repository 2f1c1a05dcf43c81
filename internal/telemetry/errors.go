package telemetry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable: источник телеметрии отсутствует на этом хосте
	ErrUnavailable = errors.New("telemetry: source unavailable")
	// ErrProbeThrottled: зонд пропущен лимитером
	ErrProbeThrottled = errors.New("telemetry: probe throttled")
)

// ThrottleError: эндпоинт зонда ответил 429, RetryAfter взят из заголовка
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// Result: результат одного поля снимка. Err != nil означает "поле отсутствует".
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Ptr указатель на значение или nil, если поле недоступно
func (r Result[T]) Ptr() *T {
	if r.Err != nil {
		return nil
	}
	v := r.Value
	return &v
}
