package engine

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/telemetry"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ID от прокси или UI, иначе новый
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceID безопасно достает ID в любом месте кода
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000"
}

// PanicReporter получатель перехваченных паник (recovery.Manager)
type PanicReporter interface {
	ReportPanic(where string, v interface{})
}

// RecoverMiddleware превращает панику обработчика в 500 и сигнал uncaught_error.
// http.ErrAbortHandler пробрасывается дальше, как того ждет net/http.
func RecoverMiddleware(rep PanicReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				rep.ReportPanic(r.Method+" "+r.URL.Path, rv)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": "internal_error", "trace_id": "` + TraceID(r.Context()) + `"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// InstrumentMiddleware: учет ресурсов (объем и медленные ответы) и latency API
func InstrumentMiddleware(tracker *telemetry.ResourceTracker, metrics *infra.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			tracker.Observe(sw.bytes, elapsed)
			metrics.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Observe(elapsed.Seconds())
			logger.Debug("request served",
				zap.String("trace_id", TraceID(r.Context())),
				zap.String("route", route),
				zap.Int("status", sw.status),
				zap.Duration("elapsed", elapsed))
		})
	}
}
