package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra"
)

type ProbeConfig struct {
	Name     string // метка предохранителя в метриках, по умолчанию "probe"
	URL      string
	Timeout  time.Duration // общий бюджет зонда вместе с ретраями
	MaxBytes int64
	Attempts uint
}

// HTTPProber активный сетевой зонд: небольшой GET с ограничением размера,
// обернутый в лимитер, предохранитель и ретраи.
type HTTPProber struct {
	cfg     ProbeConfig
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *infra.Metrics
	base    *zap.Logger
	logger  *zap.Logger
}

func NewHTTPProber(cfg ProbeConfig, metrics *infra.Metrics, logger *zap.Logger) *HTTPProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.Name == "" {
		cfg.Name = "probe"
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &HTTPProber{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		base:    logger,
		logger:  logger.Named(cfg.Name),
		// плановый зонд раз в 10с плюс аудиты по требованию
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}

	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second, // через сколько CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			p.logger.Warn("probe circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return p
}

// Probe измеряет время и объем передачи. Любая ошибка означает "результата нет".
func (p *HTTPProber) Probe(ctx context.Context) (domain.RoundTrip, error) {
	if p.cfg.URL == "" {
		return domain.RoundTrip{}, ErrUnavailable
	}
	if !p.limiter.Allow() {
		return domain.RoundTrip{}, ErrProbeThrottled
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	started := time.Now()
	res, err := p.cb.Execute(func() (interface{}, error) {
		var rt domain.RoundTrip

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(p.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			rt, callErr = p.once(ctx)
			return callErr
		})
		return rt, retryErr
	})

	if err != nil {
		p.metrics.ProbeDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		return domain.RoundTrip{}, fmt.Errorf("probe %s: %w", p.cfg.URL, err)
	}

	rt := res.(domain.RoundTrip)
	p.metrics.ProbeDuration.WithLabelValues("ok").Observe(rt.ElapsedMs / 1000)
	return rt, nil
}

func (p *HTTPProber) once(ctx context.Context) (domain.RoundTrip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return domain.RoundTrip{}, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return domain.RoundTrip{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.RoundTrip{}, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return domain.RoundTrip{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.cfg.MaxBytes))
	if err != nil {
		return domain.RoundTrip{}, err
	}
	elapsed := time.Since(start)

	rt := domain.RoundTrip{
		ElapsedMs: float64(elapsed) / float64(time.Millisecond),
		Bytes:     n,
		At:        start,
	}
	if elapsed > 0 {
		rt.ThroughputMbps = float64(n*8) / elapsed.Seconds() / 1e6
	}
	return rt, nil
}

// parseRetryAfter поддерживает только форму в секундах
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Independent зонд на тот же URL со своими лимитером и предохранителем.
// Аудит пользуется им, чтобы не тратить токены и не открывать предохранитель сборщика.
func (p *HTTPProber) Independent(name string) *HTTPProber {
	cfg := p.cfg
	cfg.Name = name
	return NewHTTPProber(cfg, p.metrics, p.base)
}

// BreakerState текущее состояние предохранителя (для аудита сети)
func (p *HTTPProber) BreakerState() gobreaker.State {
	return p.cb.State()
}
