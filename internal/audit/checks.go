package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/health"
	"github.com/xela07ax/vitals/internal/store"
	"github.com/xela07ax/vitals/internal/surface"
	"github.com/xela07ax/vitals/internal/telemetry"
)

// Check проверка одной категории. Проверки только читают состояние системы.
type Check struct {
	Category domain.Category
	Run      func(ctx context.Context) Outcome
}

type SnapshotSource interface {
	Current() domain.MetricsSnapshot
}

type RegionSource interface {
	Regions() map[string]surface.RegionState
}

// Deps: то, что инспектирует аудит
type Deps struct {
	Snapshot        SnapshotSource
	Surface         RegionSource
	Prober          telemetry.Prober
	Stores          []store.KV
	ExpectedRegions []string
	SecureTransport bool
}

// DefaultChecks шесть категорий в порядке отчета
func DefaultChecks(d Deps) []Check {
	return []Check{
		{Category: domain.CategoryComponents, Run: d.components},
		{Category: domain.CategoryFunctionality, Run: d.functionality},
		{Category: domain.CategoryPerformance, Run: d.performance},
		{Category: domain.CategoryNetworking, Run: d.networking},
		{Category: domain.CategoryUserInteraction, Run: d.userInteraction},
		{Category: domain.CategoryDataFlow, Run: d.dataFlow},
	}
}

// components: ожидаемые области UI присутствуют, хотя бы одна интерактивна
func (d Deps) components(ctx context.Context) Outcome {
	if d.Surface == nil {
		return Failed("surface registry not attached")
	}
	regions := d.Surface.Regions()

	conds := make([]Condition, 0, len(d.ExpectedRegions)+1)
	for _, name := range d.ExpectedRegions {
		conds = append(conds, Condition{
			Name: "region " + name,
			Test: func(context.Context) error {
				if !regions[name].Present {
					return errors.New("missing")
				}
				return nil
			},
		})
	}
	conds = append(conds, Condition{
		Name: "interactivity",
		Test: func(context.Context) error {
			for _, name := range d.ExpectedRegions {
				if regions[name].Interactive {
					return nil
				}
			}
			if len(d.ExpectedRegions) == 0 {
				return nil
			}
			return errors.New("no interactive region")
		},
	})
	return Evaluate(ctx, conds...)
}

// functionality: хранилища отвечают, транспорт защищен
func (d Deps) functionality(ctx context.Context) Outcome {
	conds := []Condition{{
		Name: "storage",
		Test: func(context.Context) error {
			if len(d.Stores) == 0 {
				return errors.New("no storage configured")
			}
			return nil
		},
	}}
	for _, kv := range d.Stores {
		conds = append(conds, Condition{
			Name: "storage " + kv.Name(),
			Test: func(ctx context.Context) error {
				// чтение несуществующего ключа: проверка доступности без записи
				_, err := kv.Get(ctx, "audit:absent:"+uuid.NewString())
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				return nil
			},
		})
	}
	conds = append(conds, Condition{
		Name:     "secure transport",
		Optional: true,
		Test: func(context.Context) error {
			if !d.SecureTransport {
				return errors.New("TLS not configured")
			}
			return nil
		},
	})
	return Evaluate(ctx, conds...)
}

// performance: по текущему снимку; отсутствующие поля не штрафуются
func (d Deps) performance(ctx context.Context) Outcome {
	if d.Snapshot == nil {
		return Failed("collector not attached")
	}
	b := health.Detect(d.Snapshot.Current())

	return Evaluate(ctx,
		Condition{Name: "memory", Test: func(context.Context) error {
			if b.MemoryHigh {
				return fmt.Errorf("usage above %.0f%%", health.MemoryHighPercent)
			}
			return nil
		}},
		Condition{Name: "memory headroom", Optional: true, Test: func(context.Context) error {
			if b.MemoryElevated {
				return fmt.Errorf("usage above %.0f%%", health.MemoryElevatedPercent)
			}
			return nil
		}},
		Condition{Name: "navigation", Test: func(context.Context) error {
			if b.NavigationSlow {
				return fmt.Errorf("load slower than %.0fms", health.NavigationSlowMs)
			}
			return nil
		}},
		Condition{Name: "element tree", Optional: true, Test: func(context.Context) error {
			if b.ElementTree {
				return fmt.Errorf("more than %d elements", health.ElementTreeLarge)
			}
			return nil
		}},
	)
}

// networking: линк поднят и сетевой вызов проходит
func (d Deps) networking(ctx context.Context) Outcome {
	return Evaluate(ctx,
		Condition{Name: "online", Test: func(context.Context) error {
			if d.Snapshot == nil {
				return nil
			}
			if n := d.Snapshot.Current().Network; n != nil && !n.Online {
				return errors.New("offline")
			}
			return nil
		}},
		Condition{Name: "round trip", Test: func(ctx context.Context) error {
			if d.Prober == nil {
				return errors.New("no prober configured")
			}
			_, err := d.Prober.Probe(ctx)
			if errors.Is(err, telemetry.ErrProbeThrottled) {
				return fmt.Errorf("%w: %v", ErrDegraded, err)
			}
			return err
		}},
	)
}

// userInteraction: часы, математика, таймеры и обработка синтетического ввода
func (d Deps) userInteraction(ctx context.Context) Outcome {
	return Evaluate(ctx,
		Condition{Name: "clock", Test: func(context.Context) error {
			start := time.Now()
			time.Sleep(time.Millisecond)
			if time.Since(start) <= 0 {
				return errors.New("monotonic clock is not advancing")
			}
			return nil
		}},
		Condition{Name: "math", Test: func(context.Context) error {
			if math.Sqrt(144) != 12 || math.Floor(2.5) != 2 || 7%3 != 1 {
				return errors.New("arithmetic mismatch")
			}
			return nil
		}},
		Condition{Name: "timer", Test: func(ctx context.Context) error {
			fired := make(chan struct{})
			t := time.AfterFunc(10*time.Millisecond, func() { close(fired) })
			defer t.Stop()
			select {
			case <-fired:
				return nil
			case <-time.After(250 * time.Millisecond):
				return errors.New("timer did not fire within 250ms")
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		Condition{Name: "input", Test: func(ctx context.Context) error {
			// синтетическое событие через отдельную горутину-обработчик
			in := make(chan int)
			out := make(chan int, 1)
			go func() { out <- <-in * 2 }()
			in <- 21
			select {
			case v := <-out:
				if v != 42 {
					return fmt.Errorf("handler returned %d", v)
				}
				return nil
			case <-time.After(250 * time.Millisecond):
				return errors.New("input handler unresponsive")
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	)
}

// dataFlow: запись/чтение во все хранилища. Проверочный ключ удаляется сразу,
// состояние приложения не меняется.
func (d Deps) dataFlow(ctx context.Context) Outcome {
	if len(d.Stores) == 0 {
		return Failed("no storage configured")
	}
	conds := make([]Condition, 0, len(d.Stores))
	for _, kv := range d.Stores {
		conds = append(conds, Condition{
			Name: kv.Name(),
			Test: func(ctx context.Context) error {
				key := "audit:probe:" + uuid.NewString()
				want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
				defer func() { _ = kv.Delete(context.WithoutCancel(ctx), key) }()

				if err := kv.Set(ctx, key, want, time.Minute); err != nil {
					return fmt.Errorf("write: %w", err)
				}
				got, err := kv.Get(ctx, key)
				if err != nil {
					return fmt.Errorf("read: %w", err)
				}
				if !bytes.Equal(got, want) {
					return errors.New("read back mismatch")
				}
				return nil
			},
		})
	}
	return Evaluate(ctx, conds...)
}
