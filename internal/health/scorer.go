// Package health сводит снимок телеметрии к баллу 0..100 и списку рекомендаций.
// Чистые функции: без I/O и побочных эффектов, можно звать с любой частотой.
package health

import "github.com/xela07ax/vitals/internal/domain"

// Пороги и штрафы
const (
	MemoryHighPercent     = 80.0
	MemoryElevatedPercent = 60.0
	NavigationSlowMs      = 10_000.0
	ElementTreeLarge      = 1000

	PenaltyMemoryHigh     = 30
	PenaltyMemoryElevated = 15
	PenaltyOffline        = 25
	PenaltyNavigation     = 10
	PenaltyElementTree    = 10
)

// Тексты рекомендаций
const (
	TextMemoryHigh     = "high memory usage"
	TextMemoryElevated = "elevated memory usage"
	TextOffline        = "offline mode: network unavailable"
	TextNavigationSlow = "slow page load"
	TextElementTree    = "large element tree"
)

// Breaches какие метрики нарушили порог. Общая логика для балла и оптимизатора.
type Breaches struct {
	MemoryHigh     bool
	MemoryElevated bool
	Offline        bool
	NavigationSlow bool
	ElementTree    bool
}

// Any хотя бы одно нарушение
func (b Breaches) Any() bool {
	return b.MemoryHigh || b.MemoryElevated || b.Offline || b.NavigationSlow || b.ElementTree
}

// MemoryPressure память выше 60%
func (b Breaches) MemoryPressure() bool {
	return b.MemoryHigh || b.MemoryElevated
}

// Detect отсутствующие поля не нарушают ничего
func Detect(s domain.MetricsSnapshot) Breaches {
	var b Breaches
	if s.Memory != nil {
		switch {
		case s.Memory.UsagePercent > MemoryHighPercent:
			b.MemoryHigh = true
		case s.Memory.UsagePercent > MemoryElevatedPercent:
			b.MemoryElevated = true
		}
	}
	if s.Network != nil && !s.Network.Online {
		b.Offline = true
	}
	if s.Navigation != nil && s.Navigation.TotalMs() > NavigationSlowMs {
		b.NavigationSlow = true
	}
	if s.Surface != nil && s.Surface.ElementCount > ElementTreeLarge {
		b.ElementTree = true
	}
	return b
}

// Score считает балл. Порядок рекомендаций: память, сеть, навигация, дерево.
func Score(s domain.MetricsSnapshot) domain.HealthScore {
	b := Detect(s)
	value := 100
	recs := make([]domain.Recommendation, 0)

	switch {
	case b.MemoryHigh:
		value -= PenaltyMemoryHigh
		recs = append(recs, domain.Recommendation{Text: TextMemoryHigh, Metric: domain.MetricMemory})
	case b.MemoryElevated:
		value -= PenaltyMemoryElevated
		recs = append(recs, domain.Recommendation{Text: TextMemoryElevated, Metric: domain.MetricMemory})
	}
	if b.Offline {
		value -= PenaltyOffline
		recs = append(recs, domain.Recommendation{Text: TextOffline, Metric: domain.MetricNetwork})
	}
	if b.NavigationSlow {
		value -= PenaltyNavigation
		recs = append(recs, domain.Recommendation{Text: TextNavigationSlow, Metric: domain.MetricNavigation})
	}
	if b.ElementTree {
		value -= PenaltyElementTree
		recs = append(recs, domain.Recommendation{Text: TextElementTree, Metric: domain.MetricSurface})
	}

	return domain.HealthScore{Value: clamp(value), Recommendations: recs}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
