package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/vitals/internal/domain"
)

func nominal() domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		Memory:     &domain.MemoryStats{UsedMB: 400, TotalMB: 1000, UsagePercent: 40},
		Network:    &domain.NetworkStats{Online: true, EffectiveType: domain.EffectiveType4G},
		Surface:    &domain.SurfaceStats{ElementCount: 500},
		Navigation: &domain.NavigationTiming{DNSMs: 5, TCPMs: 10, RequestResponseMs: 200, ProcessingMs: 100},
	}
}

func TestScore_AllFieldsAbsent(t *testing.T) {
	got := Score(domain.MetricsSnapshot{})
	assert.Equal(t, 100, got.Value)
	assert.Empty(t, got.Recommendations)
}

func TestScore_HighMemory(t *testing.T) {
	s := domain.MetricsSnapshot{
		Memory:  &domain.MemoryStats{UsagePercent: 85},
		Network: &domain.NetworkStats{Online: true},
		Surface: &domain.SurfaceStats{ElementCount: 500},
	}
	got := Score(s)
	assert.Equal(t, 70, got.Value)
	assert.Equal(t, []string{TextMemoryHigh}, got.Texts())
}

func TestScore_Offline(t *testing.T) {
	s := nominal()
	s.Network.Online = false

	got := Score(s)
	assert.Equal(t, 75, got.Value)
	assert.True(t, got.Has(domain.MetricNetwork))
	assert.Contains(t, got.Texts(), TextOffline)
}

func TestScore_MemoryMonotonicity(t *testing.T) {
	score := func(pct float64) int {
		s := nominal()
		s.Memory.UsagePercent = pct
		return Score(s).Value
	}

	base := score(60)
	elevated := score(60.1)
	high := score(80.1)

	assert.Equal(t, 100, base)
	assert.Equal(t, base-15, elevated)
	assert.Equal(t, base-30, high)
	assert.Equal(t, high, score(100))
}

func TestScore_Penalties(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.MetricsSnapshot)
		want   int
		metric string
	}{
		{
			name:   "slow navigation",
			mutate: func(s *domain.MetricsSnapshot) { s.Navigation.ProcessingMs = 10_000 },
			want:   90,
			metric: domain.MetricNavigation,
		},
		{
			name:   "large element tree",
			mutate: func(s *domain.MetricsSnapshot) { s.Surface.ElementCount = 1001 },
			want:   90,
			metric: domain.MetricSurface,
		},
		{
			name:   "exactly at element threshold",
			mutate: func(s *domain.MetricsSnapshot) { s.Surface.ElementCount = 1000 },
			want:   100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := nominal()
			tt.mutate(&s)
			got := Score(s)
			assert.Equal(t, tt.want, got.Value)
			if tt.metric != "" {
				assert.True(t, got.Has(tt.metric))
			} else {
				assert.Empty(t, got.Recommendations)
			}
		})
	}
}

func TestScore_EverythingBadStaysInRange(t *testing.T) {
	s := domain.MetricsSnapshot{
		Memory:     &domain.MemoryStats{UsagePercent: 99},
		Network:    &domain.NetworkStats{Online: false},
		Surface:    &domain.SurfaceStats{ElementCount: 50_000},
		Navigation: &domain.NavigationTiming{RequestResponseMs: 60_000},
	}
	got := Score(s)
	assert.Equal(t, 25, got.Value)
	assert.Equal(t, []string{TextMemoryHigh, TextOffline, TextNavigationSlow, TextElementTree}, got.Texts())
	assert.GreaterOrEqual(t, got.Value, 0)
	assert.LessOrEqual(t, got.Value, 100)
}
