package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/vitals/internal/domain"
)

func TestDeriveFlags(t *testing.T) {
	gb := func(v float64) *domain.MemoryStats { return &domain.MemoryStats{TotalMB: v * 1024} }
	net := func(et string, on bool) *domain.NetworkStats {
		return &domain.NetworkStats{Online: on, EffectiveType: et}
	}

	tests := []struct {
		name string
		net  *domain.NetworkStats
		mem  *domain.MemoryStats
		want domain.FeatureFlags
	}{
		{
			name: "fast network, big device",
			net:  net(domain.EffectiveType4G, true),
			mem:  gb(16),
			want: domain.FeatureFlags{HighQualityAssets: true, BackgroundSync: true},
		},
		{
			name: "unknown everything",
			want: domain.FeatureFlags{BackgroundSync: true},
		},
		{
			name: "slow network",
			net:  net(domain.EffectiveType2G, true),
			mem:  gb(8),
			want: domain.FeatureFlags{ReducedAnimations: true, LimitedCaching: true},
		},
		{
			name: "small device on 3g",
			net:  net(domain.EffectiveType3G, true),
			mem:  gb(1),
			want: domain.FeatureFlags{BackgroundSync: true, ReducedAnimations: true, LimitedCaching: true},
		},
		{
			name: "offline fast link",
			net:  net(domain.EffectiveType4G, false),
			mem:  gb(8),
			want: domain.FeatureFlags{HighQualityAssets: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveFlags(tt.net, tt.mem))
		})
	}
}

func TestFlags_AdaptKeepsBanner(t *testing.T) {
	f := NewFlags()
	assert.True(t, f.SetOfflineBanner(true))
	assert.False(t, f.SetOfflineBanner(true))

	got := f.Adapt(&domain.NetworkStats{Online: true, EffectiveType: domain.EffectiveTypeSlow2G}, nil)
	assert.True(t, got.OfflineBanner)
	assert.True(t, got.ReducedAnimations)
	assert.Equal(t, got, f.Get())
}
