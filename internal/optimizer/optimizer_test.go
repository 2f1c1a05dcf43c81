package optimizer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/health"
	"github.com/xela07ax/vitals/internal/surface"
)

type snapSource struct{ snap domain.MetricsSnapshot }

func (s *snapSource) Current() domain.MetricsSnapshot { return s.snap.Clone() }

type reportSource struct{ report *domain.AuditReport }

func (r reportSource) Latest() (domain.AuditReport, bool) {
	if r.report == nil {
		return domain.AuditReport{}, false
	}
	return *r.report, true
}

type countingAction struct {
	name  domain.ActionName
	calls atomic.Int32
	err   error
}

func (a *countingAction) Name() domain.ActionName { return a.name }

func (a *countingAction) Apply(context.Context) error {
	a.calls.Add(1)
	return a.err
}

func online() *domain.NetworkStats {
	return &domain.NetworkStats{Online: true, EffectiveType: domain.EffectiveType4G}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name   string
		snap   domain.MetricsSnapshot
		report *domain.AuditReport
		want   []domain.ActionName
	}{
		{
			name: "healthy",
			snap: domain.MetricsSnapshot{Network: online()},
			want: []domain.ActionName{},
		},
		{
			name: "memory pressure",
			snap: domain.MetricsSnapshot{Memory: &domain.MemoryStats{UsagePercent: 85}, Network: online()},
			want: []domain.ActionName{domain.ActionPruneHiddenDOM, domain.ActionReleaseMemoryHint},
		},
		{
			name: "offline",
			snap: domain.MetricsSnapshot{Network: &domain.NetworkStats{Online: false}},
			want: []domain.ActionName{domain.ActionEnableOfflineBanner},
		},
		{
			name: "slow navigation alone keeps score above threshold",
			snap: domain.MetricsSnapshot{Navigation: &domain.NavigationTiming{RequestResponseMs: 20_000}},
			want: []domain.ActionName{},
		},
		{
			name: "slow navigation with large tree and elevated memory",
			snap: domain.MetricsSnapshot{
				Memory:     &domain.MemoryStats{UsagePercent: 65},
				Navigation: &domain.NavigationTiming{RequestResponseMs: 20_000},
				Surface:    &domain.SurfaceStats{ElementCount: 5000},
			},
			want: []domain.ActionName{
				domain.ActionLazyifyImages,
				domain.ActionPrefetchLikelyRoutes,
				domain.ActionPruneHiddenDOM,
				domain.ActionReleaseMemoryHint,
			},
		},
		{
			name: "failing audit regardless of score",
			snap: domain.MetricsSnapshot{},
			report: &domain.AuditReport{Categories: []domain.CategoryResult{
				{Name: domain.CategoryPerformance, Status: domain.StatusFail},
				{Name: domain.CategoryComponents, Status: domain.StatusPartial},
			}},
			want: []domain.ActionName{domain.ActionReleaseMemoryHint},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.snap, health.Score(tt.snap), tt.report, 80)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTick_OfflineEnablesAndClearsBanner(t *testing.T) {
	src := &snapSource{snap: domain.MetricsSnapshot{
		Memory:  &domain.MemoryStats{UsagePercent: 40},
		Network: &domain.NetworkStats{Online: false},
		Surface: &domain.SurfaceStats{ElementCount: 10},
	}}
	flags := NewFlags()
	reg := surface.NewRegistry()
	o := New(Config{}, src, nil, flags, DefaultActions(reg, nil, flags), nil, nil, nil)

	applied := o.Tick(context.Background())
	assert.Equal(t, []domain.ActionName{domain.ActionEnableOfflineBanner}, applied)
	assert.True(t, o.FeatureFlags().OfflineBanner)

	src.snap.Network = online()
	assert.Empty(t, o.Tick(context.Background()))
	assert.False(t, o.FeatureFlags().OfflineBanner)
}

func TestApply_IdempotentWithinTick(t *testing.T) {
	reg := surface.NewRegistry()
	reg.Upsert(
		surface.Element{ID: "i1", Kind: surface.KindImage},
		surface.Element{ID: "i2", Kind: surface.KindImage},
	)
	flags := NewFlags()
	o := New(Config{Cooldown: 0}, &snapSource{}, nil, flags, DefaultActions(reg, nil, flags), nil, nil, nil)

	res, err := o.Apply(context.Background(), domain.ActionLazyifyImages)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	res, err = o.Apply(context.Background(), domain.ActionLazyifyImages)
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, res)

	// повторное применение к уже помеченным изображениям ничего не меняет
	assert.Equal(t, 0, reg.LazyifyImages())

	for _, a := range o.Actions() {
		if a.Name == domain.ActionLazyifyImages {
			assert.Equal(t, 1, a.Applied)
		}
	}
}

func TestTick_CooldownAndRetryAfterFailure(t *testing.T) {
	mem := &countingAction{name: domain.ActionReleaseMemoryHint}
	prune := &countingAction{name: domain.ActionPruneHiddenDOM, err: errors.New("registry locked")}

	src := &snapSource{snap: domain.MetricsSnapshot{
		Memory:  &domain.MemoryStats{UsagePercent: 90},
		Network: online(),
	}}
	o := New(Config{Cooldown: 30 * time.Second}, src, nil, nil, []Action{mem, prune}, nil, nil, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	assert.Equal(t, []domain.ActionName{domain.ActionReleaseMemoryHint}, o.Tick(context.Background()))
	assert.Equal(t, int32(1), mem.calls.Load())
	assert.Equal(t, int32(1), prune.calls.Load())

	now = now.Add(10 * time.Second)
	o.Tick(context.Background())
	assert.Equal(t, int32(1), mem.calls.Load(), "within cooldown")
	assert.Equal(t, int32(2), prune.calls.Load(), "failed action is retried")

	now = now.Add(30 * time.Second)
	o.Tick(context.Background())
	assert.Equal(t, int32(2), mem.calls.Load())
}

func TestTick_FailingAuditCategory(t *testing.T) {
	banner := &countingAction{name: domain.ActionEnableOfflineBanner}
	report := &domain.AuditReport{Categories: []domain.CategoryResult{
		{Name: domain.CategoryNetworking, Status: domain.StatusFail},
	}}
	o := New(Config{}, &snapSource{}, reportSource{report: report}, nil, []Action{banner}, nil, nil, nil)

	assert.Equal(t, []domain.ActionName{domain.ActionEnableOfflineBanner}, o.Tick(context.Background()))
}

func TestApply_UnknownAction(t *testing.T) {
	o := New(Config{}, &snapSource{}, nil, nil, nil, nil, nil, nil)
	_, err := o.Apply(context.Background(), "teleport")
	assert.Error(t, err)
}

func TestOptimizer_StartStop(t *testing.T) {
	o := New(Config{TickInterval: time.Hour}, &snapSource{snap: domain.MetricsSnapshot{Network: online()}}, nil, nil, nil, nil, nil, nil)
	o.Start(context.Background())
	o.Start(context.Background())
	o.Stop()
	o.Stop()
}
