package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/recovery"
	"github.com/xela07ax/vitals/internal/store"
	"github.com/xela07ax/vitals/internal/surface"
	"github.com/xela07ax/vitals/internal/telemetry"
)

type stubMemory struct{}

func (stubMemory) SampleMemory(context.Context) (domain.MemoryStats, error) {
	return domain.MemoryStats{UsedMB: 2048, TotalMB: 8192, LimitMB: 8192, UsagePercent: 25}, nil
}

type toggleLink struct{ online atomic.Bool }

func (l *toggleLink) Online(context.Context) (bool, error) { return l.online.Load(), nil }

type stubProber struct{}

func (stubProber) Probe(context.Context) (domain.RoundTrip, error) {
	return domain.RoundTrip{ElapsedMs: 40, Bytes: 1024, ThroughputMbps: 20, At: time.Now()}, nil
}

type noopStrategy struct{ calls atomic.Int32 }

func (s *noopStrategy) Name() string { return "noop" }
func (s *noopStrategy) Attempt(context.Context) error {
	s.calls.Add(1)
	return nil
}

func testConfig() *infra.Config {
	cfg := infra.DefaultConfig()
	cfg.Monitor.FastInterval = 10 * time.Millisecond
	cfg.Monitor.MediumInterval = 10 * time.Millisecond
	cfg.Monitor.SlowInterval = 10 * time.Millisecond
	cfg.Monitor.ProbeTimeout = time.Second
	cfg.Monitor.StartupTimeout = 2 * time.Second
	cfg.Audit.Interval = time.Hour
	cfg.Optimizer.TickInterval = time.Hour
	cfg.Recovery.MaxFailures = 100
	return cfg
}

func newTestSupervisor(t *testing.T, link *toggleLink) (*Supervisor, *noopStrategy) {
	t.Helper()
	strategy := &noopStrategy{}
	s := NewSupervisor(testConfig(), Options{
		Sources: telemetry.Sources{
			Memory: stubMemory{},
			Link:   link,
			Probe:  stubProber{},
		},
		Stores:     []store.KV{store.NewMemoryKV()},
		Strategies: []recovery.Strategy{strategy},
	}, nil, nil)
	t.Cleanup(func() { _ = s.ShutdownMonitoring(context.Background()) })
	return s, strategy
}

func TestSupervisor_InitializeWaitsForFirstAudit(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, _ := newTestSupervisor(t, link)

	_, ok := s.LatestAudit()
	assert.False(t, ok)

	require.NoError(t, s.InitializeMonitoring(context.Background()))
	assert.True(t, s.Running())

	report, ok := s.LatestAudit()
	require.True(t, ok)
	assert.Len(t, report.Categories, len(domain.Categories))

	// повторный вызов ничего не делает
	require.NoError(t, s.InitializeMonitoring(context.Background()))

	d := s.Dashboard()
	require.NotNil(t, d.Audit)
	assert.Equal(t, report.ID, d.Audit.ID)
	assert.GreaterOrEqual(t, d.Health.Value, 0)
	assert.LessOrEqual(t, d.Health.Value, 100)
	assert.NotNil(t, d.Health.Recommendations)
}

func TestSupervisor_ShutdownIsIdempotentAndRestartWorks(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, _ := newTestSupervisor(t, link)

	require.NoError(t, s.ShutdownMonitoring(context.Background()))

	require.NoError(t, s.InitializeMonitoring(context.Background()))
	require.NoError(t, s.ShutdownMonitoring(context.Background()))
	require.NoError(t, s.ShutdownMonitoring(context.Background()))
	assert.False(t, s.Running())

	require.NoError(t, s.Restart(context.Background()))
	assert.True(t, s.Running())
}

func TestSupervisor_PanicsAfterShutdownAreNotCounted(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, strategy := newTestSupervisor(t, link)
	require.NoError(t, s.InitializeMonitoring(context.Background()))
	require.NoError(t, s.ShutdownMonitoring(context.Background()))

	for i := 0; i < 100; i++ {
		s.Recovery().ReportPanic("GET /api/v1/snapshot", "late")
	}
	assert.Equal(t, 0, s.RecoveryState().Count)

	require.NoError(t, s.InitializeMonitoring(context.Background()))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), strategy.calls.Load())
	assert.Equal(t, 0, s.RecoveryState().Count)
}

func TestSupervisor_AuditDoesNotTripCollectorProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	collectorProbe := telemetry.NewHTTPProber(telemetry.ProbeConfig{URL: srv.URL, Timeout: time.Second, Attempts: 1}, nil, nil)
	s := NewSupervisor(testConfig(), Options{
		Sources:    telemetry.Sources{Probe: collectorProbe},
		Strategies: []recovery.Strategy{&noopStrategy{}},
	}, nil, nil)

	for i := 0; i < 4; i++ {
		r := s.RunAudit(context.Background())
		for _, c := range r.Categories {
			if c.Name == domain.CategoryNetworking {
				assert.NotEqual(t, domain.StatusPass, c.Status)
			}
		}
	}
	assert.Equal(t, gobreaker.StateClosed, collectorProbe.BreakerState())
}

func TestSupervisor_OfflineTransitionReachesRecovery(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, _ := newTestSupervisor(t, link)
	require.NoError(t, s.InitializeMonitoring(context.Background()))

	require.Eventually(t, func() bool {
		n := s.Snapshot().Network
		return n != nil && n.Online
	}, 2*time.Second, 5*time.Millisecond)

	link.online.Store(false)

	require.Eventually(t, func() bool {
		for _, f := range s.RecoveryState().Recent {
			if f.Kind == domain.FailureOffline {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSupervisor_SurfaceAndAuditCommand(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, _ := newTestSupervisor(t, link)

	stats := s.ReplaceSurface([]surface.Element{
		{ID: "h", Region: "header", Interactive: true},
		{ID: "n", Region: "navigation", Interactive: true},
		{ID: "m", Region: "main", Interactive: true},
		{ID: "f", Region: "footer"},
		{ID: "i", Kind: surface.KindImage},
	})
	assert.Equal(t, 5, stats.ElementCount)
	assert.Equal(t, 1, stats.ImageCount)

	s.HandleCommand(context.Background(), CommandAudit)

	report, ok := s.LatestAudit()
	require.True(t, ok)
	components, ok := report.Result(domain.CategoryComponents)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPass, components.Status)
}

func TestSupervisor_EscalationUsesConfiguredStrategies(t *testing.T) {
	link := &toggleLink{}
	link.online.Store(true)
	s, strategy := newTestSupervisor(t, link)

	for i := 0; i < 100; i++ {
		s.Recovery().Handle(context.Background(), domain.Failure{Kind: domain.FailureUncaughtError, Message: "x"})
	}
	assert.Equal(t, int32(1), strategy.calls.Load())
	assert.Equal(t, 0, s.RecoveryState().Count)
}
