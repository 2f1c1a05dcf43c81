package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/vitals/internal/console/handler"
	"github.com/xela07ax/vitals/internal/console/service"
	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/journal"
	"github.com/xela07ax/vitals/internal/recovery"
	"github.com/xela07ax/vitals/internal/surface"
	"github.com/xela07ax/vitals/internal/telemetry"
)

type fakeMonitor struct {
	mu       sync.Mutex
	report   *domain.AuditReport
	elements []surface.Element
	applied  []domain.ActionName
	panicky  bool
}

func (f *fakeMonitor) Snapshot() domain.MetricsSnapshot {
	return domain.MetricsSnapshot{Memory: &domain.MemoryStats{UsagePercent: 42}}
}

func (f *fakeMonitor) Health() domain.HealthScore {
	return domain.HealthScore{Value: 100, Recommendations: []domain.Recommendation{}}
}

func (f *fakeMonitor) LatestAudit() (domain.AuditReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.report == nil {
		return domain.AuditReport{}, false
	}
	return *f.report, true
}

func (f *fakeMonitor) RunAudit(context.Context) domain.AuditReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report = &domain.AuditReport{ID: "r1", OverallScore: 100}
	return *f.report
}

func (f *fakeMonitor) Flags() domain.FeatureFlags { return domain.FeatureFlags{BackgroundSync: true} }

func (f *fakeMonitor) RecoveryState() domain.FailureRecord {
	return domain.FailureRecord{Max: 5, State: domain.RecoveryHealthy}
}

func (f *fakeMonitor) RecoveryEvents() []domain.RecoveryEvent { return nil }

func (f *fakeMonitor) Dashboard() domain.Dashboard {
	if f.panicky {
		panic("dashboard exploded")
	}
	return domain.Dashboard{}
}

func (f *fakeMonitor) Actions() []domain.OptimizationAction { return nil }

func (f *fakeMonitor) ApplyAction(_ context.Context, name domain.ActionName) (string, error) {
	if name != domain.ActionReleaseMemoryHint {
		return "", errors.New("unknown action")
	}
	f.applied = append(f.applied, name)
	return "applied", nil
}

func (f *fakeMonitor) ReplaceSurface(els []surface.Element) domain.SurfaceStats {
	f.elements = els
	return domain.SurfaceStats{ElementCount: len(els)}
}

func (f *fakeMonitor) ObservePointer(_ context.Context, x, y float64) []string {
	if x == 10 && y == 10 {
		return []string{"/about"}
	}
	return nil
}

type fakeJournal struct{ kind journal.Kind }

func (j *fakeJournal) Recent(_ context.Context, kind journal.Kind, limit int) ([]journal.Event, error) {
	j.kind = kind
	return []journal.Event{{ID: "e1", Kind: kind}}, nil
}

func (j *fakeJournal) Stats(context.Context) (*domain.JournalStats, error) {
	return &domain.JournalStats{TotalEvents: 3, ByKind: map[string]int64{"failure": 3}}, nil
}

type panicSink struct{ n int }

func (p *panicSink) ReportPanic(string, interface{}) { p.n++ }

const password = "s3cret"

func newAuthService(t *testing.T, scopes map[string]bool) *service.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	ops := service.StaticOperators{
		"operator": {Username: "operator", PasswordHash: string(hash), Scopes: scopes},
	}
	return service.NewAuthService(ops, key, time.Hour)
}

type harness struct {
	srv     *ConsoleServer
	monitor *fakeMonitor
	journal *fakeJournal
	panics  *panicSink
	retries int
}

func newHarness(t *testing.T, authSvc *service.AuthService) *harness {
	h := &harness{monitor: &fakeMonitor{}, journal: &fakeJournal{}, panics: &panicSink{}}
	fallback := recovery.FallbackHandler(func(context.Context) error {
		h.retries++
		return nil
	})
	h.srv = NewConsoleServer(zap.NewNop(), nil, authSvc,
		handler.NewMonitorHandler(h.monitor, h.journal),
		fallback, h.panics, telemetry.NewResourceTracker(time.Second))
	return h
}

func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, pass string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(http.MethodPost, "/api/v1/auth/token", `{"username":"operator","password":"`+pass+`"}`, "")
}

func TestReadEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/v1/snapshot", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
	var snap domain.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Memory)
	assert.Equal(t, 42.0, snap.Memory.UsagePercent)

	for _, path := range []string{"/api/v1/health", "/api/v1/flags", "/api/v1/recovery", "/api/v1/dashboard", "/api/v1/actions", "/healthz"} {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, "", "").Code, path)
	}
}

func TestAuditEndpoints(t *testing.T) {
	h := newHarness(t, newAuthService(t, map[string]bool{domain.ScopeAudit: true}))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/audit", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/audit", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/audit", "", "garbage").Code)

	rec := h.login(t, password)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/audit", "", tok.AccessToken).Code)
	rec = h.do(http.MethodGet, "/api/v1/audit", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"r1"`)

	// токен без scope optimize
	assert.Equal(t, http.StatusForbidden,
		h.do(http.MethodPost, "/api/v1/actions/releaseMemoryHint", "", tok.AccessToken).Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t, newAuthService(t, nil))
	assert.Equal(t, http.StatusUnauthorized, h.login(t, "nope").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/auth/token", "{", "").Code)
	assert.Equal(t, http.StatusBadRequest,
		h.do(http.MethodPost, "/api/v1/auth/token", `{"username":"operator"}`, "").Code)
}

func TestApplyAction(t *testing.T) {
	h := newHarness(t, newAuthService(t, map[string]bool{"admin": true}))
	var tok domain.TokenResponse
	require.NoError(t, json.Unmarshal(h.login(t, password).Body.Bytes(), &tok))

	rec := h.do(http.MethodPost, "/api/v1/actions/releaseMemoryHint", "", tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":"applied"`)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/v1/actions/teleport", "", tok.AccessToken).Code)
}

func TestAuthNotConfigured(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/api/v1/audit", "", "x").Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.login(t, password).Code)
}

func TestSurfaceAndPointer(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPut, "/api/v1/surface/elements",
		`[{"id":"a1","kind":"link","href":"/about","bounds":{"x":0,"y":0,"w":20,"h":20}},{"id":"m","region":"main"}]`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"element_count":2`)
	require.Len(t, h.monitor.elements, 2)
	assert.Equal(t, surface.KindLink, h.monitor.elements[0].Kind)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/v1/surface/elements", `{"id":1}`, "").Code)

	rec = h.do(http.MethodPost, "/api/v1/pointer", `{"x":10,"y":10}`, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"prefetched":["/about"]}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/pointer", `{"x":500,"y":500}`, "")
	assert.JSONEq(t, `{"prefetched":[]}`, rec.Body.String())
}

func TestJournalEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/v1/journal?kind=failure&limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, journal.KindFailure, h.journal.kind)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/journal?limit=-1", "", "").Code)

	rec = h.do(http.MethodGet, "/api/v1/journal/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_events":3`)

	noJournal := NewConsoleServer(zap.NewNop(), nil, nil, handler.NewMonitorHandler(&fakeMonitor{}, nil),
		nil, &panicSink{}, telemetry.NewResourceTracker(time.Second))
	rec = httptest.NewRecorder()
	noJournal.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/journal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFallbackIsPublic(t *testing.T) {
	h := newHarness(t, newAuthService(t, nil))

	rec := h.do(http.MethodGet, "/fallback", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Retry")

	rec = h.do(http.MethodPost, "/fallback/retry", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, h.retries)
}

func TestPanicBecomesFailureSignal(t *testing.T) {
	h := newHarness(t, nil)
	h.monitor.panicky = true

	rec := h.do(http.MethodGet, "/api/v1/dashboard", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, h.panics.n)
}
