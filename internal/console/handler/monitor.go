package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/journal"
	"github.com/xela07ax/vitals/internal/surface"
)

// Monitor то, что API читает у супервизора
type Monitor interface {
	Snapshot() domain.MetricsSnapshot
	Health() domain.HealthScore
	LatestAudit() (domain.AuditReport, bool)
	RunAudit(ctx context.Context) domain.AuditReport
	Flags() domain.FeatureFlags
	RecoveryState() domain.FailureRecord
	RecoveryEvents() []domain.RecoveryEvent
	Dashboard() domain.Dashboard
	Actions() []domain.OptimizationAction
	ApplyAction(ctx context.Context, name domain.ActionName) (string, error)
	ReplaceSurface(els []surface.Element) domain.SurfaceStats
	ObservePointer(ctx context.Context, x, y float64) []string
}

// JournalReader история событий (Postgres), может отсутствовать
type JournalReader interface {
	Recent(ctx context.Context, kind journal.Kind, limit int) ([]journal.Event, error)
	Stats(ctx context.Context) (*domain.JournalStats, error)
}

type MonitorHandler struct {
	monitor Monitor
	journal JournalReader
}

func NewMonitorHandler(m Monitor, j JournalReader) *MonitorHandler {
	return &MonitorHandler{monitor: m, journal: j}
}

const maxSurfaceBody = 4 << 20

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *MonitorHandler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

func (h *MonitorHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Health())
}

// GetAudit последний отчет; 404, пока аудит не выполнялся
func (h *MonitorHandler) GetAudit(w http.ResponseWriter, _ *http.Request) {
	report, ok := h.monitor.LatestAudit()
	if !ok {
		http.Error(w, "no audit report yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *MonitorHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.RunAudit(r.Context()))
}

func (h *MonitorHandler) Flags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Flags())
}

func (h *MonitorHandler) Recovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		domain.FailureRecord
		Events []domain.RecoveryEvent `json:"events"`
	}{h.monitor.RecoveryState(), h.monitor.RecoveryEvents()})
}

func (h *MonitorHandler) Dashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Dashboard())
}

func (h *MonitorHandler) Actions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Actions())
}

// ApplyAction POST /api/v1/actions/{name}
func (h *MonitorHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	name := domain.ActionName(chi.URLParam(r, "name"))
	result, err := h.monitor.ApplyAction(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": string(name), "result": result})
}

// PutElements UI регистрирует дерево элементов целиком
func (h *MonitorHandler) PutElements(w http.ResponseWriter, r *http.Request) {
	var els []surface.Element
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSurfaceBody)).Decode(&els); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.ReplaceSurface(els))
}

type pointerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pointer позиция указателя; в ответе: href, для которых ушла подсказка
func (h *MonitorHandler) Pointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	hinted := h.monitor.ObservePointer(r.Context(), req.X, req.Y)
	if hinted == nil {
		hinted = []string{}
	}
	writeJSON(w, http.StatusAccepted, map[string][]string{"prefetched": hinted})
}

var errNoJournal = errors.New("journal storage not configured")

// Journal GET /api/v1/journal?kind=failure&limit=50
func (h *MonitorHandler) Journal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, errNoJournal.Error(), http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.journal.Recent(r.Context(), journal.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		http.Error(w, "Failed to fetch journal", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// JournalStats GET /api/v1/journal/stats
func (h *MonitorHandler) JournalStats(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, errNoJournal.Error(), http.StatusNotFound)
		return
	}
	stats, err := h.journal.Stats(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// TokenIssuer выдает токен оператору по логину и паролю
type TokenIssuer interface {
	GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error)
}

const maxLoginBody = 4 << 10

// Login POST /api/v1/auth/token. Причину отказа (логин или пароль) не раскрываем.
func Login(issuer TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil ||
			req.Username == "" || req.Password == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp, err := issuer.GenerateToken(r.Context(), req.Username, req.Password)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
