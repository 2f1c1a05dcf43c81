package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/console/handler"
	"github.com/xela07ax/vitals/internal/console/service"
	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/engine"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/infra/auth"
	"github.com/xela07ax/vitals/internal/telemetry"
)

type ConsoleServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	metrics *infra.Metrics

	// nil: ключи не настроены, защищенные роуты отвечают 503
	authService *service.AuthService

	panics  engine.PanicReporter
	tracker *telemetry.ResourceTracker

	monitorHandler *handler.MonitorHandler // /api/v1/...
	fallback       http.Handler            // безопасный режим
}

// NewConsoleServer собирает API дашборда со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	metrics *infra.Metrics,
	authService *service.AuthService,
	monitorH *handler.MonitorHandler,
	fallback http.Handler,
	panics engine.PanicReporter,
	tracker *telemetry.ResourceTracker,
) *ConsoleServer {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		metrics:        metrics,
		authService:    authService,
		panics:         panics,
		tracker:        tracker,
		monitorHandler: monitorH,
		fallback:       fallback,
	}
	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.RecoverMiddleware(s.panics))
	r.Use(engine.InstrumentMiddleware(s.tracker, s.metrics, s.logger))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.authService != nil {
			r.Post("/api/v1/auth/token", handler.Login(s.authService))
		} else {
			r.Post("/api/v1/auth/token", authDisabled)
		}

		r.Get("/api/v1/snapshot", s.monitorHandler.Snapshot)
		r.Get("/api/v1/health", s.monitorHandler.Health)
		r.Get("/api/v1/audit", s.monitorHandler.GetAudit)
		r.Get("/api/v1/flags", s.monitorHandler.Flags)
		r.Get("/api/v1/recovery", s.monitorHandler.Recovery)
		r.Get("/api/v1/dashboard", s.monitorHandler.Dashboard)
		r.Get("/api/v1/actions", s.monitorHandler.Actions)
		r.Get("/api/v1/journal", s.monitorHandler.Journal)
		r.Get("/api/v1/journal/stats", s.monitorHandler.JournalStats)
		r.Put("/api/v1/surface/elements", s.monitorHandler.PutElements) // UI регистрирует дерево
		r.Post("/api/v1/pointer", s.monitorHandler.Pointer)

		// безопасный режим должен работать без токена
		if s.fallback != nil {
			r.Get("/fallback", s.fallback.ServeHTTP)
			r.Post("/fallback/retry", s.fallback.ServeHTTP)
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен оператора) ---
	r.Group(func(r chi.Router) {
		if s.authService == nil {
			r.Post("/api/v1/audit", authDisabled)
			r.Post("/api/v1/actions/{name}", authDisabled)
			return
		}
		r.With(auth.NewMiddleware(s.authService, domain.ScopeAudit, s.logger)).
			Post("/api/v1/audit", s.monitorHandler.RunAudit)
		r.With(auth.NewMiddleware(s.authService, domain.ScopeOptimize, s.logger)).
			Post("/api/v1/actions/{name}", s.monitorHandler.ApplyAction)
	})
}

func authDisabled(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "operator auth is not configured", http.StatusServiceUnavailable)
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
