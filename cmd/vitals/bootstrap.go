package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/console/service"
	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/engine"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/infra/auth"
	"github.com/xela07ax/vitals/internal/journal"
	"github.com/xela07ax/vitals/internal/recovery"
	"github.com/xela07ax/vitals/internal/repository/postgres"
	"github.com/xela07ax/vitals/internal/store"
)

// resources то, что нужно закрыть при выходе
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) { r.closers = append(r.closers, fn) }

func (r *resources) close(logger *zap.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("close resource", zap.Error(err))
		}
	}
	r.closers = nil
}

// app: поднятое ядро сервиса
type app struct {
	cfg         *infra.Config
	sup         *engine.Supervisor
	authService *service.AuthService
	journalRepo *postgres.JournalRepo
	rdb         *redis.Client
	res         *resources
}

// close останавливает мониторинг и освобождает хранилища
func (a *app) close(ctx context.Context, logger *zap.Logger) {
	if err := a.sup.ShutdownMonitoring(ctx); err != nil {
		logger.Warn("shutdown monitoring", zap.Error(err))
	}
	a.res.close(logger)
}

// bootstrap открывает хранилища, собирает супервизор и запускает мониторинг.
// При ошибке все, что успели открыть, закрывается.
func bootstrap(ctx context.Context, cfg *infra.Config, metrics *infra.Metrics, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, res: &resources{}}
	defer func() {
		if err == nil {
			return
		}
		if a.sup != nil {
			_ = a.sup.ShutdownMonitoring(context.Background())
		}
		a.res.close(logger)
	}()

	// 1. Хранилища
	stores := []store.KV{store.NewMemoryKV()}
	durable, err := store.OpenBadger(store.BadgerConfig{
		Path:     cfg.Storage.DurablePath,
		InMemory: cfg.Storage.InMemory,
	}, logger)
	if err != nil {
		logger.Warn("durable store unavailable, continuing without it", zap.Error(err))
	} else {
		stores = append(stores, durable)
		a.res.add(durable.Close)
	}

	var storages journal.Multi
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.res.add(a.rdb.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, shared store and event fan-out may fail", zap.Error(err))
		}
		cancel()
		stores = append(stores, store.NewRedisKV(a.rdb))
		storages = append(storages, journal.NewPublisher(a.rdb))
	}

	if cfg.Database.URL != "" {
		a.journalRepo, err = openJournalRepo(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.res.add(a.journalRepo.Close)
		storages = append(storages, a.journalRepo)
	}

	var storage journal.Storage
	if len(storages) > 0 {
		storage = storages
	}

	// 2. Ядро
	a.sup = engine.NewSupervisor(cfg, engine.Options{
		Sources: engine.HostSources(cfg.Monitor, metrics, logger),
		Stores:  stores,
		Storage: storage,
	}, metrics, logger)

	a.authService, err = newAuthService(cfg.Auth, a.journalRepo)
	if err != nil {
		return nil, fmt.Errorf("operator auth: %w", err)
	}

	if err := a.sup.InitializeMonitoring(ctx); err != nil {
		return nil, fmt.Errorf("initialize monitoring: %w", err)
	}
	return a, nil
}

func openJournalRepo(ctx context.Context, cfg infra.DatabaseConfig) (*postgres.JournalRepo, error) {
	repo, err := postgres.NewJournalRepo(cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	// Проверяем соединение с таймаутом
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	if err := repo.EnsureSchema(pingCtx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

// newAuthService nil без приватного ключа: вход оператора выключен.
// Операторы из БД имеют приоритет над учеткой из конфига.
func newAuthService(cfg infra.AuthConfig, repo *postgres.JournalRepo) (*service.AuthService, error) {
	if len(cfg.PrivateKey) == 0 {
		return nil, nil
	}
	key, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	ops := service.StaticOperators{}
	if cfg.OperatorPasswordHash != "" {
		ops[cfg.OperatorUsername] = domain.Operator{
			Username:     cfg.OperatorUsername,
			PasswordHash: cfg.OperatorPasswordHash,
			Scopes:       map[string]bool{domain.ScopeAudit: true, domain.ScopeOptimize: true},
		}
	}
	var provider service.AuthProvider = ops
	if repo != nil {
		provider = service.ChainProviders{repo.Operators(), ops}
	}
	return service.NewAuthService(provider, key, cfg.TokenTTL), nil
}

// bootstrapOrSafeMode поднимает ядро. Если инициализация падает, на адресе API
// работает страница безопасного режима, и каждый ручной повтор заново вызывает boot.
// Возвращается после первого успешного boot или по отмене ctx.
func bootstrapOrSafeMode(
	ctx context.Context,
	listen func() (net.Listener, error),
	logger *zap.Logger,
	boot func(ctx context.Context) (*app, error),
) (*app, error) {
	a, err := boot(ctx)
	if err == nil {
		return a, nil
	}
	logger.Error("bootstrap failed, entering safe mode", zap.Error(err))

	lis, lerr := listen()
	if lerr != nil {
		return nil, errors.Join(err, fmt.Errorf("safe mode listener: %w", lerr))
	}

	var booted *app
	retry := func(rctx context.Context) error {
		a, err := boot(rctx)
		if err != nil {
			logger.Warn("safe mode retry failed", zap.Error(err))
			return err
		}
		booted = a
		return nil
	}
	if err := serveSafeMode(ctx, lis, logger, retry); err != nil {
		return nil, err
	}
	logger.Info("bootstrap recovered from safe mode")
	return booted, nil
}

// serveSafeMode отдает страницу безопасного режима на lis, пока retry не
// отработает успешно (nil) или не отменится ctx (ctx.Err()).
func serveSafeMode(ctx context.Context, lis net.Listener, logger *zap.Logger, retry func(context.Context) error) error {
	recovered := make(chan struct{})
	var once sync.Once

	fallback := recovery.FallbackHandler(func(rctx context.Context) error {
		if err := retry(rctx); err != nil {
			return err
		}
		once.Do(func() { close(recovered) })
		return nil
	})

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "safe mode", http.StatusServiceUnavailable)
	})
	r.Post("/fallback/retry", fallback.ServeHTTP)
	r.Get("/*", fallback.ServeHTTP)

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()
	logger.Warn("safe mode: serving fallback page", zap.String("addr", lis.Addr().String()))

	var result error
	select {
	case <-recovered:
	case <-ctx.Done():
		result = ctx.Err()
	case err := <-serveErr:
		return fmt.Errorf("safe mode server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("safe mode server shutdown", zap.Error(err))
	}
	return result
}
