package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/vitals/internal/console/handler"
	"github.com/xela07ax/vitals/internal/console/server"
	"github.com/xela07ax/vitals/internal/engine"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/recovery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring service with the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	// 1. Конфигурация и логгер. Уровень меняется на лету, ретрай безопасного
	// режима берет последнюю версию файла.
	var atom zap.AtomicLevel
	var logger *zap.Logger
	var latest atomic.Pointer[infra.Config]
	cfg, err := infra.WatchConfig(func(next *infra.Config) {
		latest.Store(next)
		if logger != nil && infra.ApplyLevel(atom, next.Logger.Level) {
			logger.Info("log level changed", zap.String("level", next.Logger.Level))
		}
	})
	if err != nil {
		return err
	}
	latest.CompareAndSwap(nil, cfg)
	logger, atom, err = infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Метрики (регистрируются один раз, переживают повторные bootstrap)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// 3. Ядро, при неудаче безопасный режим на адресе API
	a, err := bootstrapOrSafeMode(ctx,
		func() (net.Listener, error) { return net.Listen("tcp", cfg.Server.Addr()) },
		logger,
		func(ctx context.Context) (*app, error) { return bootstrap(ctx, latest.Load(), metrics, logger) },
	)
	if err != nil {
		return err
	}
	defer a.close(context.Background(), logger)
	cfg = a.cfg
	sup := a.sup

	// 4. API
	if a.authService == nil {
		logger.Warn("operator auth disabled: no private key configured")
	}
	var reader handler.JournalReader
	if a.journalRepo != nil {
		reader = a.journalRepo
	}
	console := server.NewConsoleServer(logger, metrics, a.authService,
		handler.NewMonitorHandler(sup, reader),
		recovery.FallbackHandler(sup.Restart),
		sup.Recovery(), sup.Tracker())

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Серверы и слушатели
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("dashboard API started", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.Server.TLSEnabled()))
		var err error
		if cfg.Server.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if cfg.Metrics.Addr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsSrv.Close()
		})
	}

	if cfg.GRPC.Port > 0 {
		grpcSrv, hs := engine.NewGRPCServer(sup.Recovery())
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		g.Go(func() error {
			logger.Info("gRPC health server started", zap.Int("port", cfg.GRPC.Port))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			sup.WatchHealth(gctx, hs, time.Second)
			grpcSrv.GracefulStop()
			return nil
		})
	}

	if a.rdb != nil {
		// слушатель супервизируется recovery: его паника считается отказом
		sup.Recovery().Go(gctx, "command-listener", func(ctx context.Context) error {
			engine.ListenCommandsResilient(ctx, a.rdb, logger, infra.RedisChanCommands, nil,
				func(cmd string) { sup.HandleCommand(ctx, cmd) })
			return nil
		})
	}

	// 6. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("vitals stopping...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sup.ShutdownMonitoring(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("vitals exited")
	return err
}
