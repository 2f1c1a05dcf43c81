package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/xela07ax/vitals/internal/domain"
)

// HealthService имя сервиса в grpc.health.v1
const HealthService = "vitals.Monitor"

// UnaryRecoverInterceptor паника обработчика -> codes.Internal и сигнал отказа
func UnaryRecoverInterceptor(rep PanicReporter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				rep.ReportPanic(info.FullMethod, r)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// ServingStatus SERVING, пока восстановление не эскалирует
func ServingStatus(rec domain.FailureRecord) healthpb.HealthCheckResponse_ServingStatus {
	if rec.State == domain.RecoveryEscalating {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// NewGRPCServer gRPC сервер со стандартным health-сервисом
func NewGRPCServer(rep PanicReporter) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryRecoverInterceptor(rep)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth переносит состояние супервизора в health-сервис до отмены ctx
func (s *Supervisor) WatchHealth(ctx context.Context, hs *health.Server, every time.Duration) {
	last := healthpb.HealthCheckResponse_UNKNOWN
	apply := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if s.Running() {
			st = ServingStatus(s.recovery.State())
		}
		if st == last {
			return
		}
		last = st
		hs.SetServingStatus(HealthService, st)
		hs.SetServingStatus("", st)
		s.logger.Info("grpc health status changed", zap.String("status", st.String()))
	}

	apply()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			apply()
		}
	}
}
