package ledger

import (
	"context"
	"time"

	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "ledger"

// HealthServer - grpc.health.v1 для оркестратора, статус по доступности хранилища
type HealthServer struct {
	logger *zap.Logger
	db     interf.Storage
	health *health.Server
}

func NewHealthServer(logger *zap.Logger, db interf.Storage) *HealthServer {
	h := &HealthServer{logger, db, health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Probe проверяет хранилище и обновляет статус
func (h *HealthServer) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := h.db.Ping(ctx)
	if err != nil {
		h.logger.Warn("storage is unavailable", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch периодически проверяет хранилище до отмены контекста
func (h *HealthServer) Watch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	_ = h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			_ = h.Probe(ctx)
		}
	}
}

func (h *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	res, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return res.Status, nil
}
