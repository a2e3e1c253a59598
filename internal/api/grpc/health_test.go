package ledger

import (
	"context"
	"path/filepath"
	"testing"

	db "github.com/hui2334387208/comic-sub000/internal/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthProbe(t *testing.T) {
	ctx := context.Background()
	store, err := db.NewSQLiteDB(zap.NewNop(), filepath.Join(t.TempDir(), "ledger.db"), 1)
	require.NoError(t, err)

	h := NewHealthServer(zap.NewNop(), store)
	status, err := h.Check(ctx, ServiceName)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	require.NoError(t, h.Probe(ctx))
	status, err = h.Check(ctx, ServiceName)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	// закрытое хранилище
	store.Close()
	require.Error(t, h.Probe(ctx))
	status, err = h.Check(ctx, "")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}
