package handler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tharu616/shopping-mall-platform/internal/adapter/storage"
	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/core/service"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	db       *storage.SQLAdapter
	orders   *service.OrderService
	payments *service.PaymentService
	gate     *AccessGate
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := storage.Open(ctx, storage.DialectSQLite, ":memory:", storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	adapter := storage.NewSQLiteAdapter(sqlDB)
	require.NoError(t, adapter.Migrate(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testEnv{
		db:       adapter,
		orders:   service.NewOrderService(adapter, nil, logger),
		payments: service.NewPaymentService(adapter, nil, logger),
		gate:     NewAccessGate(testSecret),
		logger:   logger,
	}
}

func (e *testEnv) seedCart(t *testing.T, owner string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.AddCartLine(ctx, owner, domain.NewCartLine(1, "SKU-MUG", "Mug", decimal.RequireFromString("10.00"), 2)))
	require.NoError(t, e.db.AddCartLine(ctx, owner, domain.NewCartLine(2, "SKU-PEN", "Pen", decimal.RequireFromString("5.00"), 1)))
}

func signToken(t *testing.T, secret []byte, email string, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func bearer(t *testing.T, email string, role domain.Role) string {
	return "Bearer " + signToken(t, testSecret, email, role, time.Hour)
}
