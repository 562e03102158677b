package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/tharu616/shopping-mall-platform/internal/adapter/handler"
	"github.com/tharu616/shopping-mall-platform/internal/adapter/storage"
	"github.com/tharu616/shopping-mall-platform/internal/config"
	"github.com/tharu616/shopping-mall-platform/internal/core/service"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, closeDB, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	// SQLite is the dev/test mode and starts from an empty file
	if cfg.Database.Driver == string(storage.DialectSQLite) {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	var cache port.CacheRepository
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("redis not configured, idempotency keys are ignored")
	}

	orderService := service.NewOrderService(db, cache, logger)
	paymentService := service.NewPaymentService(db, cache, logger)
	gate := handler.NewAccessGate([]byte(cfg.Auth.JWTSecret))

	errCh := make(chan error, 2)

	// gRPC admin surface
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(gate.UnaryInterceptor))
	handler.RegisterAdminServer(grpcServer, handler.NewGRPCHandler(orderService, paymentService, logger))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// HTTP API
	var limiter *handler.CallerLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = handler.NewCallerLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewHTTPHandler(orderService, paymentService, logger).Routes(gate, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case serveErr = <-errCh:
		logger.Error("server failed, shutting down", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	return serveErr
}
