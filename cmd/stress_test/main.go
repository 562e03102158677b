package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tharu616/shopping-mall-platform/internal/adapter/storage"
	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/core/service"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

const (
	totalCheckouts = 50
	totalUploads   = 50
)

func main() {
	ctx := context.Background()

	// SQLite in memory unless MYSQL_DSN points at a real server
	dialect, dsn := storage.DialectSQLite, ":memory:"
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		dialect, dsn = storage.DialectMySQL, v
	}

	sqlDB, err := storage.Open(ctx, dialect, dsn, storage.PoolConfig{MaxOpenConns: 50, MaxIdleConns: 25, ConnMaxLifetime: time.Minute})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer sqlDB.Close()

	db := storage.NewSQLAdapter(sqlDB, dialect)
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Redis is needed for the idempotency scenario only
	var cache port.CacheRepository
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := service.NewOrderService(db, cache, logger)
	payments := service.NewPaymentService(db, cache, logger)

	user := domain.Principal{Email: "stress-" + uuid.NewString()[:8] + "@example.com", Role: domain.RoleCustomer}
	if err := db.AddCartLine(ctx, user.Email, domain.NewCartLine(1, "SKU-STRESS", "Stress Item", decimal.RequireFromString("19.99"), 3)); err != nil {
		log.Fatalf("failed to seed cart: %v", err)
	}

	// Scenario 1: concurrent checkouts sharing one idempotency key
	key := uuid.NewString()
	var (
		checkoutOK   atomic.Int32
		checkoutFail atomic.Int32
		orderID      atomic.Value
		wg           sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalCheckouts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			order, err := orders.Checkout(ctx, user, service.CheckoutRequest{ShippingAddress: "1 Stress Ave", IdempotencyKey: key})
			if err == nil {
				checkoutOK.Add(1)
				orderID.Store(order.ID)
			} else {
				checkoutFail.Add(1)
			}
		}()
	}

	wg.Wait()
	checkoutElapsed := time.Since(start)

	fmt.Println("========== CHECKOUT RESULTS ==========")
	fmt.Printf("Idempotency:      %v\n", cache != nil)
	fmt.Printf("Total Requests:   %d\n", totalCheckouts)
	fmt.Printf("Successful:       %d\n", checkoutOK.Load())
	fmt.Printf("Failed:           %d\n", checkoutFail.Load())
	fmt.Printf("Duration:         %v\n", checkoutElapsed)
	fmt.Println("======================================")

	// Without a key store the first checkout empties the cart and the rest fail
	if checkoutOK.Load() == 1 && checkoutFail.Load() == totalCheckouts-1 {
		fmt.Printf("PASS: Exactly 1 order placed, %d rejected\n", totalCheckouts-1)
	} else {
		fmt.Printf("FAIL: Expected 1 success/%d fail, got %d/%d\n",
			totalCheckouts-1, checkoutOK.Load(), checkoutFail.Load())
	}

	id, _ := orderID.Load().(string)
	if id == "" {
		log.Fatal("no order to pay for")
	}
	order, err := orders.Get(ctx, user, id)
	if err != nil {
		log.Fatalf("failed to load order: %v", err)
	}

	// Scenario 2: concurrent payments racing for one reference
	ref := "STRESS-" + uuid.NewString()
	var uploadOK, uploadConflict, uploadOther atomic.Int32
	start = time.Now()

	for i := 0; i < totalUploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := payments.Upload(ctx, user, domain.PaymentSubmission{
				OrderID:       order.ID,
				PaymentMethod: string(domain.PaymentMethodCashOnDelivery),
				Amount:        order.Total,
				Reference:     ref,
			}, "")
			switch {
			case err == nil:
				uploadOK.Add(1)
			case errors.Is(err, domain.ErrConflict):
				uploadConflict.Add(1)
			default:
				uploadOther.Add(1)
			}
		}()
	}

	wg.Wait()
	uploadElapsed := time.Since(start)

	fmt.Println("========== PAYMENT RESULTS ===========")
	fmt.Printf("Total Requests:   %d\n", totalUploads)
	fmt.Printf("Successful:       %d\n", uploadOK.Load())
	fmt.Printf("Conflicts:        %d\n", uploadConflict.Load())
	fmt.Printf("Other Errors:     %d\n", uploadOther.Load())
	fmt.Printf("Duration:         %v\n", uploadElapsed)
	fmt.Println("======================================")

	if uploadOK.Load() == 1 && uploadConflict.Load() == totalUploads-1 {
		fmt.Printf("PASS: Reference %s stored once\n", ref)
	} else {
		fmt.Printf("FAIL: Expected 1 success/%d conflicts, got %d/%d\n",
			totalUploads-1, uploadOK.Load(), uploadConflict.Load())
	}

	stored, err := db.ListPayments(ctx, port.PaymentFilter{OwnerEmail: user.Email})
	if err != nil {
		log.Fatalf("failed to list payments: %v", err)
	}
	rows := 0
	for _, p := range stored {
		if p.Reference == domain.NormalizeReference(ref) {
			rows++
		}
	}
	if rows == 1 {
		fmt.Println("PASS: One payment row persisted")
	} else {
		fmt.Printf("FAIL: Expected 1 payment row, got %d\n", rows)
	}
}
