package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

func getSQLiteAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, DialectSQLite, ":memory:", PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := NewSQLiteAdapter(db)
	require.NoError(t, adapter.Migrate(ctx))
	return adapter
}

func getMySQLAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/mall"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	db, err := Open(ctx, DialectMySQL, dsn, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.Migrate(context.Background()))
	return adapter
}

// forEachDialect runs fn against SQLite always and against MySQL when one
// is reachable. Test data uses unique ids and emails so a shared MySQL
// database needs no cleanup between runs.
func forEachDialect(t *testing.T, fn func(t *testing.T, a *SQLAdapter)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, getSQLiteAdapter(t)) })
	t.Run("mysql", func(t *testing.T) { fn(t, getMySQLAdapter(t)) })
}

func uniqueEmail(name string) string {
	return name + "+" + uuid.NewString()[:8] + "@example.com"
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func checkout(t *testing.T, a *SQLAdapter, owner string) domain.Order {
	t.Helper()
	ctx := context.Background()

	var order domain.Order
	err := a.WithinTx(ctx, func(tx port.Tx) error {
		cart, err := tx.CartLines(ctx, owner)
		if err != nil {
			return err
		}
		order, err = domain.NewOrder(uuid.NewString(), owner, "1 Main St", cart, testNow())
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, owner)
	})
	require.NoError(t, err)
	return order
}

func seedCart(t *testing.T, a *SQLAdapter, owner string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.AddCartLine(ctx, owner, domain.NewCartLine(1, "SKU-MUG", "Mug", dec("10.00"), 2)))
	require.NoError(t, a.AddCartLine(ctx, owner, domain.NewCartLine(2, "SKU-PEN", "Pen", dec("5.00"), 1)))
}

func TestSQLAdapter_CheckoutRoundTrip(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		owner := uniqueEmail("alice")
		seedCart(t, a, owner)

		order := checkout(t, a, owner)

		got, err := a.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, owner, got.OwnerEmail)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		assert.True(t, got.Total.Equal(dec("25.00")), "total %s", got.Total)
		assert.Equal(t, "1 Main St", got.ShippingAddress)
		assert.WithinDuration(t, order.CreatedAt, got.CreatedAt, time.Millisecond)

		require.Len(t, got.Lines, 2)
		assert.Equal(t, "SKU-MUG", got.Lines[0].SKU)
		assert.Equal(t, 2, got.Lines[0].Quantity)
		assert.True(t, got.Lines[0].UnitPrice.Equal(dec("10")))
		assert.True(t, got.Lines[0].LineTotal.Equal(dec("20")))
		assert.Equal(t, "SKU-PEN", got.Lines[1].SKU)

		err = a.WithinTx(ctx, func(tx port.Tx) error {
			cart, err := tx.CartLines(ctx, owner)
			require.NoError(t, err)
			assert.Empty(t, cart)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestSQLAdapter_RollbackLeavesNoTrace(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		owner := uniqueEmail("bob")
		seedCart(t, a, owner)
		errBoom := errors.New("boom")

		var orderID string
		err := a.WithinTx(ctx, func(tx port.Tx) error {
			cart, err := tx.CartLines(ctx, owner)
			if err != nil {
				return err
			}
			order, err := domain.NewOrder(uuid.NewString(), owner, "", cart, testNow())
			if err != nil {
				return err
			}
			orderID = order.ID
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.ClearCart(ctx, owner); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		got, err := a.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Nil(t, got)

		order := checkout(t, a, owner)
		assert.Len(t, order.Lines, 2, "cart must survive the rolled back attempt")
	})
}

func TestSQLAdapter_NotFoundIsNil(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()

		o, err := a.GetOrder(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, o)

		p, err := a.GetPayment(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestSQLAdapter_UpdateOrderStatus_OptimisticLock(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		owner := uniqueEmail("carol")
		seedCart(t, a, owner)
		order := checkout(t, a, owner)

		err := a.WithinTx(ctx, func(tx port.Tx) error {
			o, err := tx.GetOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			if _, err := o.TransitionTo(domain.OrderStatusConfirmed, testNow()); err != nil {
				return err
			}
			return tx.UpdateOrderStatus(ctx, *o)
		})
		require.NoError(t, err)

		got, err := a.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
		assert.Equal(t, 1, got.Version)

		stale := order
		stale.Status = domain.OrderStatusCancelled
		err = a.WithinTx(ctx, func(tx port.Tx) error {
			return tx.UpdateOrderStatus(ctx, stale)
		})
		assert.ErrorIs(t, err, ErrOptimisticLock)
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err = a.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	})
}

func newTestPayment(owner, orderID, reference string, method domain.PaymentMethod) domain.Payment {
	sub := domain.PaymentSubmission{
		Amount:         dec("25.00"),
		CardNumber:     "4532015112830366",
		CardHolderName: "Alice Smith",
	}
	return domain.NewPayment(uuid.NewString(), owner, orderID, reference, method, sub, testNow())
}

func TestSQLAdapter_PaymentReferenceIsUnique(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		owner := uniqueEmail("dave")
		ref := "REF-" + uuid.NewString()

		first := newTestPayment(owner, "o1", ref, domain.PaymentMethodCard)
		err := a.WithinTx(ctx, func(tx port.Tx) error {
			return tx.InsertPayment(ctx, first)
		})
		require.NoError(t, err)

		err = a.WithinTx(ctx, func(tx port.Tx) error {
			exists, err := tx.ReferenceExists(ctx, ref)
			require.NoError(t, err)
			assert.True(t, exists)

			exists, err = tx.ReferenceExists(ctx, ref+"-other")
			require.NoError(t, err)
			assert.False(t, exists)

			return tx.InsertPayment(ctx, newTestPayment(owner, "o2", ref, domain.PaymentMethodCard))
		})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := a.GetPayment(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ref, got.Reference)
		assert.Equal(t, "0366", got.CardLast4)
		assert.Equal(t, "Alice Smith", got.CardHolderName)
		assert.Equal(t, domain.PaymentMethodCard, got.PaymentMethod)
		assert.True(t, got.Amount.Equal(dec("25")))
	})
}

func TestSQLAdapter_UpdatePaymentReview(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		p := newTestPayment(uniqueEmail("erin"), "o1", "REF-"+uuid.NewString(), domain.PaymentMethodCard)
		require.NoError(t, a.WithinTx(ctx, func(tx port.Tx) error { return tx.InsertPayment(ctx, p) }))

		err := a.WithinTx(ctx, func(tx port.Tx) error {
			got, err := tx.GetPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			if err := got.Review(domain.PaymentStatusRejected, "blurry receipt", testNow()); err != nil {
				return err
			}
			return tx.UpdatePaymentReview(ctx, *got)
		})
		require.NoError(t, err)

		got, err := a.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRejected, got.Status)
		assert.Equal(t, "blurry receipt", got.AdminNote)
		assert.Equal(t, 1, got.Version)

		err = a.WithinTx(ctx, func(tx port.Tx) error { return tx.UpdatePaymentReview(ctx, p) })
		assert.ErrorIs(t, err, ErrOptimisticLock)
	})
}

func TestSQLAdapter_ListFilters(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		ctx := context.Background()
		alice := uniqueEmail("alice")
		bob := uniqueEmail("bob_100%")

		seedCart(t, a, alice)
		older := checkout(t, a, alice)
		time.Sleep(2 * time.Millisecond)
		seedCart(t, a, alice)
		newer := checkout(t, a, alice)
		seedCart(t, a, bob)
		checkout(t, a, bob)

		orders, err := a.ListOrders(ctx, port.OrderFilter{OwnerEmail: alice})
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, newer.ID, orders[0].ID, "newest first")
		assert.Equal(t, older.ID, orders[1].ID)
		assert.Len(t, orders[1].Lines, 2)

		orders, err = a.ListOrders(ctx, port.OrderFilter{OwnerEmail: alice, Status: domain.OrderStatusCancelled})
		require.NoError(t, err)
		assert.Empty(t, orders)

		pa := newTestPayment(alice, older.ID, "REF-"+uuid.NewString(), domain.PaymentMethodCard)
		pb := newTestPayment(bob, "o", "REF-"+uuid.NewString(), domain.PaymentMethodCashOnDelivery)
		require.NoError(t, a.WithinTx(ctx, func(tx port.Tx) error {
			if err := tx.InsertPayment(ctx, pa); err != nil {
				return err
			}
			return tx.InsertPayment(ctx, pb)
		}))

		payments, err := a.ListPayments(ctx, port.PaymentFilter{OwnerEmail: alice})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, pa.ID, payments[0].ID)

		payments, err = a.ListPayments(ctx, port.PaymentFilter{EmailContains: "bob_100%+"})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, pb.ID, payments[0].ID)
		assert.Equal(t, domain.PaymentStatusVerified, payments[0].Status)

		payments, err = a.ListPayments(ctx, port.PaymentFilter{EmailContains: "bob_100%+", Status: domain.PaymentStatusPending})
		require.NoError(t, err)
		assert.Empty(t, payments)
	})
}

func insertOrders(t *testing.T, a *SQLAdapter, owner string, n int) {
	t.Helper()
	ctx := context.Background()
	cart := []domain.CartLine{domain.NewCartLine(1, "SKU-PIN", "Pin", dec("1.50"), 2)}

	require.NoError(t, a.WithinTx(ctx, func(tx port.Tx) error {
		for i := 0; i < n; i++ {
			order, err := domain.NewOrder(uuid.NewString(), owner, "1 Main St", cart, testNow())
			if err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestSQLAdapter_ListOrders_SpansLineBatches(t *testing.T) {
	forEachDialect(t, func(t *testing.T, a *SQLAdapter) {
		owner := uniqueEmail("bulk")
		n := 2*orderLineBatch + 7
		insertOrders(t, a, owner, n)

		orders, err := a.ListOrders(context.Background(), port.OrderFilter{OwnerEmail: owner, Status: domain.OrderStatusPending})
		require.NoError(t, err)
		require.Len(t, orders, n)
		for _, o := range orders {
			require.Len(t, o.Lines, 1, "order %s", o.ID)
			assert.True(t, o.Lines[0].LineTotal.Equal(dec("3.00")))
		}
	})
}

func TestSQLAdapter_ListOrders_BeyondPlaceholderLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("inserts 33k orders")
	}
	a := getSQLiteAdapter(t)
	owner := uniqueEmail("bulk")
	insertOrders(t, a, owner, 33000)

	orders, err := a.ListOrders(context.Background(), port.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, orders, 33000)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("postgres")
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "a!%b!_c!!d", escapeLike("a%b_c!d"))
}
