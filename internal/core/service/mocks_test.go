package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

var errInjected = errors.New("injected failure")

// Mock DatabaseRepository. WithinTx works on copies and only publishes
// them when fn succeeds, so failed transactions leave no trace.
type mockDB struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	carts    map[string][]domain.CartLine

	failOn          string // Tx method that returns errInjected
	skipRefPrecheck bool   // ReferenceExists always reports false
}

func newMockDB() *mockDB {
	return &mockDB{
		orders:   make(map[string]domain.Order),
		payments: make(map[string]domain.Payment),
		carts:    make(map[string][]domain.CartLine),
	}
}

func (m *mockDB) addCartLine(owner string, line domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[owner] = append(m.carts[owner], line)
}

func (m *mockDB) putOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *mockDB) order(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *mockDB) payment(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *mockDB) counts() (orders, payments, cartLines int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lines := range m.carts {
		cartLines += len(lines)
	}
	return len(m.orders), len(m.payments), cartLines
}

func (m *mockDB) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockTx{
		db:       m,
		orders:   maps.Clone(m.orders),
		payments: maps.Clone(m.payments),
		carts:    maps.Clone(m.carts),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.orders, m.payments, m.carts = tx.orders, tx.payments, tx.carts
	return nil
}

func (m *mockDB) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *mockDB) ListOrders(ctx context.Context, f port.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if f.OwnerEmail != "" && o.OwnerEmail != f.OwnerEmail {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockDB) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockDB) ListPayments(ctx context.Context, f port.PaymentFilter) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if f.OwnerEmail != "" && p.OwnerEmail != f.OwnerEmail {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.EmailContains != "" && !strings.Contains(p.OwnerEmail, f.EmailContains) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type mockTx struct {
	db       *mockDB
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	carts    map[string][]domain.CartLine
}

func (t *mockTx) fail(method string) error {
	if t.db.failOn == method {
		return fmt.Errorf("%s: %w", method, errInjected)
	}
	return nil
}

func (t *mockTx) CartLines(ctx context.Context, owner string) ([]domain.CartLine, error) {
	if err := t.fail("CartLines"); err != nil {
		return nil, err
	}
	return slices.Clone(t.carts[owner]), nil
}

func (t *mockTx) ClearCart(ctx context.Context, owner string) error {
	if err := t.fail("ClearCart"); err != nil {
		return err
	}
	delete(t.carts, owner)
	return nil
}

func (t *mockTx) InsertOrder(ctx context.Context, o domain.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	t.orders[o.ID] = o
	return nil
}

func (t *mockTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *mockTx) UpdateOrderStatus(ctx context.Context, o domain.Order) error {
	if err := t.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	stored, ok := t.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return fmt.Errorf("%w: stale order version", domain.ErrConflict)
	}
	o.Version++
	t.orders[o.ID] = o
	return nil
}

func (t *mockTx) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	if t.db.skipRefPrecheck {
		return false, nil
	}
	for _, p := range t.payments {
		if p.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	for _, existing := range t.payments {
		if existing.Reference == p.Reference {
			return fmt.Errorf("%w: duplicate reference", domain.ErrConflict)
		}
	}
	t.payments[p.ID] = p
	return nil
}

func (t *mockTx) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	p, ok := t.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *mockTx) UpdatePaymentReview(ctx context.Context, p domain.Payment) error {
	if err := t.fail("UpdatePaymentReview"); err != nil {
		return err
	}
	stored, ok := t.payments[p.ID]
	if !ok || stored.Version != p.Version {
		return fmt.Errorf("%w: stale payment version", domain.ErrConflict)
	}
	p.Version++
	t.payments[p.ID] = p
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{keys: make(map[string]string)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = token
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == token {
		delete(m.keys, key)
	}
	return nil
}

func (m *mockCacheRepo) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
