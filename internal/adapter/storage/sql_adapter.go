package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

var (
	ErrOptimisticLock     = fmt.Errorf("%w: optimistic lock conflict", domain.ErrConflict)
	ErrDuplicateReference = fmt.Errorf("%w: payment reference already used", domain.ErrConflict)
)

const mysqlDuplicateEntry = 1062

const (
	orderColumns = `id, owner_email, status, total, shipping_address, version, created_at, updated_at`

	paymentColumns = `id, order_id, owner_email, status, payment_method, reference, amount, receipt_url,
		card_last4, card_holder_name, bank_name, account_last4, account_holder_name, branch_code,
		transfer_date, paypal_email, paypal_transaction_id, admin_note, version, created_at, updated_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLAdapter implements port.DatabaseRepository for MySQL and SQLite. Both
// dialects share the same statements; only the schema and row locking
// differ.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return NewSQLAdapter(db, DialectMySQL)
}

func NewSQLiteAdapter(db *sql.DB) *SQLAdapter {
	return NewSQLAdapter(db, DialectSQLite)
}

func (a *SQLAdapter) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{q: tx, lock: a.dialect.rowLock()}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, a.db, id, "")
}

func (a *SQLAdapter) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OwnerEmail != "" {
		conds = append(conds, "owner_email = ?")
		args = append(args, filter.OwnerEmail)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders`+where(conds)+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	lines, err := loadOrderLines(ctx, a.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (a *SQLAdapter) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return getPayment(ctx, a.db, id, "")
}

func (a *SQLAdapter) ListPayments(ctx context.Context, filter port.PaymentFilter) ([]domain.Payment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OwnerEmail != "" {
		conds = append(conds, "owner_email = ?")
		args = append(args, filter.OwnerEmail)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.EmailContains != "" {
		conds = append(conds, "owner_email LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(filter.EmailContains)+"%")
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments`+where(conds)+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// AddCartLine appends a line to the owner's cart. Carts are owned by the
// catalog side of the mall; this exists for seeding and load tests.
func (a *SQLAdapter) AddCartLine(ctx context.Context, ownerEmail string, line domain.CartLine) error {
	createdAt := line.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO cart_lines (owner_email, product_id, sku, name, unit_price, quantity, line_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerEmail, line.ProductID, line.SKU, line.Name, line.UnitPrice, line.Quantity, line.LineTotal,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

type sqlTx struct {
	q    querier
	lock string
}

func (t *sqlTx) CartLines(ctx context.Context, ownerEmail string) ([]domain.CartLine, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT product_id, sku, name, unit_price, quantity, line_total, created_at
		FROM cart_lines WHERE owner_email = ? ORDER BY id`+t.lock, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ProductID, &l.SKU, &l.Name, &l.UnitPrice, &l.Quantity, &l.LineTotal, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return lines, nil
}

func (t *sqlTx) ClearCart(ctx context.Context, ownerEmail string) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE owner_email = ?`, ownerEmail); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OwnerEmail, string(o.Status), o.Total, o.ShippingAddress, o.Version,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, sku, name, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, i+1, l.ProductID, l.SKU, l.Name, l.UnitPrice, l.Quantity, l.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *sqlTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, t.q, id, t.lock)
}

func (t *sqlTx) UpdateOrderStatus(ctx context.Context, o domain.Order) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(o.Status), o.UpdatedAt.UTC(), o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (t *sqlTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx, `SELECT 1 FROM payments WHERE reference = ?`, reference).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query reference: %w", err)
	}
	return true, nil
}

func (t *sqlTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.OwnerEmail, string(p.Status), string(p.PaymentMethod), p.Reference, p.Amount,
		p.ReceiptURL, p.CardLast4, p.CardHolderName, p.BankName, p.AccountLast4, p.AccountHolderName,
		p.BranchCode, p.TransferDate, p.PaypalEmail, p.PaypalTransactionID, p.AdminNote, p.Version,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if isDuplicateKey(err) {
		return ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *sqlTx) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return getPayment(ctx, t.q, id, t.lock)
}

func (t *sqlTx) UpdatePaymentReview(ctx context.Context, p domain.Payment) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, admin_note = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(p.Status), p.AdminNote, p.UpdatedAt.UTC(), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func getOrder(ctx context.Context, q querier, id, lock string) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	lines, err := loadOrderLines(ctx, q, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	return &o, nil
}

// orderLineBatch keeps IN lists well under the placeholder limits of both
// drivers (SQLite 32766, MySQL 65535).
const orderLineBatch = 500

func loadOrderLines(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderLine, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	lines := make(map[string][]domain.OrderLine, len(orderIDs))
	for start := 0; start < len(orderIDs); start += orderLineBatch {
		end := min(start+orderLineBatch, len(orderIDs))
		if err := loadOrderLineBatch(ctx, q, orderIDs[start:end], lines); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func loadOrderLineBatch(ctx context.Context, q querier, orderIDs []string, into map[string][]domain.OrderLine) error {
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(orderIDs)), ", ")

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, sku, name, unit_price, quantity, line_total
		FROM order_lines WHERE order_id IN (`+placeholders+`)
		ORDER BY order_id, line_no`, args...)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       domain.OrderLine
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.SKU, &l.Name, &l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		into[orderID] = append(into[orderID], l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order lines: %w", err)
	}
	return nil
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.OwnerEmail, &status, &o.Total, &o.ShippingAddress, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func getPayment(ctx context.Context, q querier, id, lock string) (*domain.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return &p, nil
}

func scanPayment(row scanner) (domain.Payment, error) {
	var (
		p              domain.Payment
		status, method string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.OwnerEmail, &status, &method, &p.Reference, &p.Amount, &p.ReceiptURL,
		&p.CardLast4, &p.CardHolderName, &p.BankName, &p.AccountLast4, &p.AccountHolderName, &p.BranchCode,
		&p.TransferDate, &p.PaypalEmail, &p.PaypalTransactionID, &p.AdminNote, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = domain.PaymentStatus(status)
	p.PaymentMethod = domain.PaymentMethod(method)
	return p, err
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
