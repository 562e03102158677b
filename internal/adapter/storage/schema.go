package storage

import (
	"context"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		owner_email VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		shipping_address VARCHAR(500) NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_orders_owner (owner_email, created_at),
		INDEX idx_orders_status (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id VARCHAR(36) NOT NULL,
		line_no INT NOT NULL,
		product_id BIGINT NOT NULL,
		sku VARCHAR(64) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		unit_price DECIMAL(12,2) NOT NULL,
		quantity INT NOT NULL,
		line_total DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (order_id, line_no),
		CONSTRAINT fk_order_lines_order FOREIGN KEY (order_id) REFERENCES orders (id)
	)`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		owner_email VARCHAR(255) NOT NULL,
		product_id BIGINT NOT NULL,
		sku VARCHAR(64) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		unit_price DECIMAL(12,2) NOT NULL,
		quantity INT NOT NULL,
		line_total DECIMAL(12,2) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_cart_lines_owner (owner_email)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		order_id VARCHAR(36) NOT NULL,
		owner_email VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		reference VARCHAR(255) NOT NULL,
		amount DECIMAL(12,2) NOT NULL,
		receipt_url VARCHAR(1024) NOT NULL DEFAULT '',
		card_last4 VARCHAR(4) NOT NULL DEFAULT '',
		card_holder_name VARCHAR(255) NOT NULL DEFAULT '',
		bank_name VARCHAR(255) NOT NULL DEFAULT '',
		account_last4 VARCHAR(4) NOT NULL DEFAULT '',
		account_holder_name VARCHAR(255) NOT NULL DEFAULT '',
		branch_code VARCHAR(16) NOT NULL DEFAULT '',
		transfer_date VARCHAR(10) NOT NULL DEFAULT '',
		paypal_email VARCHAR(255) NOT NULL DEFAULT '',
		paypal_transaction_id VARCHAR(64) NOT NULL DEFAULT '',
		admin_note TEXT NOT NULL,
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_payments_reference (reference),
		INDEX idx_payments_owner (owner_email, created_at),
		INDEX idx_payments_status (status, created_at),
		INDEX idx_payments_order (order_id)
	)`,
}

// SQLite keeps money as TEXT so decimals round-trip exactly, and declares
// timestamps as DATETIME so the driver scans them into time.Time.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT NOT NULL PRIMARY KEY,
		owner_email TEXT NOT NULL,
		status TEXT NOT NULL,
		total TEXT NOT NULL,
		shipping_address TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders (owner_email, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id TEXT NOT NULL REFERENCES orders (id),
		line_no INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		line_total TEXT NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_email TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		line_total TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cart_lines_owner ON cart_lines (owner_email)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT NOT NULL PRIMARY KEY,
		order_id TEXT NOT NULL,
		owner_email TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		receipt_url TEXT NOT NULL DEFAULT '',
		card_last4 TEXT NOT NULL DEFAULT '',
		card_holder_name TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		account_last4 TEXT NOT NULL DEFAULT '',
		account_holder_name TEXT NOT NULL DEFAULT '',
		branch_code TEXT NOT NULL DEFAULT '',
		transfer_date TEXT NOT NULL DEFAULT '',
		paypal_email TEXT NOT NULL DEFAULT '',
		paypal_transaction_id TEXT NOT NULL DEFAULT '',
		admin_note TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_owner ON payments (owner_email, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order ON payments (order_id)`,
}

// Migrate creates any missing tables and indexes. It is safe to run on
// every start.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	stmts := mysqlSchema
	if a.dialect == DialectSQLite {
		stmts = sqliteSchema
	}

	for i, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
