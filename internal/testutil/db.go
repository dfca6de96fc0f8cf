// Package testutil opens in-memory sqlite stores carrying the production schema.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE partners (
		id BIGINT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		referral_code TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_partners_email ON partners(email)`,
	`CREATE UNIQUE INDEX ux_partners_referral_code ON partners(referral_code)`,
	`CREATE TABLE customers (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		personal_code TEXT NOT NULL,
		referred_by_code TEXT,
		referred_by_id BIGINT,
		referred_by_kind TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_customers_email ON customers(email)`,
	`CREATE UNIQUE INDEX ux_customers_personal_code ON customers(personal_code)`,
	`CREATE INDEX ix_customers_referred_by_code ON customers(referred_by_code)`,
	`CREATE TABLE referrals (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		referrer_id BIGINT NOT NULL,
		referrer_kind TEXT NOT NULL,
		referee_email TEXT NOT NULL,
		referee_customer_id BIGINT,
		status TEXT NOT NULL,
		order_id BIGINT,
		commission_rate TEXT,
		discount_minor BIGINT,
		expires_at DATETIME NOT NULL,
		accessed_at DATETIME,
		accepted_at DATETIME,
		applied_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_referrals_code ON referrals(code)`,
	`CREATE INDEX ix_referrals_referee_email ON referrals(referee_email)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		order_number TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_id BIGINT,
		subtotal_minor BIGINT NOT NULL,
		discount_minor BIGINT NOT NULL DEFAULT 0,
		shipping_minor BIGINT NOT NULL DEFAULT 0,
		credit_applied_minor BIGINT NOT NULL DEFAULT 0,
		credit_applied_at DATETIME,
		currency TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		referral_code TEXT,
		commission_bearing BOOLEAN NOT NULL DEFAULT TRUE,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_orders_order_number ON orders(order_number)`,
	`CREATE INDEX ix_orders_customer_email ON orders(customer_email)`,
	`CREATE TABLE commission_ledger_entries (
		id BIGINT PRIMARY KEY,
		recipient_id BIGINT NOT NULL,
		recipient_kind TEXT NOT NULL,
		order_id BIGINT NOT NULL,
		commission_type TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		base_amount_minor BIGINT NOT NULL,
		commission_amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_commission_ledger_entries_key ON commission_ledger_entries(recipient_id, order_id, commission_type)`,
	`CREATE INDEX ix_commission_ledger_entries_order ON commission_ledger_entries(order_id)`,
	`CREATE TABLE customer_credits (
		id BIGINT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		amount_minor BIGINT NOT NULL,
		source_order_id BIGINT,
		source_referral_id BIGINT,
		source_entry_id BIGINT,
		parent_credit_id BIGINT,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		consumed_by_order_id BIGINT,
		issued_at DATETIME,
		used_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_customer_credits_source_entry ON customer_credits(source_entry_id) WHERE source_entry_id IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_customer_credits_retrofit ON customer_credits(customer_id, source_order_id, reason) WHERE reason = 'discount_retrofit'`,
	`CREATE INDEX ix_customer_credits_customer_status ON customer_credits(customer_id, status)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		order_id BIGINT,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	`CREATE TABLE profiles (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		entity_id BIGINT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE reconciliation_runs (
		id BIGINT PRIMARY KEY,
		run_key TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL,
		status TEXT NOT NULL,
		summary TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_reconciliation_runs_run_key ON reconciliation_runs(run_key)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX ix_audit_logs_created ON audit_logs(created_at, id)`,
}

// OpenDB returns an isolated in-memory store with the full schema applied. A single
// connection keeps every statement of a test on the same in-memory database.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pawtraits_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}
	return db
}

// Node returns a snowflake node for test ids.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func Logger() *zap.Logger {
	return zap.NewNop()
}
