package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func SeedPartner(t testing.TB, db *gorm.DB, id snowflake.ID, kind, email, code string, now time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO partners (id, kind, name, email, referral_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, kind, strings.Split(email, "@")[0], strings.ToLower(email), code, now, now,
	).Error)
}

// SeedCustomer inserts a customer. An empty referredBy leaves the customer unattributed.
func SeedCustomer(t testing.TB, db *gorm.DB, id snowflake.ID, email, personalCode, referredBy string, now time.Time) {
	t.Helper()
	var ref any
	if referredBy != "" {
		ref = referredBy
	}
	require.NoError(t, db.Exec(
		`INSERT INTO customers (id, email, name, personal_code, referred_by_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, strings.ToLower(email), strings.Split(email, "@")[0], personalCode, ref, now, now,
	).Error)
}

type OrderSeed struct {
	ID            snowflake.ID
	Number        string
	Email         string
	CustomerID    *snowflake.ID
	SubtotalMinor int64
	DiscountMinor int64
	ShippingMinor int64
	Status        string
	ReferralCode  string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

func SeedOrder(t testing.TB, db *gorm.DB, o OrderSeed) {
	t.Helper()
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.Number == "" {
		o.Number = "PW-" + o.ID.String()
	}
	var code any
	if o.ReferralCode != "" {
		code = o.ReferralCode
	}
	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, order_number, customer_email, customer_id, subtotal_minor, discount_minor,
			shipping_minor, credit_applied_minor, currency, payment_status, referral_code, commission_bearing,
			paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 'GBP', ?, ?, TRUE, ?, ?, ?)`,
		o.ID, o.Number, strings.ToLower(o.Email), o.CustomerID, o.SubtotalMinor, o.DiscountMinor,
		o.ShippingMinor, o.Status, code, o.PaidAt, o.CreatedAt, o.CreatedAt,
	).Error)
}

// SeedIssuedCredit inserts a spendable goodwill credit issued at the given time.
func SeedIssuedCredit(t testing.TB, db *gorm.DB, id, customerID snowflake.ID, amountMinor int64, issuedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO customer_credits (id, customer_id, amount_minor, reason, status, issued_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'goodwill', 'issued', ?, ?, ?)`,
		id, customerID, amountMinor, issuedAt, issuedAt, issuedAt,
	).Error)
}

func CountRows(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Raw(query, args...).Scan(&n).Error)
	return n
}
