package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, order_number, customer_email, customer_id, subtotal_minor, discount_minor, shipping_minor,
	credit_applied_minor, credit_applied_at, currency, payment_status, referral_code, commission_bearing,
	paid_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.CustomerEmail,
		order.CustomerID,
		order.SubtotalMinor,
		order.DiscountMinor,
		order.ShippingMinor,
		order.CreditAppliedMinor,
		order.CreditAppliedAt,
		order.Currency,
		order.PaymentStatus,
		order.ReferralCode,
		order.CommissionBearing,
		order.PaidAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		domain.PaymentStatusPaid,
		paidAt,
		paidAt,
		id,
		domain.PaymentStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) HasEarlierPaidOrder(ctx context.Context, db *gorm.DB, email string, createdAt time.Time, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM orders
		 WHERE customer_email = ? AND payment_status = ? AND id <> ?
		   AND (created_at < ? OR (created_at = ? AND id < ?))`,
		normalizeEmail(email),
		domain.PaymentStatusPaid,
		id,
		createdAt,
		createdAt,
		id,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) HasPaidOrder(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders WHERE customer_email = ? AND payment_status = ?`,
		normalizeEmail(email),
		domain.PaymentStatusPaid,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListPaidSince(ctx context.Context, db *gorm.DB, since time.Time, after *domain.PaidCursor, limit int) ([]domain.Order, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("payment_status = ?", domain.PaymentStatusPaid).
		Where("created_at >= ?", since)
	if after != nil {
		stmt = stmt.Where("(created_at > ?) OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var orders []domain.Order
	if err := stmt.Order("created_at asc, id asc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) AggregateByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]domain.EmailAggregate, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized = append(normalized, normalizeEmail(e))
	}

	var rows []domain.EmailAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT customer_email, COUNT(1) AS order_count, COALESCE(SUM(subtotal_minor), 0) AS revenue_minor
		 FROM orders
		 WHERE customer_email IN ? AND payment_status = ?
		 GROUP BY customer_email
		 ORDER BY customer_email`,
		normalized,
		domain.PaymentStatusPaid,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
