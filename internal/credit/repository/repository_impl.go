package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	"gorm.io/gorm"
)

const creditColumns = `id, customer_id, amount_minor, source_order_id, source_referral_id, source_entry_id,
	parent_credit_id, reason, status, consumed_by_order_id, issued_at, used_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, credit *domain.CustomerCredit) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO customer_credits (`+creditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		credit.ID,
		credit.CustomerID,
		credit.AmountMinor,
		credit.SourceOrderID,
		credit.SourceReferralID,
		credit.SourceEntryID,
		credit.ParentCreditID,
		credit.Reason,
		credit.Status,
		credit.ConsumedByOrderID,
		credit.IssuedAt,
		credit.UsedAt,
		credit.CreatedAt,
		credit.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindBySourceOrder(ctx context.Context, db *gorm.DB, customerID, orderID snowflake.ID, reason domain.CreditReason) (*domain.CustomerCredit, error) {
	var credit domain.CustomerCredit
	err := db.WithContext(ctx).Raw(
		`SELECT `+creditColumns+`
		 FROM customer_credits
		 WHERE customer_id = ? AND source_order_id = ? AND reason = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		customerID,
		orderID,
		reason,
	).Scan(&credit).Error
	if err != nil {
		return nil, err
	}
	if credit.ID == 0 {
		return nil, nil
	}
	return &credit, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.CustomerCredit, error) {
	var credits []domain.CustomerCredit
	err := db.WithContext(ctx).Raw(
		`SELECT `+creditColumns+`
		 FROM customer_credits
		 WHERE customer_id = ?
		 ORDER BY created_at DESC, id DESC`,
		customerID,
	).Scan(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

func (r *repo) ListIssuedFIFO(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.CustomerCredit, error) {
	var credits []domain.CustomerCredit
	err := db.WithContext(ctx).Raw(
		`SELECT `+creditColumns+`
		 FROM customer_credits
		 WHERE customer_id = ? AND status = ? AND amount_minor > 0
		 ORDER BY issued_at ASC, id ASC`,
		customerID,
		domain.CreditStatusIssued,
	).Scan(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

func (r *repo) SumIssued(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_minor), 0)
		 FROM customer_credits
		 WHERE customer_id = ? AND status = ?`,
		customerID,
		domain.CreditStatusIssued,
	).Scan(&total).Error
	return total, err
}

func (r *repo) ConsumeWhole(ctx context.Context, db *gorm.DB, creditID, orderID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customer_credits
		 SET status = ?, consumed_by_order_id = ?, used_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.CreditStatusUsed,
		orderID,
		now,
		now,
		creditID,
		domain.CreditStatusIssued,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ConsumePart(ctx context.Context, db *gorm.DB, creditID, orderID snowflake.ID, expectedMinor, usedMinor int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customer_credits
		 SET status = ?, amount_minor = ?, consumed_by_order_id = ?, used_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND amount_minor = ?`,
		domain.CreditStatusUsed,
		usedMinor,
		orderID,
		now,
		now,
		creditID,
		domain.CreditStatusIssued,
		expectedMinor,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.OrderForRedemption, error) {
	var order domain.OrderForRedemption
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_email, customer_id, subtotal_minor, discount_minor, shipping_minor,
		        credit_applied_minor, credit_applied_at, payment_status
		 FROM orders WHERE id = ?`,
		orderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindCustomerEmail(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (string, error) {
	var email string
	err := db.WithContext(ctx).Raw(`SELECT email FROM customers WHERE id = ?`, customerID).Scan(&email).Error
	return email, err
}

func (r *repo) StampOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, appliedMinor int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET credit_applied_minor = ?, credit_applied_at = ?, updated_at = ?
		 WHERE id = ? AND credit_applied_at IS NULL AND payment_status = ?`,
		appliedMinor,
		now,
		now,
		orderID,
		"pending",
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
