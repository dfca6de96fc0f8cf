package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"gorm.io/gorm"
)

const entryColumns = `id, recipient_id, recipient_kind, order_id, commission_type, commission_rate,
	base_amount_minor, commission_amount_minor, currency, status, metadata, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, entry *domain.CommissionLedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO commission_ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (recipient_id, order_id, commission_type) DO NOTHING`,
		entry.ID,
		entry.RecipientID,
		entry.RecipientKind,
		entry.OrderID,
		entry.CommissionType,
		entry.CommissionRate,
		entry.BaseAmountMinor,
		entry.CommissionAmountMinor,
		entry.Currency,
		entry.Status,
		entry.Metadata,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CommissionLedgerEntry, error) {
	var entry domain.CommissionLedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM commission_ledger_entries WHERE id = ?`,
		id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, recipientID, orderID snowflake.ID, commissionType domain.CommissionType) (*domain.CommissionLedgerEntry, error) {
	var entry domain.CommissionLedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM commission_ledger_entries
		 WHERE recipient_id = ? AND order_id = ? AND commission_type = ?`,
		recipientID,
		orderID,
		commissionType,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.CommissionLedgerEntry, error) {
	var entries []domain.CommissionLedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM commission_ledger_entries
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.CommissionLedgerEntry, error) {
	var entries []*domain.CommissionLedgerEntry
	stmt := db.WithContext(ctx).
		Model(&domain.CommissionLedgerEntry{}).
		Where("recipient_id = ?", filter.RecipientID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.BeforeCreatedAt != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			*filter.BeforeCreatedAt, *filter.BeforeCreatedAt, filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.EntryStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commission_ledger_entries
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) TotalsByStatus(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) ([]domain.StatusTotals, error) {
	var totals []domain.StatusTotals
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(1) AS count, COALESCE(SUM(commission_amount_minor), 0) AS amount_minor
		 FROM commission_ledger_entries
		 WHERE recipient_id = ? AND commission_type <> ?
		 GROUP BY status
		 ORDER BY status`,
		recipientID,
		domain.CommissionTypeCustomerCredit,
	).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) SumApprovedPayable(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(commission_amount_minor), 0)
		 FROM commission_ledger_entries
		 WHERE recipient_id = ? AND status = ? AND commission_type <> ?`,
		recipientID,
		domain.EntryStatusApproved,
		domain.CommissionTypeCustomerCredit,
	).Scan(&total).Error
	return total, err
}

func (r *repo) SumCustomerCredit(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(commission_amount_minor), 0)
		 FROM commission_ledger_entries
		 WHERE recipient_id = ? AND commission_type = ?`,
		recipientID,
		domain.CommissionTypeCustomerCredit,
	).Scan(&total).Error
	return total, err
}

func (r *repo) OrderExists(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM orders WHERE id = ?`, orderID).Scan(&count).Error
	return count > 0, err
}

func (r *repo) RecipientExists(ctx context.Context, db *gorm.DB, recipientID snowflake.ID, kind domain.RecipientKind) (bool, error) {
	var count int64
	var err error
	switch kind {
	case domain.RecipientKindCustomer:
		err = db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM customers WHERE id = ?`, recipientID).Scan(&count).Error
	case domain.RecipientKindPartner, domain.RecipientKindInfluencer:
		err = db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM partners WHERE id = ? AND kind = ?`,
			recipientID,
			kind,
		).Scan(&count).Error
	default:
		return false, domain.ErrInvalidRecipientKind
	}
	return count > 0, err
}
