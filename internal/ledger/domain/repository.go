package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter selects a page of entries ordered newest first.
type ListFilter struct {
	RecipientID     snowflake.ID
	Status          EntryStatus
	BeforeCreatedAt *time.Time
	BeforeID        snowflake.ID
	Limit           int
}

type Repository interface {
	// InsertIfAbsent reports false when an entry with the same idempotency key exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, entry *CommissionLedgerEntry) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CommissionLedgerEntry, error)
	FindByKey(ctx context.Context, db *gorm.DB, recipientID, orderID snowflake.ID, commissionType CommissionType) (*CommissionLedgerEntry, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]CommissionLedgerEntry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*CommissionLedgerEntry, error)
	// UpdateStatus moves an entry from one status to another and reports whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to EntryStatus, now time.Time) (bool, error)
	TotalsByStatus(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) ([]StatusTotals, error)
	SumApprovedPayable(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error)
	SumCustomerCredit(ctx context.Context, db *gorm.DB, recipientID snowflake.ID) (int64, error)

	OrderExists(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (bool, error)
	RecipientExists(ctx context.Context, db *gorm.DB, recipientID snowflake.ID, kind RecipientKind) (bool, error)
}
