package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PaidCursor positions a keyset scan over paid orders, oldest first.
type PaidCursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// MarkPaid moves a pending order to paid and reports whether this call did it.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
	// HasEarlierPaidOrder reports a paid order for email placed before (createdAt, id).
	HasEarlierPaidOrder(ctx context.Context, db *gorm.DB, email string, createdAt time.Time, id snowflake.ID) (bool, error)
	HasPaidOrder(ctx context.Context, db *gorm.DB, email string) (bool, error)
	ListPaidSince(ctx context.Context, db *gorm.DB, since time.Time, after *PaidCursor, limit int) ([]Order, error)
	AggregateByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]EmailAggregate, error)
}
