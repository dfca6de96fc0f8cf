package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes a credit and reports false when a uniqueness rule on its source
	// (entry id, or order id for retrofits) already holds a row.
	Insert(ctx context.Context, db *gorm.DB, credit *CustomerCredit) (bool, error)
	FindBySourceOrder(ctx context.Context, db *gorm.DB, customerID, orderID snowflake.ID, reason CreditReason) (*CustomerCredit, error)
	List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]CustomerCredit, error)
	ListIssuedFIFO(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]CustomerCredit, error)
	SumIssued(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (int64, error)

	// ConsumeWhole marks an issued row used. It reports false when the row is no longer issued.
	ConsumeWhole(ctx context.Context, db *gorm.DB, creditID, orderID snowflake.ID, now time.Time) (bool, error)
	// ConsumePart shrinks an issued row to usedMinor and marks it used. It reports false
	// when the row changed since it was read.
	ConsumePart(ctx context.Context, db *gorm.DB, creditID, orderID snowflake.ID, expectedMinor, usedMinor int64, now time.Time) (bool, error)

	FindOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*OrderForRedemption, error)
	FindCustomerEmail(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (string, error)
	// StampOrder records the applied credit once. It reports false when the order was
	// already stamped or is no longer pending.
	StampOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, appliedMinor int64, now time.Time) (bool, error)
}
