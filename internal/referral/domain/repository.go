package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPartner(ctx context.Context, db *gorm.DB, partner *Partner) error
	FindPartnerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	FindPartnerByCode(ctx context.Context, db *gorm.DB, code string) (*Partner, error)

	InsertCustomer(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindCustomerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindCustomerByEmail(ctx context.Context, db *gorm.DB, email string) (*Customer, error)
	FindCustomerByCode(ctx context.Context, db *gorm.DB, code string) (*Customer, error)
	// ListReferredBy returns customers whose referred-by code is one of codes.
	ListReferredBy(ctx context.Context, db *gorm.DB, codes []string) ([]Customer, error)
	// FindOwnerByCode resolves a personal code first, then a partner code.
	FindOwnerByCode(ctx context.Context, db *gorm.DB, code string) (*CodeOwner, error)
	CodeTaken(ctx context.Context, db *gorm.DB, code string) (bool, error)

	InsertReferral(ctx context.Context, db *gorm.DB, referral *Referral) error
	FindReferralByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Referral, error)
	FindReferralByCode(ctx context.Context, db *gorm.DB, code string) (*Referral, error)
	// FindActiveForEmail returns the referral entitling email at the given time, preferring
	// an applied one.
	FindActiveForEmail(ctx context.Context, db *gorm.DB, email string, at time.Time) (*Referral, error)

	MarkAccessed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	MarkAccepted(ctx context.Context, db *gorm.DB, id, customerID snowflake.ID, now time.Time) (bool, error)
	MarkApplied(ctx context.Context, db *gorm.DB, id, orderID snowflake.ID, rate decimal.Decimal, discountMinor int64, now time.Time) (bool, error)
	// ExpireStale expires unapplied referrals past their expiry whose referee placed no
	// paid order before it. With dryRun it only counts them.
	ExpireStale(ctx context.Context, db *gorm.DB, now time.Time, dryRun bool) (int64, error)
}
