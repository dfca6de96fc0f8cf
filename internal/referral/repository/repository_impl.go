package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	partnerColumns  = `id, kind, name, email, referral_code, created_at, updated_at`
	customerColumns = `id, email, name, personal_code, referred_by_code, referred_by_id, referred_by_kind, created_at, updated_at`
	referralColumns = `id, code, referrer_id, referrer_kind, referee_email, referee_customer_id, status, order_id,
	commission_rate, discount_minor, expires_at, accessed_at, accepted_at, applied_at, created_at, updated_at`
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPartner(ctx context.Context, db *gorm.DB, partner *domain.Partner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partners (`+partnerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.Kind,
		partner.Name,
		partner.Email,
		partner.ReferralCode,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) FindPartnerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Partner, error) {
	return r.findPartner(ctx, db, `id = ?`, id)
}

func (r *repo) FindPartnerByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Partner, error) {
	return r.findPartner(ctx, db, `referral_code = ?`, normalizeCode(code))
}

func (r *repo) findPartner(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Partner, error) {
	var partner domain.Partner
	err := db.WithContext(ctx).Raw(`SELECT `+partnerColumns+` FROM partners WHERE `+where, arg).Scan(&partner).Error
	if err != nil {
		return nil, err
	}
	if partner.ID == 0 {
		return nil, nil
	}
	return &partner, nil
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.Email,
		customer.Name,
		customer.PersonalCode,
		customer.ReferredByCode,
		customer.ReferredByID,
		customer.ReferredByKind,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindCustomerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return r.findCustomer(ctx, db, `id = ?`, id)
}

func (r *repo) FindCustomerByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Customer, error) {
	return r.findCustomer(ctx, db, `email = ?`, normalizeEmail(email))
}

func (r *repo) FindCustomerByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Customer, error) {
	return r.findCustomer(ctx, db, `personal_code = ?`, normalizeCode(code))
}

func (r *repo) findCustomer(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(`SELECT `+customerColumns+` FROM customers WHERE `+where, arg).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) ListReferredBy(ctx context.Context, db *gorm.DB, codes []string) ([]domain.Customer, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var customers []domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+`
		 FROM customers
		 WHERE referred_by_code IN ?
		 ORDER BY created_at ASC, id ASC`,
		codes,
	).Scan(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) FindOwnerByCode(ctx context.Context, db *gorm.DB, code string) (*domain.CodeOwner, error) {
	customer, err := r.FindCustomerByCode(ctx, db, code)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		return &domain.CodeOwner{
			ID:             customer.ID,
			Kind:           domain.ReferrerKindCustomer,
			Email:          customer.Email,
			Code:           customer.PersonalCode,
			ReferredByCode: customer.ReferredByCode,
		}, nil
	}

	partner, err := r.FindPartnerByCode(ctx, db, code)
	if err != nil {
		return nil, err
	}
	if partner != nil {
		return &domain.CodeOwner{
			ID:    partner.ID,
			Kind:  partner.Kind,
			Email: partner.Email,
			Code:  partner.ReferralCode,
		}, nil
	}
	return nil, nil
}

func (r *repo) CodeTaken(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	code = normalizeCode(code)
	err := db.WithContext(ctx).Raw(
		`SELECT (SELECT COUNT(1) FROM partners WHERE referral_code = ?)
		      + (SELECT COUNT(1) FROM customers WHERE personal_code = ?)
		      + (SELECT COUNT(1) FROM referrals WHERE code = ?)`,
		code,
		code,
		code,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) InsertReferral(ctx context.Context, db *gorm.DB, referral *domain.Referral) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referrals (`+referralColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		referral.ID,
		referral.Code,
		referral.ReferrerID,
		referral.ReferrerKind,
		referral.RefereeEmail,
		referral.RefereeCustomerID,
		referral.Status,
		referral.OrderID,
		referral.CommissionRate,
		referral.DiscountMinor,
		referral.ExpiresAt,
		referral.AccessedAt,
		referral.AcceptedAt,
		referral.AppliedAt,
		referral.CreatedAt,
		referral.UpdatedAt,
	).Error
}

func (r *repo) FindReferralByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Referral, error) {
	return r.findReferral(ctx, db, `id = ?`, id)
}

func (r *repo) FindReferralByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Referral, error) {
	return r.findReferral(ctx, db, `code = ?`, normalizeCode(code))
}

func (r *repo) findReferral(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Referral, error) {
	var referral domain.Referral
	err := db.WithContext(ctx).Raw(`SELECT `+referralColumns+` FROM referrals WHERE `+where, arg).Scan(&referral).Error
	if err != nil {
		return nil, err
	}
	if referral.ID == 0 {
		return nil, nil
	}
	return &referral, nil
}

func (r *repo) FindActiveForEmail(ctx context.Context, db *gorm.DB, email string, at time.Time) (*domain.Referral, error) {
	var referral domain.Referral
	err := db.WithContext(ctx).Raw(
		`SELECT `+referralColumns+`
		 FROM referrals
		 WHERE referee_email = ?
		   AND (status = ? OR (status IN ? AND expires_at > ?))
		 ORDER BY CASE WHEN status = ? THEN 0 ELSE 1 END, created_at DESC, id DESC
		 LIMIT 1`,
		normalizeEmail(email),
		domain.StatusApplied,
		[]domain.Status{domain.StatusAccessed, domain.StatusAccepted},
		at,
		domain.StatusApplied,
	).Scan(&referral).Error
	if err != nil {
		return nil, err
	}
	if referral.ID == 0 {
		return nil, nil
	}
	return &referral, nil
}

func (r *repo) MarkAccessed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referrals
		 SET status = ?, accessed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ? AND expires_at > ?`,
		domain.StatusAccessed,
		now,
		now,
		id,
		domain.StatusAccessed.Predecessors(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkAccepted(ctx context.Context, db *gorm.DB, id, customerID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referrals
		 SET status = ?, referee_customer_id = ?, accepted_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ? AND expires_at > ?`,
		domain.StatusAccepted,
		customerID,
		now,
		now,
		id,
		domain.StatusAccepted.Predecessors(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id, orderID snowflake.ID, rate decimal.Decimal, discountMinor int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referrals
		 SET status = ?, order_id = ?, commission_rate = ?, discount_minor = ?, applied_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusApplied,
		orderID,
		rate,
		discountMinor,
		now,
		now,
		id,
		domain.StatusApplied.Predecessors(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

const staleReferrals = `FROM referrals
	 WHERE status IN ? AND expires_at < ?
	   AND NOT EXISTS (
	     SELECT 1 FROM orders o
	     WHERE o.customer_email = referrals.referee_email
	       AND o.payment_status = 'paid'
	       AND o.created_at < referrals.expires_at
	   )`

func (r *repo) ExpireStale(ctx context.Context, db *gorm.DB, now time.Time, dryRun bool) (int64, error) {
	pending := domain.StatusExpired.Predecessors()
	if dryRun {
		var count int64
		err := db.WithContext(ctx).Raw(`SELECT COUNT(1) `+staleReferrals, pending, now).Scan(&count).Error
		return count, err
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE referrals SET status = ?, updated_at = ?
		 WHERE id IN (SELECT id `+staleReferrals+`)`,
		domain.StatusExpired,
		now,
		pending,
		now,
	)
	return result.RowsAffected, result.Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
