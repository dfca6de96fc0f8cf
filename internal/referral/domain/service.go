package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RegisterPartnerRequest struct {
	Kind  ReferrerKind
	Name  string
	Email string
	Code  string
}

type IssueInviteRequest struct {
	ReferrerID   snowflake.ID
	ReferrerKind ReferrerKind
	RefereeEmail string
}

type SignupRequest struct {
	Email        string
	Name         string
	ReferralCode string
}

// SignupResult carries the new customer and, when the code was recognised, the
// accepted referral that entitles them.
type SignupResult struct {
	Customer Customer  `json:"customer"`
	Referral *Referral `json:"referral,omitempty"`
}

type MarkAppliedRequest struct {
	ReferralID    snowflake.ID
	OrderID       snowflake.ID
	Rate          decimal.Decimal
	DiscountMinor int64
}

type Service interface {
	RegisterPartner(ctx context.Context, req RegisterPartnerRequest) (Partner, error)
	GetPartner(ctx context.Context, id snowflake.ID) (Partner, error)
	GetCustomer(ctx context.Context, id snowflake.ID) (Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ResolveCode(ctx context.Context, code string) (*CodeOwner, error)

	IssueInvite(ctx context.Context, req IssueInviteRequest) (Referral, error)
	MarkAccessed(ctx context.Context, code string) (Referral, error)
	Signup(ctx context.Context, req SignupRequest) (SignupResult, error)
	MarkApplied(ctx context.Context, req MarkAppliedRequest) (bool, error)
	FindActiveForCustomer(ctx context.Context, email string, at time.Time) (*Referral, error)
	ExpireStale(ctx context.Context, dryRun bool) (int64, error)
}

var (
	ErrNotFound              = errors.New("not_found")
	ErrPartnerNotFound       = fmt.Errorf("partner: %w", ErrNotFound)
	ErrCustomerNotFound      = fmt.Errorf("customer: %w", ErrNotFound)
	ErrReferralNotFound      = fmt.Errorf("referral: %w", ErrNotFound)
	ErrReferrerNotFound      = fmt.Errorf("referrer: %w", ErrNotFound)
	ErrInvalidKind           = errors.New("invalid_referrer_kind")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidCode           = errors.New("invalid_referral_code")
	ErrInvalidReferrer       = errors.New("invalid_referrer")
	ErrCodeTaken             = errors.New("referral_code_taken")
	ErrEmailTaken            = errors.New("email_taken")
	ErrReferralExpired       = errors.New("referral_expired")
	ErrReferralAlreadyUsed   = errors.New("referral_already_used")
	ErrReferralEmailMismatch = errors.New("referral_email_mismatch")
	ErrSelfReferral          = errors.New("self_referral")
	ErrCodeGeneration        = errors.New("code_generation_failed")
)
