package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ReferrerKind string

const (
	ReferrerKindPartner    ReferrerKind = "partner"
	ReferrerKindInfluencer ReferrerKind = "influencer"
	ReferrerKindCustomer   ReferrerKind = "customer"
)

func (k ReferrerKind) Valid() bool {
	switch k {
	case ReferrerKindPartner, ReferrerKindInfluencer, ReferrerKindCustomer:
		return true
	default:
		return false
	}
}

// Root reports whether entities of this kind are never referred themselves.
func (k ReferrerKind) Root() bool {
	return k == ReferrerKindPartner || k == ReferrerKindInfluencer
}

type Status string

const (
	StatusInvited  Status = "invited"
	StatusAccessed Status = "accessed"
	StatusAccepted Status = "accepted"
	StatusApplied  Status = "applied"
	StatusExpired  Status = "expired"
)

// Predecessors lists the statuses a referral may move to s from. Forward skips are
// allowed; applied and expired are terminal.
func (s Status) Predecessors() []Status {
	switch s {
	case StatusAccessed:
		return []Status{StatusInvited}
	case StatusAccepted:
		return []Status{StatusInvited, StatusAccessed}
	case StatusApplied, StatusExpired:
		return []Status{StatusInvited, StatusAccessed, StatusAccepted}
	default:
		return nil
	}
}

func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusExpired
}

// Partner is a root referrer: a business partner or an influencer.
type Partner struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Kind         ReferrerKind `gorm:"type:text;not null" json:"kind"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Email        string       `gorm:"type:text;not null" json:"email"`
	ReferralCode string       `gorm:"type:text;not null" json:"referral_code"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }

type Customer struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email          string        `gorm:"type:text;not null" json:"email"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	PersonalCode   string        `gorm:"type:text;not null" json:"personal_code"`
	ReferredByCode *string       `json:"referred_by_code,omitempty"`
	ReferredByID   *snowflake.ID `json:"referred_by_id,omitempty"`
	ReferredByKind *ReferrerKind `json:"referred_by_kind,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type Referral struct {
	ID                snowflake.ID        `gorm:"primaryKey" json:"id"`
	Code              string              `gorm:"type:text;not null" json:"code"`
	ReferrerID        snowflake.ID        `gorm:"not null" json:"referrer_id"`
	ReferrerKind      ReferrerKind        `gorm:"type:text;not null" json:"referrer_kind"`
	RefereeEmail      string              `gorm:"type:text;not null" json:"referee_email"`
	RefereeCustomerID *snowflake.ID       `json:"referee_customer_id,omitempty"`
	Status            Status              `gorm:"type:text;not null" json:"status"`
	OrderID           *snowflake.ID       `json:"order_id,omitempty"`
	CommissionRate    decimal.NullDecimal `gorm:"type:text" json:"commission_rate"`
	DiscountMinor     *int64              `json:"discount_minor,omitempty"`
	ExpiresAt         time.Time           `json:"expires_at"`
	AccessedAt        *time.Time          `json:"accessed_at,omitempty"`
	AcceptedAt        *time.Time          `json:"accepted_at,omitempty"`
	AppliedAt         *time.Time          `json:"applied_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (Referral) TableName() string { return "referrals" }

// Active reports whether the referral still entitles its referee at the given time.
func (r Referral) Active(at time.Time) bool {
	switch r.Status {
	case StatusApplied:
		return true
	case StatusAccessed, StatusAccepted:
		return at.Before(r.ExpiresAt)
	default:
		return false
	}
}

// CodeOwner is whoever holds a referral code: a customer personal code or a partner code.
type CodeOwner struct {
	ID             snowflake.ID
	Kind           ReferrerKind
	Email          string
	Code           string
	ReferredByCode *string
}
