package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreditStatus string

const (
	CreditStatusPending CreditStatus = "pending"
	CreditStatusIssued  CreditStatus = "issued"
	CreditStatusUsed    CreditStatus = "used"
	CreditStatusExpired CreditStatus = "expired"
)

type CreditReason string

const (
	ReasonReferralReward   CreditReason = "referral_reward"
	ReasonDiscountRetrofit CreditReason = "discount_retrofit"
	ReasonRemainder        CreditReason = "remainder"
	ReasonGoodwill         CreditReason = "goodwill"
)

func (r CreditReason) Valid() bool {
	switch r {
	case ReasonReferralReward, ReasonDiscountRetrofit, ReasonRemainder, ReasonGoodwill:
		return true
	default:
		return false
	}
}

// CustomerCredit is a spendable unit owned by a customer. A used row always names the
// order that consumed it.
type CustomerCredit struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID        snowflake.ID  `gorm:"not null" json:"customer_id"`
	AmountMinor       int64         `gorm:"not null" json:"amount_minor"`
	SourceOrderID     *snowflake.ID `json:"source_order_id,omitempty"`
	SourceReferralID  *snowflake.ID `json:"source_referral_id,omitempty"`
	SourceEntryID     *snowflake.ID `json:"source_entry_id,omitempty"`
	ParentCreditID    *snowflake.ID `json:"parent_credit_id,omitempty"`
	Reason            CreditReason  `gorm:"type:text;not null" json:"reason"`
	Status            CreditStatus  `gorm:"type:text;not null" json:"status"`
	ConsumedByOrderID *snowflake.ID `json:"consumed_by_order_id,omitempty"`
	IssuedAt          *time.Time    `json:"issued_at,omitempty"`
	UsedAt            *time.Time    `json:"used_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (CustomerCredit) TableName() string { return "customer_credits" }

// OrderForRedemption is the slice of an order the accountant needs.
type OrderForRedemption struct {
	ID                 snowflake.ID
	CustomerEmail      string
	CustomerID         *snowflake.ID
	SubtotalMinor      int64
	DiscountMinor      int64
	ShippingMinor      int64
	CreditAppliedMinor int64
	CreditAppliedAt    *time.Time
	PaymentStatus      string
}

// PayableMinor is what the order still costs before credit is applied.
func (o OrderForRedemption) PayableMinor() int64 {
	payable := o.SubtotalMinor - o.DiscountMinor + o.ShippingMinor
	if payable < 0 {
		return 0
	}
	return payable
}
