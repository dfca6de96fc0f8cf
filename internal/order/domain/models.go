package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Order struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderNumber        string        `gorm:"type:text;not null" json:"order_number"`
	CustomerEmail      string        `gorm:"type:text;not null" json:"customer_email"`
	CustomerID         *snowflake.ID `json:"customer_id,omitempty"`
	SubtotalMinor      int64         `gorm:"not null" json:"subtotal_minor"`
	DiscountMinor      int64         `gorm:"not null" json:"discount_minor"`
	ShippingMinor      int64         `gorm:"not null" json:"shipping_minor"`
	CreditAppliedMinor int64         `gorm:"not null" json:"credit_applied_minor"`
	CreditAppliedAt    *time.Time    `json:"credit_applied_at,omitempty"`
	Currency           string        `gorm:"type:text;not null" json:"currency"`
	PaymentStatus      PaymentStatus `gorm:"type:text;not null" json:"payment_status"`
	ReferralCode       *string       `json:"referral_code,omitempty"`
	CommissionBearing  bool          `gorm:"not null" json:"commission_bearing"`
	PaidAt             *time.Time    `json:"paid_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// EmailAggregate is the paid order volume of one customer email.
type EmailAggregate struct {
	CustomerEmail string `json:"customer_email"`
	OrderCount    int64  `json:"order_count"`
	RevenueMinor  int64  `json:"revenue_minor"`
}
