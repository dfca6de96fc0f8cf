package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CommissionType is the closed set of ledger entry kinds.
type CommissionType string

const (
	CommissionTypeInitial        CommissionType = "initial"
	CommissionTypeLifetime       CommissionType = "lifetime"
	CommissionTypeCustomerCredit CommissionType = "customer_credit"
)

func (t CommissionType) Valid() bool {
	switch t {
	case CommissionTypeInitial, CommissionTypeLifetime, CommissionTypeCustomerCredit:
		return true
	default:
		return false
	}
}

// FirstOrder reports whether the type is only ever posted for a referee's first order.
func (t CommissionType) FirstOrder() bool {
	switch t {
	case CommissionTypeInitial, CommissionTypeCustomerCredit:
		return true
	case CommissionTypeLifetime:
		return false
	default:
		return false
	}
}

type RecipientKind string

const (
	RecipientKindPartner    RecipientKind = "partner"
	RecipientKindInfluencer RecipientKind = "influencer"
	RecipientKindCustomer   RecipientKind = "customer"
)

func (k RecipientKind) Valid() bool {
	switch k {
	case RecipientKindPartner, RecipientKindInfluencer, RecipientKindCustomer:
		return true
	default:
		return false
	}
}

type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusApproved EntryStatus = "approved"
	EntryStatusPaid     EntryStatus = "paid"
)

// Predecessor returns the only status an entry may move to s from.
func (s EntryStatus) Predecessor() (EntryStatus, bool) {
	switch s {
	case EntryStatusApproved:
		return EntryStatusPending, true
	case EntryStatusPaid:
		return EntryStatusApproved, true
	default:
		return "", false
	}
}

// EntryMetadata is the typed side-record kept next to a ledger entry for dashboards.
type EntryMetadata struct {
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	OrderNumber   string `json:"order_number,omitempty"`
	ReferralCode  string `json:"referral_code,omitempty"`
	Level         int    `json:"level,omitempty"`
	Source        string `json:"source,omitempty"`
}

// CommissionLedgerEntry is one commission or credit event. Amounts are minor units.
type CommissionLedgerEntry struct {
	ID                    snowflake.ID                      `gorm:"primaryKey" json:"id"`
	RecipientID           snowflake.ID                      `gorm:"not null" json:"recipient_id"`
	RecipientKind         RecipientKind                     `gorm:"type:text;not null" json:"recipient_kind"`
	OrderID               snowflake.ID                      `gorm:"not null" json:"order_id"`
	CommissionType        CommissionType                    `gorm:"type:text;not null" json:"commission_type"`
	CommissionRate        decimal.Decimal                   `gorm:"type:text;not null" json:"commission_rate"`
	BaseAmountMinor       int64                             `gorm:"not null" json:"base_amount_minor"`
	CommissionAmountMinor int64                             `gorm:"not null" json:"commission_amount_minor"`
	Currency              string                            `gorm:"type:text;not null" json:"currency"`
	Status                EntryStatus                       `gorm:"type:text;not null" json:"status"`
	Metadata              datatypes.JSONType[EntryMetadata] `json:"metadata"`
	CreatedAt             time.Time                         `json:"created_at"`
	UpdatedAt             time.Time                         `json:"updated_at"`
}

func (CommissionLedgerEntry) TableName() string { return "commission_ledger_entries" }

// StatusTotals aggregates a recipient's entries by status.
type StatusTotals struct {
	Status      EntryStatus `json:"status"`
	Count       int64       `json:"count"`
	AmountMinor int64       `json:"amount_minor"`
}

type Summary struct {
	RecipientID   snowflake.ID   `json:"recipient_id"`
	PendingMinor  int64          `json:"pending_minor"`
	ApprovedMinor int64          `json:"approved_minor"`
	PaidMinor     int64          `json:"paid_minor"`
	CreditMinor   int64          `json:"credit_minor"`
	EntryCount    int64          `json:"entry_count"`
	ByStatus      []StatusTotals `json:"by_status"`
}
