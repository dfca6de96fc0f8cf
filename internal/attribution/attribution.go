// Package attribution turns a paid order into commission: it finds the referral that
// entitles the buyer, picks the immediate referrer and posts the ledger entry.
package attribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/commission/rate"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	"github.com/shopspring/decimal"
)

// Reasons an order earns nothing.
const (
	ReasonNotPaid              = "not_paid"
	ReasonNotCommissionBearing = "not_commission_bearing"
	ReasonNoCustomer           = "no_customer"
	ReasonNoReferral           = "no_referral"
	ReasonNotEligible          = "not_eligible"
)

var (
	ErrNotFound         = errors.New("not_found")
	ErrReferrerNotFound = fmt.Errorf("referrer: %w", ErrNotFound)
	ErrOrderNotPaid     = errors.New("order_not_paid")
)

// Graph is the part of the referral graph attribution walks.
type Graph interface {
	ResolveReferrerChain(ctx context.Context, customerID snowflake.ID) ([]graph.ChainLink, error)
	ResolveAttributedDescendants(ctx context.Context, rootCode string) ([]graph.Descendant, error)
}

// Plan is what processing an order would do, computed without writing anything.
type Plan struct {
	Order                 orderdomain.Order
	Attributed            bool
	Reason                string
	Customer              *referraldomain.Customer
	Referral              *referraldomain.Referral
	Recipient             *graph.ChainLink
	IsFirstOrder          bool
	Decision              rate.Decision
	AmountMinor           int64
	EntitledDiscountMinor int64
	EntryExists           bool
	ReferralApplied       bool
}

// NeedsRepair reports an attributed order whose ledger entry is missing, or whose
// first-order referral was never marked applied.
func (p Plan) NeedsRepair() bool {
	if !p.Attributed {
		return false
	}
	if !p.EntryExists {
		return true
	}
	return p.Decision.Type.FirstOrder() && !p.ReferralApplied
}

type Result struct {
	OrderID         snowflake.ID                `json:"order_id"`
	Status          string                      `json:"status"`
	Attributed      bool                        `json:"attributed"`
	Reason          string                      `json:"reason,omitempty"`
	CommissionType  ledgerdomain.CommissionType `json:"commission_type,omitempty"`
	RecipientID     *snowflake.ID               `json:"recipient_id,omitempty"`
	EntryID         *snowflake.ID               `json:"entry_id,omitempty"`
	AmountMinor     int64                       `json:"amount_minor"`
	Created         bool                        `json:"created"`
	ReferralApplied bool                        `json:"referral_applied"`
}

type Quote struct {
	Eligible        bool                        `json:"eligible"`
	CommissionType  ledgerdomain.CommissionType `json:"commission_type,omitempty"`
	DiscountPercent decimal.Decimal             `json:"discount_percent"`
	DiscountMinor   int64                       `json:"discount_minor"`
	ReferralCode    string                      `json:"referral_code,omitempty"`
}

type DescendantReport struct {
	graph.Descendant
	OrderCount   int64 `json:"order_count"`
	RevenueMinor int64 `json:"revenue_minor"`
}

type LevelAggregate struct {
	Level        int   `json:"level"`
	Customers    int   `json:"customers"`
	OrderCount   int64 `json:"order_count"`
	RevenueMinor int64 `json:"revenue_minor"`
}

type Report struct {
	ReferrerID  snowflake.ID                `json:"referrer_id"`
	Kind        referraldomain.ReferrerKind `json:"kind"`
	Code        string                      `json:"code"`
	Descendants []DescendantReport          `json:"descendants"`
	Levels      []LevelAggregate            `json:"levels"`
	Commission  ledgerdomain.Summary        `json:"commission"`
}

type Service interface {
	Plan(ctx context.Context, orderID snowflake.ID) (Plan, error)
	ProcessOrderPaid(ctx context.Context, orderID snowflake.ID) (Result, error)
	QuoteCheckout(ctx context.Context, email string, subtotalMinor int64) (Quote, error)
	Report(ctx context.Context, referrerID snowflake.ID) (Report, error)
}
