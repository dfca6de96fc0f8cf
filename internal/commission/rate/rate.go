// Package rate decides which commission a paid order earns and how much it is worth.
package rate

import (
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Input struct {
	IsFirstOrder      bool
	ReferrerKind      ledgerdomain.RecipientKind
	HasActiveReferral bool
}

// Decision is the outcome for one order. Rates and discounts are percentages.
type Decision struct {
	Eligible        bool
	Type            ledgerdomain.CommissionType
	CommissionRate  decimal.Decimal
	DiscountPercent decimal.Decimal
}

func notEligible() Decision {
	return Decision{CommissionRate: decimal.Zero, DiscountPercent: decimal.Zero}
}

// Decide maps the referrer kind and order position onto a commission under policy.
func Decide(policy config.CommissionPolicy, in Input) Decision {
	if !in.HasActiveReferral {
		return notEligible()
	}

	var d Decision
	switch in.ReferrerKind {
	case ledgerdomain.RecipientKindPartner:
		d = tiered(in.IsFirstOrder, policy.PartnerInitialRate, policy.PartnerLifetimeRate, policy.RefereeDiscountPercent)
	case ledgerdomain.RecipientKindInfluencer:
		d = tiered(in.IsFirstOrder, policy.InfluencerInitialRate, policy.InfluencerLifetimeRate, policy.RefereeDiscountPercent)
	case ledgerdomain.RecipientKindCustomer:
		if in.IsFirstOrder {
			d = Decision{
				Type:            ledgerdomain.CommissionTypeCustomerCredit,
				CommissionRate:  decimal.NewFromFloat(policy.CustomerCreditRate),
				DiscountPercent: decimal.NewFromFloat(policy.RefereeDiscountPercent),
			}
		} else {
			d = Decision{
				Type:            ledgerdomain.CommissionTypeLifetime,
				CommissionRate:  decimal.NewFromFloat(policy.CustomerLifetimeRate),
				DiscountPercent: decimal.Zero,
			}
		}
	default:
		return notEligible()
	}

	d.Eligible = d.CommissionRate.IsPositive()
	if !d.Eligible {
		d.Type = ""
		d.CommissionRate = decimal.Zero
	}
	return d
}

func tiered(first bool, initialRate, lifetimeRate, discount float64) Decision {
	if first {
		return Decision{
			Type:            ledgerdomain.CommissionTypeInitial,
			CommissionRate:  decimal.NewFromFloat(initialRate),
			DiscountPercent: decimal.NewFromFloat(discount),
		}
	}
	return Decision{
		Type:            ledgerdomain.CommissionTypeLifetime,
		CommissionRate:  decimal.NewFromFloat(lifetimeRate),
		DiscountPercent: decimal.Zero,
	}
}

// AmountFor returns subtotal * rate / 100 rounded half away from zero to a whole minor unit.
func AmountFor(subtotalMinor int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalMinor).Mul(rate).Div(hundred).Round(0).IntPart()
}

// Engine decides against the live commission policy.
type Engine struct {
	policy config.PolicySource
}

func NewEngine(policy config.PolicySource) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Decide(in Input) Decision {
	return Decide(e.policy.Get(), in)
}

func (e *Engine) Policy() config.CommissionPolicy {
	return e.policy.Get()
}
