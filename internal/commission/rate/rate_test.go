package rate

import (
	"testing"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	policy := config.DefaultCommissionPolicy()

	tests := []struct {
		name     string
		in       Input
		eligible bool
		typ      ledgerdomain.CommissionType
		rate     int64
		discount int64
	}{
		{"partner first order", Input{IsFirstOrder: true, ReferrerKind: ledgerdomain.RecipientKindPartner, HasActiveReferral: true}, true, ledgerdomain.CommissionTypeInitial, 20, 20},
		{"partner repeat order", Input{ReferrerKind: ledgerdomain.RecipientKindPartner, HasActiveReferral: true}, true, ledgerdomain.CommissionTypeLifetime, 5, 0},
		{"influencer first order", Input{IsFirstOrder: true, ReferrerKind: ledgerdomain.RecipientKindInfluencer, HasActiveReferral: true}, true, ledgerdomain.CommissionTypeInitial, 20, 20},
		{"influencer repeat order", Input{ReferrerKind: ledgerdomain.RecipientKindInfluencer, HasActiveReferral: true}, true, ledgerdomain.CommissionTypeLifetime, 5, 0},
		{"customer first order", Input{IsFirstOrder: true, ReferrerKind: ledgerdomain.RecipientKindCustomer, HasActiveReferral: true}, true, ledgerdomain.CommissionTypeCustomerCredit, 10, 20},
		{"customer repeat order", Input{ReferrerKind: ledgerdomain.RecipientKindCustomer, HasActiveReferral: true}, false, "", 0, 0},
		{"organic order", Input{IsFirstOrder: true, ReferrerKind: ledgerdomain.RecipientKindPartner}, false, "", 0, 0},
		{"unknown referrer", Input{IsFirstOrder: true, ReferrerKind: "bot", HasActiveReferral: true}, false, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(policy, tt.in)
			assert.Equal(t, tt.eligible, d.Eligible)
			assert.Equal(t, tt.typ, d.Type)
			assert.True(t, d.CommissionRate.Equal(decimal.NewFromInt(tt.rate)), "rate %s", d.CommissionRate)
			assert.True(t, d.DiscountPercent.Equal(decimal.NewFromInt(tt.discount)), "discount %s", d.DiscountPercent)
		})
	}
}

func TestDecideUsesConfiguredCustomerRates(t *testing.T) {
	policy := config.DefaultCommissionPolicy()
	policy.CustomerCreditRate = 12.5
	policy.CustomerLifetimeRate = 2

	engine := NewEngine(config.StaticPolicy(policy))

	first := engine.Decide(Input{IsFirstOrder: true, ReferrerKind: ledgerdomain.RecipientKindCustomer, HasActiveReferral: true})
	assert.True(t, first.CommissionRate.Equal(decimal.RequireFromString("12.5")))

	repeat := engine.Decide(Input{ReferrerKind: ledgerdomain.RecipientKindCustomer, HasActiveReferral: true})
	assert.True(t, repeat.Eligible)
	assert.Equal(t, ledgerdomain.CommissionTypeLifetime, repeat.Type)
	assert.True(t, repeat.CommissionRate.Equal(decimal.NewFromInt(2)))
}

func TestAmountFor(t *testing.T) {
	assert.Equal(t, int64(2000), AmountFor(10000, decimal.NewFromInt(20)))
	assert.Equal(t, int64(250), AmountFor(5000, decimal.NewFromInt(5)))
	assert.Equal(t, int64(1000), AmountFor(10000, decimal.NewFromInt(10)))
	assert.Equal(t, int64(1), AmountFor(10, decimal.NewFromInt(5)))
	assert.Equal(t, int64(0), AmountFor(9, decimal.NewFromInt(5)))
	assert.Equal(t, int64(125), AmountFor(999, decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(0), AmountFor(0, decimal.NewFromInt(20)))
}
