package attribution_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placePaidOrder(t *testing.T, s *stack.Stack, email string, subtotal int64) orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	order, err := s.Orders.Create(ctx, orderdomain.CreateOrderRequest{CustomerEmail: email, SubtotalMinor: subtotal, Currency: "GBP"})
	require.NoError(t, err)
	paid, err := s.Orders.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	s.Clock.Advance(time.Hour)
	return paid.Order
}

func TestPartnerReferralEndToEnd(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	partner, err := s.Referrals.RegisterPartner(ctx, referraldomain.RegisterPartnerRequest{Kind: referraldomain.ReferrerKindPartner, Name: "Pawsome Grooming", Email: "p@example.com", Code: "ABC12345"})
	require.NoError(t, err)
	c1, err := s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c1@example.com", Name: "C1", ReferralCode: "ABC12345"})
	require.NoError(t, err)

	quote, err := s.Attribution.QuoteCheckout(ctx, "c1@example.com", 10000)
	require.NoError(t, err)
	assert.True(t, quote.Eligible)
	assert.Equal(t, int64(2000), quote.DiscountMinor)

	first := placePaidOrder(t, s, "c1@example.com", 10000)
	res, err := s.Attribution.ProcessOrderPaid(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, res.Attributed)
	assert.True(t, res.Created)
	assert.Equal(t, ledgerdomain.CommissionTypeInitial, res.CommissionType)
	assert.Equal(t, int64(2000), res.AmountMinor)
	assert.Equal(t, partner.ID, *res.RecipientID)
	assert.True(t, res.ReferralApplied)

	assert.Equal(t, int64(2000), testutil.CountRows(t, s.DB,
		`SELECT discount_minor FROM referrals WHERE id = ? AND status = 'applied' AND order_id = ?`, c1.Referral.ID, first.ID))

	again, err := s.Attribution.ProcessOrderPaid(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, *res.EntryID, *again.EntryID)

	quote, err = s.Attribution.QuoteCheckout(ctx, "c1@example.com", 10000)
	require.NoError(t, err)
	assert.Zero(t, quote.DiscountMinor)

	second := placePaidOrder(t, s, "c1@example.com", 5000)
	res, err = s.Attribution.ProcessOrderPaid(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.CommissionTypeLifetime, res.CommissionType)
	assert.Equal(t, int64(250), res.AmountMinor)
	assert.Equal(t, partner.ID, *res.RecipientID)

	// C1 refers C2: C2's first order credits C1, not the partner.
	c2, err := s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c2@example.com", ReferralCode: c1.Customer.PersonalCode})
	require.NoError(t, err)
	third := placePaidOrder(t, s, "c2@example.com", 8000)
	res, err = s.Attribution.ProcessOrderPaid(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.CommissionTypeCustomerCredit, res.CommissionType)
	assert.Equal(t, c1.Customer.ID, *res.RecipientID)
	assert.Equal(t, int64(800), res.AmountMinor)

	assert.Zero(t, testutil.CountRows(t, s.DB,
		`SELECT COUNT(1) FROM commission_ledger_entries WHERE recipient_id = ? AND order_id = ?`, partner.ID, third.ID))

	balance, err := s.Credits.GetBalance(ctx, c1.Customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)

	summary, err := s.Ledger.Summary(ctx, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2250), summary.PendingMinor)
	assert.Equal(t, int64(2), summary.EntryCount)

	report, err := s.Attribution.Report(ctx, partner.ID)
	require.NoError(t, err)
	require.Len(t, report.Descendants, 2)
	assert.Equal(t, c1.Customer.ID, report.Descendants[0].EntityID)
	assert.Equal(t, int64(2), report.Descendants[0].OrderCount)
	assert.Equal(t, int64(15000), report.Descendants[0].RevenueMinor)
	assert.Equal(t, c2.Customer.ID, report.Descendants[1].EntityID)
	assert.Equal(t, 2, report.Descendants[1].Level)
	require.Len(t, report.Levels, 2)
	assert.Equal(t, int64(8000), report.Levels[1].RevenueMinor)
	assert.Equal(t, int64(2250), report.Commission.PendingMinor)
}

func TestOrganicOrdersAreNotAttributed(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	noAccount := placePaidOrder(t, s, "walkin@example.com", 4000)
	res, err := s.Attribution.ProcessOrderPaid(ctx, noAccount.ID)
	require.NoError(t, err)
	assert.False(t, res.Attributed)
	assert.Equal(t, attribution.ReasonNoCustomer, res.Reason)

	_, err = s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "plain@example.com"})
	require.NoError(t, err)
	plain := placePaidOrder(t, s, "plain@example.com", 4000)
	res, err = s.Attribution.ProcessOrderPaid(ctx, plain.ID)
	require.NoError(t, err)
	assert.False(t, res.Attributed)
	assert.Equal(t, attribution.ReasonNoReferral, res.Reason)

	assert.Zero(t, testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM commission_ledger_entries`))
}

func TestCustomerReferrerRepeatOrderEarnsNothingByDefault(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	c1, err := s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c1@example.com"})
	require.NoError(t, err)
	_, err = s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c2@example.com", ReferralCode: c1.Customer.PersonalCode})
	require.NoError(t, err)

	first := placePaidOrder(t, s, "c2@example.com", 10000)
	_, err = s.Attribution.ProcessOrderPaid(ctx, first.ID)
	require.NoError(t, err)

	repeat := placePaidOrder(t, s, "c2@example.com", 10000)
	res, err := s.Attribution.ProcessOrderPaid(ctx, repeat.ID)
	require.NoError(t, err)
	assert.False(t, res.Attributed)
	assert.Equal(t, attribution.ReasonNotEligible, res.Reason)
}

func TestNonCommissionBearingOrderEarnsNothing(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	_, err := s.Referrals.RegisterPartner(ctx, referraldomain.RegisterPartnerRequest{Kind: referraldomain.ReferrerKindPartner, Name: "Pawsome Grooming", Email: "p@example.com", Code: "ABC12345"})
	require.NoError(t, err)
	c1, err := s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c1@example.com", Name: "C1", ReferralCode: "ABC12345"})
	require.NoError(t, err)

	bearing := false
	order, err := s.Orders.Create(ctx, orderdomain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 10000, Currency: "GBP", CommissionBearing: &bearing})
	require.NoError(t, err)
	_, err = s.Orders.MarkPaid(ctx, order.ID)
	require.NoError(t, err)

	res, err := s.Attribution.ProcessOrderPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, res.Attributed)
	assert.False(t, res.Created)
	assert.Equal(t, attribution.ReasonNotCommissionBearing, res.Reason)
	assert.Zero(t, testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM commission_ledger_entries`))
	assert.Equal(t, int64(1), testutil.CountRows(t, s.DB,
		`SELECT COUNT(1) FROM referrals WHERE id = ? AND status = 'accepted'`, c1.Referral.ID))

	plan, err := s.Attribution.Plan(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, plan.NeedsRepair())
}

func TestProcessOrderPaidErrors(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	pending, err := s.Orders.Create(ctx, orderdomain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 100, Currency: "GBP"})
	require.NoError(t, err)
	_, err = s.Attribution.ProcessOrderPaid(ctx, pending.ID)
	assert.ErrorIs(t, err, attribution.ErrOrderNotPaid)

	_, err = s.Attribution.ProcessOrderPaid(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)

	_, err = s.Attribution.Report(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, attribution.ErrReferrerNotFound)
}

func TestPlanFlagsMissingEntryAndUnappliedReferral(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()

	_, err := s.Referrals.RegisterPartner(ctx, referraldomain.RegisterPartnerRequest{Kind: referraldomain.ReferrerKindInfluencer, Name: "Inf", Email: "inf@example.com", Code: "INFLU001"})
	require.NoError(t, err)
	_, err = s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c1@example.com", ReferralCode: "INFLU001"})
	require.NoError(t, err)
	order := placePaidOrder(t, s, "c1@example.com", 6000)

	plan, err := s.Attribution.Plan(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, plan.Attributed)
	assert.True(t, plan.IsFirstOrder)
	assert.False(t, plan.EntryExists)
	assert.True(t, plan.NeedsRepair())
	assert.Equal(t, int64(1200), plan.AmountMinor)
	assert.Equal(t, int64(1200), plan.EntitledDiscountMinor)

	_, err = s.Attribution.ProcessOrderPaid(ctx, order.ID)
	require.NoError(t, err)

	plan, err = s.Attribution.Plan(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, plan.EntryExists)
	assert.True(t, plan.ReferralApplied)
	assert.False(t, plan.NeedsRepair())
}
