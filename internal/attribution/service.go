package attribution

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/commission/rate"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability/tracing"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Orders    orderdomain.Service
	Referrals referraldomain.Service
	Graph     Graph
	Rates     *rate.Engine
	Ledger    ledgerdomain.Service
}

type service struct {
	log       *zap.Logger
	clock     clock.Clock
	orders    orderdomain.Service
	referrals referraldomain.Service
	graph     Graph
	rates     *rate.Engine
	ledger    ledgerdomain.Service
}

func New(p Params) Service {
	return &service{
		log:       p.Log.Named("attribution.service"),
		clock:     p.Clock,
		orders:    p.Orders,
		referrals: p.Referrals,
		graph:     p.Graph,
		rates:     p.Rates,
		ledger:    p.Ledger,
	}
}

func (s *service) Plan(ctx context.Context, orderID snowflake.ID) (Plan, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Order: order}
	if order.PaymentStatus != orderdomain.PaymentStatusPaid {
		plan.Reason = ReasonNotPaid
		return plan, nil
	}
	if !order.CommissionBearing {
		plan.Reason = ReasonNotCommissionBearing
		return plan, nil
	}

	customer, err := s.referrals.FindCustomerByEmail(ctx, order.CustomerEmail)
	if err != nil {
		return Plan{}, err
	}
	if customer == nil {
		plan.Reason = ReasonNoCustomer
		return plan, nil
	}
	plan.Customer = customer

	referral, err := s.referrals.FindActiveForCustomer(ctx, order.CustomerEmail, order.CreatedAt)
	if err != nil {
		return Plan{}, err
	}
	if referral == nil {
		plan.Reason = ReasonNoReferral
		return plan, nil
	}
	plan.Referral = referral
	plan.ReferralApplied = referral.Status == referraldomain.StatusApplied

	recipient, err := s.immediateReferrer(ctx, customer.ID, referral)
	if err != nil {
		return Plan{}, err
	}
	plan.Recipient = &recipient

	plan.IsFirstOrder, err = s.orders.IsFirstPaidOrder(ctx, order)
	if err != nil {
		return Plan{}, err
	}

	plan.Decision = s.rates.Decide(rate.Input{
		IsFirstOrder:      plan.IsFirstOrder,
		ReferrerKind:      ledgerdomain.RecipientKind(recipient.Kind),
		HasActiveReferral: true,
	})
	if !plan.Decision.Eligible {
		plan.Reason = ReasonNotEligible
		return plan, nil
	}

	plan.Attributed = true
	plan.AmountMinor = rate.AmountFor(order.SubtotalMinor, plan.Decision.CommissionRate)
	plan.EntitledDiscountMinor = rate.AmountFor(order.SubtotalMinor, plan.Decision.DiscountPercent)

	entry, err := s.ledger.FindByKey(ctx, recipient.EntityID, order.ID, plan.Decision.Type)
	if err != nil {
		return Plan{}, err
	}
	plan.EntryExists = entry != nil
	return plan, nil
}

// immediateReferrer is the first link above the customer. A customer whose referred-by
// code leads nowhere falls back to the referrer named on the referral record.
func (s *service) immediateReferrer(ctx context.Context, customerID snowflake.ID, referral *referraldomain.Referral) (graph.ChainLink, error) {
	chain, err := s.graph.ResolveReferrerChain(ctx, customerID)
	if err != nil {
		return graph.ChainLink{}, err
	}
	if len(chain) > 0 {
		return chain[0], nil
	}
	if referral.ReferrerID == 0 || !referral.ReferrerKind.Valid() {
		return graph.ChainLink{}, ErrReferrerNotFound
	}
	return graph.ChainLink{EntityID: referral.ReferrerID, Kind: referral.ReferrerKind, Level: 1}, nil
}

// ProcessOrderPaid posts the commission a paid order earns. Calling it again for the
// same order writes nothing new.
func (s *service) ProcessOrderPaid(ctx context.Context, orderID snowflake.ID) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "attribution.process_order_paid", attribute.String("order_id", orderID.String()))
	result, err := s.processOrderPaid(ctx, orderID)
	span.SetAttributes(attribute.String("attribution.reason", result.Reason))
	tracing.EndSpan(span, err)
	return result, err
}

func (s *service) processOrderPaid(ctx context.Context, orderID snowflake.ID) (Result, error) {
	plan, err := s.Plan(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if plan.Reason == ReasonNotPaid {
		return Result{}, ErrOrderNotPaid
	}

	result := Result{OrderID: orderID, Status: "processed", Reason: plan.Reason}
	if !plan.Attributed {
		s.log.Debug("order not attributed",
			zap.String("order_id", orderID.String()),
			zap.String("reason", plan.Reason),
		)
		return result, nil
	}

	metadata := ledgerdomain.EntryMetadata{
		CustomerEmail: plan.Order.CustomerEmail,
		OrderNumber:   plan.Order.OrderNumber,
		ReferralCode:  plan.Recipient.Code,
		Level:         plan.Recipient.Level,
		Source:        "order_paid",
	}
	if plan.Customer != nil {
		metadata.CustomerName = plan.Customer.Name
	}

	posted, err := s.ledger.Post(ctx, ledgerdomain.PostCommissionRequest{
		OrderID:        plan.Order.ID,
		RecipientID:    plan.Recipient.EntityID,
		RecipientKind:  ledgerdomain.RecipientKind(plan.Recipient.Kind),
		SubtotalMinor:  plan.Order.SubtotalMinor,
		Rate:           plan.Decision.CommissionRate,
		CommissionType: plan.Decision.Type,
		Currency:       plan.Order.Currency,
		Metadata:       metadata,
	})
	if err != nil {
		return Result{}, err
	}

	recipientID := plan.Recipient.EntityID
	entryID := posted.Entry.ID
	result.Attributed = true
	result.CommissionType = posted.Entry.CommissionType
	result.RecipientID = &recipientID
	result.EntryID = &entryID
	result.AmountMinor = posted.Entry.CommissionAmountMinor
	result.Created = posted.Created
	result.ReferralApplied = plan.ReferralApplied

	if plan.Decision.Type.FirstOrder() && !plan.ReferralApplied {
		_, err := s.referrals.MarkApplied(ctx, referraldomain.MarkAppliedRequest{
			ReferralID:    plan.Referral.ID,
			OrderID:       plan.Order.ID,
			Rate:          plan.Decision.CommissionRate,
			DiscountMinor: plan.EntitledDiscountMinor,
		})
		if err != nil {
			return Result{}, err
		}
		result.ReferralApplied = true
	}

	s.log.Info("order attributed",
		zap.String("order_id", orderID.String()),
		zap.String("recipient_id", recipientID.String()),
		zap.String("commission_type", string(result.CommissionType)),
		zap.Int64("amount_minor", result.AmountMinor),
		zap.Bool("created", result.Created),
	)
	return result, nil
}

// QuoteCheckout returns the discount a pending checkout by email is entitled to now.
func (s *service) QuoteCheckout(ctx context.Context, email string, subtotalMinor int64) (Quote, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || subtotalMinor < 0 {
		return Quote{}, orderdomain.ErrInvalidOrder
	}

	quote := Quote{}
	customer, err := s.referrals.FindCustomerByEmail(ctx, email)
	if err != nil {
		return Quote{}, err
	}
	if customer == nil {
		return quote, nil
	}
	referral, err := s.referrals.FindActiveForCustomer(ctx, email, s.clock.Now())
	if err != nil {
		return Quote{}, err
	}
	if referral == nil {
		return quote, nil
	}
	recipient, err := s.immediateReferrer(ctx, customer.ID, referral)
	if err != nil {
		return Quote{}, err
	}
	hasPaid, err := s.orders.HasPaidOrder(ctx, email)
	if err != nil {
		return Quote{}, err
	}

	decision := s.rates.Decide(rate.Input{
		IsFirstOrder:      !hasPaid,
		ReferrerKind:      ledgerdomain.RecipientKind(recipient.Kind),
		HasActiveReferral: true,
	})
	quote.Eligible = decision.Eligible
	quote.CommissionType = decision.Type
	quote.DiscountPercent = decision.DiscountPercent
	quote.DiscountMinor = rate.AmountFor(subtotalMinor, decision.DiscountPercent)
	quote.ReferralCode = referral.Code
	return quote, nil
}

// Report lists everyone the referrer's code attributes with their paid order volume,
// rolled up per level, next to the referrer's commission totals.
func (s *service) Report(ctx context.Context, referrerID snowflake.ID) (Report, error) {
	report := Report{ReferrerID: referrerID, Descendants: []DescendantReport{}, Levels: []LevelAggregate{}}

	partner, err := s.referrals.GetPartner(ctx, referrerID)
	switch {
	case err == nil:
		report.Kind = partner.Kind
		report.Code = partner.ReferralCode
	case isNotFound(err):
		customer, err := s.referrals.GetCustomer(ctx, referrerID)
		if err != nil {
			if isNotFound(err) {
				return Report{}, ErrReferrerNotFound
			}
			return Report{}, err
		}
		report.Kind = referraldomain.ReferrerKindCustomer
		report.Code = customer.PersonalCode
	default:
		return Report{}, err
	}

	descendants, err := s.graph.ResolveAttributedDescendants(ctx, report.Code)
	if err != nil {
		return Report{}, err
	}

	emails := make([]string, 0, len(descendants))
	for _, d := range descendants {
		emails = append(emails, d.Email)
	}
	aggs, err := s.orders.AggregateByEmails(ctx, emails)
	if err != nil {
		return Report{}, err
	}
	byEmail := make(map[string]orderdomain.EmailAggregate, len(aggs))
	for _, a := range aggs {
		byEmail[a.CustomerEmail] = a
	}

	levels := map[int]*LevelAggregate{}
	for _, d := range descendants {
		agg := byEmail[strings.ToLower(d.Email)]
		report.Descendants = append(report.Descendants, DescendantReport{
			Descendant:   d,
			OrderCount:   agg.OrderCount,
			RevenueMinor: agg.RevenueMinor,
		})
		lvl, ok := levels[d.Level]
		if !ok {
			lvl = &LevelAggregate{Level: d.Level}
			levels[d.Level] = lvl
		}
		lvl.Customers++
		lvl.OrderCount += agg.OrderCount
		lvl.RevenueMinor += agg.RevenueMinor
	}
	for _, lvl := range levels {
		report.Levels = append(report.Levels, *lvl)
	}
	sort.Slice(report.Levels, func(i, j int) bool { return report.Levels[i].Level < report.Levels[j].Level })

	report.Commission, err = s.ledger.Summary(ctx, referrerID)
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, referraldomain.ErrNotFound)
}
