package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/adapters"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/adapters/stripe"
	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/webhook"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "whsec_test"

func newService(s *stack.Stack) paymentdomain.Service {
	return webhook.NewService(webhook.Params{
		DB:          s.DB,
		Log:         zap.NewNop(),
		GenID:       s.Node,
		Clock:       s.Clock,
		Repo:        repository.Provide(),
		Adapters:    adapters.NewRegistry(stripe.New(secret, 5*time.Minute)),
		Orders:      s.Orders,
		Attribution: s.Attribution,
	})
}

func intentSucceeded(t *testing.T, eventID string, orderID snowflake.ID, amount int64) ([]byte, http.Header) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{
			"id":              "pi_" + eventID,
			"amount":          amount,
			"amount_received": amount,
			"currency":        "gbp",
			"metadata":        map[string]any{"order_id": orderID.String()},
		}},
	})
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Stripe-Signature", stripe.SignatureHeader(secret, payload, time.Now()))
	return payload, h
}

func referredOrder(t *testing.T, s *stack.Stack) orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	_, err := s.Referrals.RegisterPartner(ctx, referraldomain.RegisterPartnerRequest{
		Kind:  referraldomain.ReferrerKindPartner,
		Name:  "Pawsome Grooming",
		Email: "p@example.com",
		Code:  "ABC12345",
	})
	require.NoError(t, err)
	_, err = s.Referrals.Signup(ctx, referraldomain.SignupRequest{Email: "c1@example.com", ReferralCode: "ABC12345"})
	require.NoError(t, err)
	order, err := s.Orders.Create(ctx, orderdomain.CreateOrderRequest{
		CustomerEmail: "c1@example.com",
		SubtotalMinor: 10000,
		DiscountMinor: 2000,
		Currency:      "GBP",
	})
	require.NoError(t, err)
	return order
}

func TestIngestMarksPaidAndPostsCommission(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()
	order := referredOrder(t, s)
	svc := newService(s)

	payload, headers := intentSucceeded(t, "evt_1", order.ID, 8000)
	res, err := svc.IngestWebhook(ctx, "Stripe", payload, headers)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Attribution)
	assert.True(t, res.Attribution.Created)
	assert.Equal(t, int64(2000), res.Attribution.AmountMinor)

	stored, err := s.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, int64(1), testutil.CountRows(t, s.DB,
		`SELECT COUNT(1) FROM payment_events WHERE provider_event_id = 'evt_1' AND processed_at IS NOT NULL`))

	again, err := svc.IngestWebhook(ctx, "stripe", payload, headers)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Nil(t, again.Attribution)

	// A different event for the same payment is not a duplicate delivery, but posts nothing new.
	payload, headers = intentSucceeded(t, "evt_2", order.ID, 8000)
	other, err := svc.IngestWebhook(ctx, "stripe", payload, headers)
	require.NoError(t, err)
	require.NotNil(t, other.Attribution)
	assert.False(t, other.Attribution.Created)
	assert.Equal(t, int64(1), testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM commission_ledger_entries`))
}

func TestIngestRejectsBadSignature(t *testing.T) {
	s := stack.New(t)
	order := referredOrder(t, s)
	payload, headers := intentSucceeded(t, "evt_1", order.ID, 8000)
	headers.Set("Stripe-Signature", stripe.SignatureHeader("whsec_other", payload, time.Now()))

	_, err := newService(s).IngestWebhook(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	assert.Zero(t, testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM payment_events`))
	assert.Zero(t, testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM orders WHERE payment_status = 'paid'`))
}

func TestIngestIgnoresOtherEvents(t *testing.T) {
	s := stack.New(t)
	payload := []byte(`{"id":"evt_x","type":"customer.created","data":{"object":{}}}`)
	h := http.Header{}
	h.Set("Stripe-Signature", stripe.SignatureHeader(secret, payload, time.Now()))

	res, err := newService(s).IngestWebhook(context.Background(), "stripe", payload, h)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Zero(t, testutil.CountRows(t, s.DB, `SELECT COUNT(1) FROM payment_events`))
}

func TestIngestUnknownOrderStaysUnprocessed(t *testing.T) {
	s := stack.New(t)
	ctx := context.Background()
	svc := newService(s)
	missing := s.Node.Generate()

	payload, headers := intentSucceeded(t, "evt_9", missing, 100)
	_, err := svc.IngestWebhook(ctx, "stripe", payload, headers)
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
	assert.Equal(t, int64(1), testutil.CountRows(t, s.DB,
		`SELECT COUNT(1) FROM payment_events WHERE provider_event_id = 'evt_9' AND processed_at IS NULL`))

	// The redelivery is retried, not short-circuited as a duplicate.
	_, err = svc.IngestWebhook(ctx, "stripe", payload, headers)
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestIngestUnknownProvider(t *testing.T) {
	s := stack.New(t)
	_, err := newService(s).IngestWebhook(context.Background(), "adyen", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
	_, err = newService(s).IngestWebhook(context.Background(), " ", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidProvider)
}
