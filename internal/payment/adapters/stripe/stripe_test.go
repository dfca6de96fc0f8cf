package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func newAdapter() *Adapter {
	a := New("whsec_test", 5*time.Minute)
	a.now = func() time.Time { return now }
	return a
}

func signed(secret string, payload []byte, at time.Time) http.Header {
	h := http.Header{}
	h.Set("Stripe-Signature", SignatureHeader(secret, payload, at))
	return h
}

func TestVerifySignature(t *testing.T) {
	a := newAdapter()
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{}}}`)

	require.NoError(t, a.Verify(context.Background(), payload, signed("whsec_test", payload, now)))

	cases := map[string]http.Header{
		"wrong secret": signed("wrong", payload, now),
		"stale":        signed("whsec_test", payload, now.Add(-10*time.Minute)),
		"future":       signed("whsec_test", payload, now.Add(10*time.Minute)),
		"missing":      {},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, a.Verify(context.Background(), payload, header), paymentdomain.ErrInvalidSignature)
		})
	}

	tampered := append([]byte{}, payload...)
	tampered[2] = 'X'
	assert.ErrorIs(t, a.Verify(context.Background(), tampered, signed("whsec_test", payload, now)), paymentdomain.ErrInvalidSignature)
}

func TestVerifyAcceptsAnyListedSignature(t *testing.T) {
	a := newAdapter()
	payload := []byte(`{"id":"evt_1"}`)
	good := signed("whsec_test", payload, now).Get("Stripe-Signature")

	h := http.Header{}
	h.Set("Stripe-Signature", good+",v1=deadbeef")
	assert.NoError(t, a.Verify(context.Background(), payload, h))
}

func TestParse(t *testing.T) {
	created := now.Unix()
	tests := []struct {
		name    string
		event   map[string]any
		orderID int64
		amount  int64
		wantErr error
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id": "evt_pi", "type": "payment_intent.succeeded", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id":       "pi_1", "amount": 7500, "amount_received": 7500, "currency": "gbp",
				"metadata": map[string]any{"order_id": "1234567"},
			}},
		},
		orderID: 1234567,
		amount:  7500,
	}, {
		name: "checkout.session.completed uses client reference",
		event: map[string]any{
			"id": "evt_cs", "type": "checkout.session.completed", "created": created,
			"data": map[string]any{"object": map[string]any{
				"id":                  "cs_1", "payment_status": "paid", "amount_total": 5000, "currency": "gbp",
				"client_reference_id": "7654321",
			}},
		},
		orderID: 7654321,
		amount:  5000,
	}, {
		name: "unpaid session is ignored",
		event: map[string]any{
			"id":   "evt_cs2", "type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{"id": "cs_2", "payment_status": "unpaid"}},
		},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name:    "other types are ignored",
		event:   map[string]any{"id": "evt_x", "type": "customer.created", "data": map[string]any{"object": map[string]any{}}},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name: "missing order id",
		event: map[string]any{
			"id":   "evt_pi2", "type": "payment_intent.succeeded",
			"data": map[string]any{"object": map[string]any{"id": "pi_2", "amount": 100}},
		},
		wantErr: paymentdomain.ErrInvalidOrder,
	}}

	a := newAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			require.NoError(t, err)

			event, err := a.Parse(context.Background(), payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
			assert.Equal(t, tt.orderID, event.OrderID.Int64())
			assert.Equal(t, tt.amount, event.Amount)
			assert.Equal(t, "GBP", event.Currency)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := newAdapter().Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
	_, err = newAdapter().Parse(context.Background(), []byte(`{"type":"payment_intent.succeeded"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
