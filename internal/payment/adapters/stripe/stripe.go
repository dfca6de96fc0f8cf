package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
)

const (
	providerName     = "stripe"
	signatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func New(secret string, tolerance time.Duration) *Adapter {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(secret),
		tolerance:     tolerance,
		now:           time.Now,
	}
}

func (a *Adapter) Provider() string {
	return providerName
}

// Verify checks the v1 HMAC over "timestamp.payload" and rejects deliveries whose
// timestamp is outside the tolerance window.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" || a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, ok := parseSignatureHeader(sigHeader)
	if !ok {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > a.tolerance || age < -a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parsePaymentIntent(event, payload)
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeCheckoutSession struct {
	ID                string         `json:"id"`
	PaymentStatus     string         `json:"payment_status"`
	AmountTotal       int64          `json:"amount_total"`
	Currency          string         `json:"currency"`
	Created           int64          `json:"created"`
	ClientReferenceID string         `json:"client_reference_id"`
	Metadata          map[string]any `json:"metadata"`
}

func (a *Adapter) parsePaymentIntent(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	orderID, err := parseOrderID(readMetadataValue(intent.Metadata, "order_id"))
	if err != nil {
		return nil, err
	}
	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &paymentdomain.PaymentEvent{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderPaymentID: intent.ID,
		ProviderEventType: event.Type,
		Type:              paymentdomain.EventTypePaymentSucceeded,
		OrderID:           orderID,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

// A completed session with deferred payment (payment_status "unpaid") is not a
// payment yet; the later payment_intent event carries it.
func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		return nil, paymentdomain.ErrEventIgnored
	}

	raw := readMetadataValue(session.Metadata, "order_id")
	if raw == "" {
		raw = strings.TrimSpace(session.ClientReferenceID)
	}
	orderID, err := parseOrderID(raw)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.PaymentEvent{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderPaymentID: session.ID,
		ProviderEventType: event.Type,
		Type:              paymentdomain.EventTypePaymentSucceeded,
		OrderID:           orderID,
		Amount:            session.AmountTotal,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:        timestamp(session.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	return timestamp, signatures, timestamp != "" && len(signatures) > 0
}

func parseOrderID(raw string) (snowflake.ID, error) {
	if raw == "" {
		return 0, paymentdomain.ErrInvalidOrder
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidOrder
	}
	return id, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
