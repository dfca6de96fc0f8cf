package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
)

// Adapter verifies and parses one provider's webhook deliveries.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type IngestResult struct {
	Provider        string              `json:"provider"`
	ProviderEventID string              `json:"provider_event_id,omitempty"`
	OrderID         *snowflake.ID       `json:"order_id,omitempty"`
	Ignored         bool                `json:"ignored"`
	Duplicate       bool                `json:"duplicate"`
	Attribution     *attribution.Result `json:"attribution,omitempty"`
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrEventIgnored     = errors.New("event_ignored")
)
