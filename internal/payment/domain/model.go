package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one provider event as received. The (provider, provider_event_id)
// pair is unique, which is what makes redelivery harmless.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         *snowflake.ID  `json:"order_id,omitempty"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const EventTypePaymentSucceeded = "payment_succeeded"

// PaymentEvent is the provider-neutral shape adapters parse into.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	ProviderEventType string
	Type              string
	OrderID           snowflake.ID
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}
