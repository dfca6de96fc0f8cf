package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/payment/adapters"
	paymentdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	Adapters    *adapters.Registry
	Orders      orderdomain.Service
	Attribution attribution.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	adapters    *adapters.Registry
	orders      orderdomain.Service
	attribution attribution.Service
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.webhook"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		adapters:    p.Adapters,
		orders:      p.Orders,
		attribution: p.Attribution,
		metrics:     p.Metrics,
	}
}

// IngestWebhook verifies a delivery, records it once and marks the order paid before
// running order-paid processing. An event stays unprocessed until every step has
// succeeded, so a provider retry after a failure redoes only what is missing.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return paymentdomain.IngestResult{}, err
	}
	if !json.Valid(payload) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidPayload
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.String("provider", provider))
		return paymentdomain.IngestResult{}, err
	}

	result := paymentdomain.IngestResult{Provider: provider}
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			result.Ignored = true
			return result, nil
		}
		return result, err
	}
	result.ProviderEventID = event.ProviderEventID
	result.OrderID = &event.OrderID
	s.metrics.RecordPaymentEvent(ctx, provider, event.ProviderEventType)

	record, err := s.record(ctx, provider, event, payload)
	if err != nil {
		return result, err
	}
	if record.ProcessedAt != nil {
		result.Duplicate = true
		return result, nil
	}

	paid, err := s.orders.MarkPaid(ctx, event.OrderID)
	if err != nil {
		return result, err
	}
	if paid.Order.Currency != "" && event.Currency != "" && paid.Order.Currency != event.Currency {
		s.log.Warn("payment currency differs from order",
			zap.String("order_id", event.OrderID.String()),
			zap.String("order_currency", paid.Order.Currency),
			zap.String("event_currency", event.Currency),
		)
	}

	attributed, err := s.attribution.ProcessOrderPaid(ctx, event.OrderID)
	if err != nil {
		return result, err
	}
	result.Attribution = &attributed

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return result, err
	}

	s.log.Info("payment event processed",
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("order_id", event.OrderID.String()),
		zap.Bool("order_transitioned", paid.Transitioned),
		zap.Bool("attributed", attributed.Attributed),
	)
	return result, nil
}

// record stores the event or returns the copy stored by an earlier delivery.
func (s *Service) record(ctx context.Context, provider string, event *paymentdomain.PaymentEvent, payload []byte) (*paymentdomain.EventRecord, error) {
	orderID := event.OrderID
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		OrderID:         &orderID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return existing, nil
}
