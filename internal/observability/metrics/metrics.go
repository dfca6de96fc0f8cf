package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the business instruments of the commission ledger.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commissionsPosted  metric.Int64Counter
	commissionMinor    metric.Int64Counter
	creditRedemptions  metric.Int64Counter
	creditAppliedMinor metric.Int64Counter
	creditsIssued      metric.Int64Counter
	paymentEvents      metric.Int64Counter
	referralTransition metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the business instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pawtraits"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.commissionsPosted, "pawtraits_commissions_posted_total", "Commission post attempts by type and outcome."},
		{&m.commissionMinor, "pawtraits_commission_amount_minor_total", "Commission amount written to the ledger in minor units."},
		{&m.creditRedemptions, "pawtraits_credit_redemptions_total", "Credit redemptions by outcome."},
		{&m.creditAppliedMinor, "pawtraits_credit_applied_minor_total", "Credit applied to orders in minor units."},
		{&m.creditsIssued, "pawtraits_credits_issued_total", "Customer credits issued by reason."},
		{&m.paymentEvents, "pawtraits_payment_events_total", "Payment webhook events by provider and type."},
		{&m.referralTransition, "pawtraits_referral_transitions_total", "Referral status transitions by target status."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordCommissionPosted counts a post attempt. outcome is "created" or "duplicate".
func (m *Metrics) RecordCommissionPosted(ctx context.Context, commissionType, outcome string, amountMinor int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("commission_type", commissionType),
		attribute.String("outcome", outcome),
	)...)
	m.commissionsPosted.Add(ctx, 1, attrs)
	if outcome == "created" && amountMinor > 0 {
		m.commissionMinor.Add(ctx, amountMinor, attrs)
	}
}

func (m *Metrics) RecordRedemption(ctx context.Context, outcome string, appliedMinor int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...)
	m.creditRedemptions.Add(ctx, 1, attrs)
	if appliedMinor > 0 {
		m.creditAppliedMinor.Add(ctx, appliedMinor, attrs)
	}
}

func (m *Metrics) RecordCreditIssued(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.creditsIssued.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", reason))...))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)...))
}

func (m *Metrics) RecordReferralTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.referralTransition.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", status))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"commission_type": {},
	"outcome":         {},
	"reason":          {},
	"provider":        {},
	"event_type":      {},
	"status":          {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
