package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("commission_type", "initial"),
		attribute.String("customer_id", "456"),
		attribute.String("outcome", "created"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("commission_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestRecordCommissionPostedSumsAmount(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCommissionPosted(ctx, "initial", "created", 2000)
	m.RecordCommissionPosted(ctx, "initial", "duplicate", 2000)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["pawtraits_commissions_posted_total"])
	assert.Equal(t, int64(2000), totals["pawtraits_commission_amount_minor_total"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordCommissionPosted(context.Background(), "initial", "created", 1)
	m.RecordRedemption(context.Background(), "applied", 1)
}
