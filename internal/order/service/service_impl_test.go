package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/service"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFirstPaidOrderFollowsCreationOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: testutil.Node(t), Clock: clk, Repo: repo})

	first, err := svc.Create(ctx, domain.CreateOrderRequest{CustomerEmail: "C1@Example.com", SubtotalMinor: 10000, Currency: "gbp"})
	require.NoError(t, err)
	assert.Equal(t, "c1@example.com", first.CustomerEmail)
	assert.Equal(t, "GBP", first.Currency)

	clk.Advance(time.Hour)
	second, err := svc.Create(ctx, domain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 5000, Currency: "GBP"})
	require.NoError(t, err)

	// Paying the later order first does not make it the first order.
	_, err = svc.MarkPaid(ctx, second.ID)
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, first.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	isFirst, err := svc.IsFirstPaidOrder(ctx, got)
	require.NoError(t, err)
	assert.True(t, isFirst)

	got, err = svc.Get(ctx, second.ID)
	require.NoError(t, err)
	isFirst, err = svc.IsFirstPaidOrder(ctx, got)
	require.NoError(t, err)
	assert.False(t, isFirst)

	hasPaid, err := repo.HasPaidOrder(ctx, db, "C1@example.com")
	require.NoError(t, err)
	assert.True(t, hasPaid)
}

func TestCreateHonorsCommissionBearing(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: testutil.Node(t), Clock: clk, Repo: repository.Provide()})

	ordinary, err := svc.Create(ctx, domain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 100, Currency: "GBP"})
	require.NoError(t, err)
	bearing := false
	sample, err := svc.Create(ctx, domain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 100, Currency: "GBP", CommissionBearing: &bearing})
	require.NoError(t, err)

	got, err := svc.Get(ctx, ordinary.ID)
	require.NoError(t, err)
	assert.True(t, got.CommissionBearing)
	got, err = svc.Get(ctx, sample.ID)
	require.NoError(t, err)
	assert.False(t, got.CommissionBearing)
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	node := testutil.Node(t)
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repository.Provide()})

	order, err := svc.Create(ctx, domain.CreateOrderRequest{CustomerEmail: "c1@example.com", SubtotalMinor: 100, Currency: "GBP"})
	require.NoError(t, err)

	res, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	require.NotNil(t, res.Order.PaidAt)

	res, err = svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)

	failed := node.Generate()
	testutil.SeedOrder(t, db, testutil.OrderSeed{ID: failed, Email: "c1@example.com", SubtotalMinor: 100, Status: "failed", CreatedAt: clk.Now()})
	_, err = svc.MarkPaid(ctx, failed)
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)

	_, err = svc.MarkPaid(ctx, node.Generate())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.Create(ctx, domain.CreateOrderRequest{OrderNumber: order.OrderNumber, CustomerEmail: "x@example.com", Currency: "GBP"})
	assert.ErrorIs(t, err, domain.ErrDuplicateOrderNo)
}

func TestListPaidSinceWalksKeyset(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	repo := repository.Provide()
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		paidAt := start.Add(time.Duration(i) * time.Minute)
		testutil.SeedOrder(t, db, testutil.OrderSeed{
			ID:            node.Generate(),
			Email:         "c1@example.com",
			SubtotalMinor: int64(1000 * (i + 1)),
			Status:        "paid",
			CreatedAt:     start.Add(time.Duration(i) * time.Minute),
			PaidAt:        &paidAt,
		})
	}
	testutil.SeedOrder(t, db, testutil.OrderSeed{ID: node.Generate(), Email: "c1@example.com", SubtotalMinor: 1, CreatedAt: start})

	var (
		seen   int
		cursor *domain.PaidCursor
	)
	for {
		batch, err := repo.ListPaidSince(ctx, db, start, cursor, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		seen += len(batch)
		last := batch[len(batch)-1]
		cursor = &domain.PaidCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	assert.Equal(t, 5, seen)

	aggs, err := repo.AggregateByEmails(ctx, db, []string{"C1@example.com", "nobody@example.com"})
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(5), aggs[0].OrderCount)
	assert.Equal(t, int64(15000), aggs[0].RevenueMinor)
}
