package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/service"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	svc      domain.Service
	customer snowflake.ID
}

func newFixture(t *testing.T, repo domain.Repository) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(baseTime)
	if repo == nil {
		repo = repository.Provide()
	}

	customer := node.Generate()
	testutil.SeedCustomer(t, db, customer, "ada@example.com", "ADA00001", "", baseTime)

	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repo,
	})
	return &fixture{db: db, node: node, clock: clk, svc: svc, customer: customer}
}

func (f *fixture) pendingOrder(t *testing.T, subtotal int64) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	testutil.SeedOrder(t, f.db, testutil.OrderSeed{
		ID:            id,
		Email:         "ada@example.com",
		SubtotalMinor: subtotal,
		CreatedAt:     f.clock.Now(),
	})
	return id
}

func (f *fixture) credit(t *testing.T, amount int64, issuedAt time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	testutil.SeedIssuedCredit(t, f.db, id, f.customer, amount, issuedAt)
	return id
}

func TestGetBalanceCountsOnlyIssued(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.credit(t, 500, baseTime)
	used := f.credit(t, 300, baseTime)
	require.NoError(t, f.db.Exec(`UPDATE customer_credits SET status = 'used' WHERE id = ?`, used).Error)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	_, err = f.svc.GetBalance(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
}

func TestRedeemConsumesOldestFirstAndSplitsRemainder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	older := f.credit(t, 500, baseTime.Add(-48*time.Hour))
	newer := f.credit(t, 1000, baseTime.Add(-24*time.Hour))
	order := f.pendingOrder(t, 5000)

	res, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 800})
	require.NoError(t, err)
	assert.Equal(t, int64(800), res.AppliedMinor)
	assert.Equal(t, []snowflake.ID{older, newer}, res.Consumed)
	assert.False(t, res.AlreadyDone)

	credits, err := f.svc.List(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, credits, 3)

	byID := map[snowflake.ID]domain.CustomerCredit{}
	var remainder *domain.CustomerCredit
	for i := range credits {
		byID[credits[i].ID] = credits[i]
		if credits[i].Reason == domain.ReasonRemainder {
			remainder = &credits[i]
		}
	}
	assert.Equal(t, domain.CreditStatusUsed, byID[older].Status)
	assert.Equal(t, int64(500), byID[older].AmountMinor)
	assert.Equal(t, domain.CreditStatusUsed, byID[newer].Status)
	assert.Equal(t, int64(300), byID[newer].AmountMinor)
	require.NotNil(t, byID[newer].ConsumedByOrderID)
	assert.Equal(t, order, *byID[newer].ConsumedByOrderID)

	require.NotNil(t, remainder)
	assert.Equal(t, int64(700), remainder.AmountMinor)
	assert.Equal(t, domain.CreditStatusIssued, remainder.Status)
	require.NotNil(t, remainder.ParentCreditID)
	assert.Equal(t, newer, *remainder.ParentCreditID)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)

	assert.Equal(t, int64(800), testutil.CountRows(t, f.db, `SELECT credit_applied_minor FROM orders WHERE id = ?`, order))
}

func TestRedeemClampsToBalanceAndPayable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.credit(t, 700, baseTime)

	res, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: f.pendingOrder(t, 5000), RequestedMinor: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.AppliedMinor)

	f.credit(t, 1000, baseTime)
	res, err = f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: f.pendingOrder(t, 400), RequestedMinor: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.AppliedMinor)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)
}

func TestRedeemWithEmptyBalanceAppliesNothing(t *testing.T) {
	f := newFixture(t, nil)
	order := f.pendingOrder(t, 5000)

	res, err := f.svc.Redeem(context.Background(), domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 100})
	require.NoError(t, err)
	assert.Zero(t, res.AppliedMinor)
	assert.Zero(t, testutil.CountRows(t, f.db, `SELECT COUNT(1) FROM orders WHERE id = ? AND credit_applied_at IS NOT NULL`, order))
}

func TestRedeemTwiceReturnsStampedAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.credit(t, 1000, baseTime)
	order := f.pendingOrder(t, 5000)
	req := domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 600}

	first, err := f.svc.Redeem(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Redeem(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(600), first.AppliedMinor)
	assert.Equal(t, int64(600), second.AppliedMinor)
	assert.True(t, second.AlreadyDone)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
}

func TestRedeemRejectsForeignAndSettledOrders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.credit(t, 1000, baseTime)

	foreign := f.node.Generate()
	testutil.SeedOrder(t, f.db, testutil.OrderSeed{ID: foreign, Email: "grace@example.com", SubtotalMinor: 1000, CreatedAt: baseTime})
	_, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: foreign, RequestedMinor: 100})
	assert.ErrorIs(t, err, domain.ErrOrderCustomerMismatch)

	paid := f.node.Generate()
	testutil.SeedOrder(t, f.db, testutil.OrderSeed{ID: paid, Email: "ADA@example.com", SubtotalMinor: 1000, Status: "paid", CreatedAt: baseTime})
	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: paid, RequestedMinor: 100})
	assert.ErrorIs(t, err, domain.ErrOrderNotPending)

	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: f.node.Generate(), RequestedMinor: 100})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: paid, RequestedMinor: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestConcurrentRedeemsNeverExceedBalance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.credit(t, 400, baseTime.Add(-time.Hour))
	f.credit(t, 600, baseTime)

	const workers = 8
	orders := make([]snowflake.ID, workers)
	for i := range orders {
		orders[i] = f.pendingOrder(t, 5000)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for _, order := range orders {
		wg.Add(1)
		go func(order snowflake.ID) {
			defer wg.Done()
			res, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 300})
			if err != nil {
				return
			}
			mu.Lock()
			total += res.AppliedMinor
			mu.Unlock()
		}(order)
	}
	wg.Wait()

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.LessOrEqual(t, total, int64(1000))
	assert.Equal(t, int64(1000), total+balance)
	assert.Equal(t, total, testutil.CountRows(t, f.db, `SELECT COALESCE(SUM(credit_applied_minor), 0) FROM orders`))
	assert.Equal(t, total, testutil.CountRows(t, f.db, `SELECT COALESCE(SUM(amount_minor), 0) FROM customer_credits WHERE status = 'used'`))
}

// racingRepo steals the credit row inside the caller's transaction before the
// compare-and-swap, as a competing redemption would.
type racingRepo struct {
	domain.Repository
	mu     sync.Mutex
	steals int
	limit  int
}

func (r *racingRepo) ConsumeWhole(ctx context.Context, db *gorm.DB, creditID, orderID snowflake.ID, now time.Time) (bool, error) {
	r.mu.Lock()
	steal := r.steals < r.limit
	if steal {
		r.steals++
	}
	r.mu.Unlock()
	if steal {
		if err := db.Exec(`UPDATE customer_credits SET status = 'used' WHERE id = ?`, creditID).Error; err != nil {
			return false, err
		}
	}
	return r.Repository.ConsumeWhole(ctx, db, creditID, orderID, now)
}

func TestRedeemRetriesLostCompareAndSwap(t *testing.T) {
	repo := &racingRepo{Repository: repository.Provide(), limit: 1}
	f := newFixture(t, repo)
	ctx := context.Background()

	f.credit(t, 500, baseTime)
	order := f.pendingOrder(t, 5000)

	res, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.AppliedMinor)
	assert.Equal(t, 1, repo.steals)
}

func TestRedeemGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := &racingRepo{Repository: repository.Provide(), limit: 100}
	f := newFixture(t, repo)
	ctx := context.Background()

	f.credit(t, 500, baseTime)
	order := f.pendingOrder(t, 5000)

	_, err := f.svc.Redeem(ctx, domain.RedeemRequest{CustomerID: f.customer, OrderID: order, RequestedMinor: 500})
	assert.ErrorIs(t, err, domain.ErrConcurrentRedemption)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
	assert.Zero(t, testutil.CountRows(t, f.db, `SELECT COUNT(1) FROM orders WHERE id = ? AND credit_applied_at IS NOT NULL`, order))
}

func TestIssueRetrofitIsIdempotentPerSourceOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	source := f.node.Generate()

	req := domain.IssueRequest{
		CustomerID:    f.customer,
		AmountMinor:   1200,
		Reason:        domain.ReasonDiscountRetrofit,
		SourceOrderID: &source,
	}
	first, err := f.svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Credit.ID, second.Credit.ID)

	balance, err := f.svc.GetBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), balance)
}

func TestIssueValidatesRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, domain.IssueRequest{CustomerID: f.customer, AmountMinor: 0, Reason: domain.ReasonGoodwill})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{CustomerID: f.customer, AmountMinor: 10, Reason: domain.ReasonRemainder})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)

	_, err = f.svc.Issue(ctx, domain.IssueRequest{CustomerID: f.node.Generate(), AmountMinor: 10, Reason: domain.ReasonGoodwill})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}
