package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxRedeemAttempts = 5

// errLostRace aborts a redemption transaction when a credit row or the order changed
// underneath it. The whole redemption is retried from a fresh read.
var errLostRace = errors.New("credit_row_changed")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// GetBalance sums the customer's issued credits. Used and expired rows never count.
func (s *Service) GetBalance(ctx context.Context, customerID snowflake.ID) (int64, error) {
	if customerID == 0 {
		return 0, domain.ErrInvalidCustomer
	}
	return s.repo.SumIssued(ctx, s.db, customerID)
}

func (s *Service) List(ctx context.Context, customerID snowflake.ID) ([]domain.CustomerCredit, error) {
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	return s.repo.List(ctx, s.db, customerID)
}

// FindRetrofit returns the discount retrofit credit issued for an order, or nil.
func (s *Service) FindRetrofit(ctx context.Context, customerID, orderID snowflake.ID) (*domain.CustomerCredit, error) {
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	if orderID == 0 {
		return nil, domain.ErrInvalidOrder
	}
	return s.repo.FindBySourceOrder(ctx, s.db, customerID, orderID, domain.ReasonDiscountRetrofit)
}

// Redeem applies up to RequestedMinor of the customer's balance to a pending order.
// The order stamp and the credit consumption commit together or not at all.
func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResult, error) {
	if req.CustomerID == 0 {
		return domain.RedeemResult{}, domain.ErrInvalidCustomer
	}
	if req.OrderID == 0 {
		return domain.RedeemResult{}, domain.ErrInvalidOrder
	}
	if req.RequestedMinor <= 0 {
		return domain.RedeemResult{}, domain.ErrInvalidAmount
	}

	for attempt := 1; attempt <= maxRedeemAttempts; attempt++ {
		result, err := s.redeemOnce(ctx, req)
		if err == nil {
			outcome := "applied"
			if result.AlreadyDone {
				outcome = "already_applied"
			}
			s.metrics.RecordRedemption(ctx, outcome, result.AppliedMinor)
			return result, nil
		}
		if !errors.Is(err, errLostRace) {
			return domain.RedeemResult{}, err
		}
		s.log.Debug("redemption lost a race, retrying",
			zap.String("customer_id", req.CustomerID.String()),
			zap.String("order_id", req.OrderID.String()),
			zap.Int("attempt", attempt),
		)
	}

	s.metrics.RecordRedemption(ctx, "conflict", 0)
	s.log.Warn("redemption abandoned after repeated conflicts",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("order_id", req.OrderID.String()),
	)
	return domain.RedeemResult{}, domain.ErrConcurrentRedemption
}

func (s *Service) redeemOnce(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResult, error) {
	var result domain.RedeemResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		email, err := s.repo.FindCustomerEmail(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if email == "" {
			return domain.ErrCustomerNotFound
		}
		if !ownsOrder(order, req.CustomerID, email) {
			return domain.ErrOrderCustomerMismatch
		}

		if order.CreditAppliedAt != nil {
			result = domain.RedeemResult{AppliedMinor: order.CreditAppliedMinor, AlreadyDone: true}
			return nil
		}
		if order.PaymentStatus != "pending" {
			return domain.ErrOrderNotPending
		}

		balance, err := s.repo.SumIssued(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		applied := min(req.RequestedMinor, balance, order.PayableMinor())
		if applied <= 0 {
			result = domain.RedeemResult{}
			return nil
		}

		now := s.clock.Now()
		stamped, err := s.repo.StampOrder(ctx, tx, order.ID, applied, now)
		if err != nil {
			return err
		}
		if !stamped {
			return errLostRace
		}

		consumed, err := s.consumeFIFO(ctx, tx, req.CustomerID, order.ID, applied)
		if err != nil {
			return err
		}
		result = domain.RedeemResult{AppliedMinor: applied, Consumed: consumed}
		return nil
	})
	if err != nil {
		return domain.RedeemResult{}, err
	}
	return result, nil
}

func (s *Service) consumeFIFO(ctx context.Context, tx *gorm.DB, customerID, orderID snowflake.ID, amount int64) ([]snowflake.ID, error) {
	credits, err := s.repo.ListIssuedFIFO(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	remaining := amount
	consumed := make([]snowflake.ID, 0, len(credits))
	for _, credit := range credits {
		if remaining == 0 {
			break
		}

		if credit.AmountMinor <= remaining {
			ok, err := s.repo.ConsumeWhole(ctx, tx, credit.ID, orderID, now)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errLostRace
			}
			remaining -= credit.AmountMinor
			consumed = append(consumed, credit.ID)
			continue
		}

		ok, err := s.repo.ConsumePart(ctx, tx, credit.ID, orderID, credit.AmountMinor, remaining, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errLostRace
		}

		parentID := credit.ID
		rest := domain.CustomerCredit{
			ID:               s.genID.Generate(),
			CustomerID:       customerID,
			AmountMinor:      credit.AmountMinor - remaining,
			SourceOrderID:    credit.SourceOrderID,
			SourceReferralID: credit.SourceReferralID,
			ParentCreditID:   &parentID,
			Reason:           domain.ReasonRemainder,
			Status:           domain.CreditStatusIssued,
			IssuedAt:         credit.IssuedAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		inserted, err := s.repo.Insert(ctx, tx, &rest)
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, errLostRace
		}
		remaining = 0
		consumed = append(consumed, credit.ID)
	}

	if remaining > 0 {
		return nil, errLostRace
	}
	return consumed, nil
}

// Issue grants a credit. Retrofit credits are unique per customer and source order, so
// issuing the same retrofit twice returns the first row with Created false.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	if req.CustomerID == 0 {
		return domain.IssueResult{}, domain.ErrInvalidCustomer
	}
	if req.AmountMinor <= 0 {
		return domain.IssueResult{}, domain.ErrInvalidAmount
	}
	if !req.Reason.Valid() || req.Reason == domain.ReasonRemainder {
		return domain.IssueResult{}, domain.ErrInvalidReason
	}
	if req.Reason == domain.ReasonDiscountRetrofit && req.SourceOrderID == nil {
		return domain.IssueResult{}, domain.ErrInvalidOrder
	}

	email, err := s.repo.FindCustomerEmail(ctx, s.db, req.CustomerID)
	if err != nil {
		return domain.IssueResult{}, err
	}
	if email == "" {
		return domain.IssueResult{}, domain.ErrCustomerNotFound
	}

	now := s.clock.Now()
	credit := domain.CustomerCredit{
		ID:               s.genID.Generate(),
		CustomerID:       req.CustomerID,
		AmountMinor:      req.AmountMinor,
		SourceOrderID:    req.SourceOrderID,
		SourceReferralID: req.SourceReferralID,
		SourceEntryID:    req.SourceEntryID,
		Reason:           req.Reason,
		Status:           domain.CreditStatusIssued,
		IssuedAt:         &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	created, err := s.repo.Insert(ctx, s.db, &credit)
	if err != nil {
		return domain.IssueResult{}, err
	}
	if !created {
		if req.SourceOrderID == nil {
			return domain.IssueResult{}, domain.ErrNotFound
		}
		existing, err := s.repo.FindBySourceOrder(ctx, s.db, req.CustomerID, *req.SourceOrderID, req.Reason)
		if err != nil {
			return domain.IssueResult{}, err
		}
		if existing == nil {
			return domain.IssueResult{}, domain.ErrNotFound
		}
		return domain.IssueResult{Credit: *existing}, nil
	}

	s.metrics.RecordCreditIssued(ctx, string(req.Reason))
	s.log.Info("credit issued",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("reason", string(req.Reason)),
		zap.Int64("amount_minor", req.AmountMinor),
	)
	return domain.IssueResult{Credit: credit, Created: true}, nil
}

func ownsOrder(order *domain.OrderForRedemption, customerID snowflake.ID, email string) bool {
	if order.CustomerID != nil && *order.CustomerID == customerID {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(order.CustomerEmail), strings.TrimSpace(email))
}
