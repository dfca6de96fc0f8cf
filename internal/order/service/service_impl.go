package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Order{}, domain.ErrInvalidEmail
	}
	if req.SubtotalMinor < 0 || req.DiscountMinor < 0 || req.ShippingMinor < 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return domain.Order{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		number = "PW-" + id.String()
	}

	order := domain.Order{
		ID:                id,
		OrderNumber:       number,
		CustomerEmail:     email,
		CustomerID:        req.CustomerID,
		SubtotalMinor:     req.SubtotalMinor,
		DiscountMinor:     req.DiscountMinor,
		ShippingMinor:     req.ShippingMinor,
		Currency:          currency,
		PaymentStatus:     domain.PaymentStatusPending,
		CommissionBearing: req.CommissionBearing == nil || *req.CommissionBearing,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if code := strings.ToUpper(strings.TrimSpace(req.ReferralCode)); code != "" {
		order.ReferralCode = &code
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Order{}, domain.ErrDuplicateOrderNo
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Order, error) {
	if id == 0 {
		return domain.Order{}, domain.ErrInvalidOrder
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

// MarkPaid is safe to repeat. Only the call that moves the order out of pending reports
// Transitioned.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (domain.MarkPaidResult, error) {
	if id == 0 {
		return domain.MarkPaidResult{}, domain.ErrInvalidOrder
	}

	changed, err := s.repo.MarkPaid(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return domain.MarkPaidResult{}, err
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.MarkPaidResult{}, err
	}
	if order == nil {
		return domain.MarkPaidResult{}, domain.ErrOrderNotFound
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return domain.MarkPaidResult{}, domain.ErrOrderNotPayable
	}
	if changed {
		s.log.Info("order marked paid",
			zap.String("order_id", id.String()),
			zap.String("order_number", order.OrderNumber),
		)
	}
	return domain.MarkPaidResult{Order: *order, Transitioned: changed}, nil
}

// IsFirstPaidOrder reports whether no paid order by the same email precedes order.
func (s *Service) IsFirstPaidOrder(ctx context.Context, order domain.Order) (bool, error) {
	earlier, err := s.repo.HasEarlierPaidOrder(ctx, s.db, order.CustomerEmail, order.CreatedAt, order.ID)
	if err != nil {
		return false, err
	}
	return !earlier, nil
}

func (s *Service) HasPaidOrder(ctx context.Context, email string) (bool, error) {
	return s.repo.HasPaidOrder(ctx, s.db, email)
}

func (s *Service) ListPaidSince(ctx context.Context, since time.Time, after *domain.PaidCursor, limit int) ([]domain.Order, error) {
	return s.repo.ListPaidSince(ctx, s.db, since, after, limit)
}

func (s *Service) AggregateByEmails(ctx context.Context, emails []string) ([]domain.EmailAggregate, error) {
	return s.repo.AggregateByEmails(ctx, s.db, emails)
}
