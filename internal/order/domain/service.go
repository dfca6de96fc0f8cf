package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreateOrderRequest leaves CommissionBearing nil for an ordinary order, which earns commission.
type CreateOrderRequest struct {
	OrderNumber       string
	CustomerEmail     string
	CustomerID        *snowflake.ID
	SubtotalMinor     int64
	DiscountMinor     int64
	ShippingMinor     int64
	Currency          string
	ReferralCode      string
	CommissionBearing *bool
}

type MarkPaidResult struct {
	Order        Order
	Transitioned bool
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Get(ctx context.Context, id snowflake.ID) (Order, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (MarkPaidResult, error)
	IsFirstPaidOrder(ctx context.Context, order Order) (bool, error)
	HasPaidOrder(ctx context.Context, email string) (bool, error)
	ListPaidSince(ctx context.Context, since time.Time, after *PaidCursor, limit int) ([]Order, error)
	AggregateByEmails(ctx context.Context, emails []string) ([]EmailAggregate, error)
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrOrderNotFound    = fmt.Errorf("order: %w", ErrNotFound)
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrOrderNotPayable  = errors.New("order_not_payable")
	ErrDuplicateOrderNo = errors.New("duplicate_order_number")
)
