package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type RedeemRequest struct {
	CustomerID     snowflake.ID
	OrderID        snowflake.ID
	RequestedMinor int64
}

// RedeemResult reports what was actually applied. AppliedMinor below RequestedMinor
// means the balance or the order total clamped the request.
type RedeemResult struct {
	AppliedMinor int64          `json:"applied_minor"`
	Consumed     []snowflake.ID `json:"consumed"`
	AlreadyDone  bool           `json:"already_applied"`
}

type IssueRequest struct {
	CustomerID       snowflake.ID
	AmountMinor      int64
	Reason           CreditReason
	SourceOrderID    *snowflake.ID
	SourceReferralID *snowflake.ID
	SourceEntryID    *snowflake.ID
}

type IssueResult struct {
	Credit  CustomerCredit
	Created bool
}

type Service interface {
	GetBalance(ctx context.Context, customerID snowflake.ID) (int64, error)
	Redeem(ctx context.Context, req RedeemRequest) (RedeemResult, error)
	Issue(ctx context.Context, req IssueRequest) (IssueResult, error)
	List(ctx context.Context, customerID snowflake.ID) ([]CustomerCredit, error)
	FindRetrofit(ctx context.Context, customerID, orderID snowflake.ID) (*CustomerCredit, error)
}

var (
	ErrNotFound              = errors.New("not_found")
	ErrOrderNotFound         = fmt.Errorf("order: %w", ErrNotFound)
	ErrCustomerNotFound      = fmt.Errorf("customer: %w", ErrNotFound)
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidOrder          = errors.New("invalid_order")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidReason         = errors.New("invalid_reason")
	ErrOrderNotPending       = errors.New("order_not_pending")
	ErrOrderCustomerMismatch = errors.New("order_customer_mismatch")
	ErrConcurrentRedemption  = errors.New("concurrent_redemption")
)
