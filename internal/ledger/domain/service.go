package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type PostCommissionRequest struct {
	OrderID        snowflake.ID
	RecipientID    snowflake.ID
	RecipientKind  RecipientKind
	SubtotalMinor  int64
	Rate           decimal.Decimal
	CommissionType CommissionType
	Currency       string
	Metadata       EntryMetadata
}

// PostResult carries the entry for the idempotency key. Created is false when the
// entry already existed and nothing was written.
type PostResult struct {
	Entry   CommissionLedgerEntry
	Created bool
}

type ListEntriesRequest struct {
	RecipientID snowflake.ID
	Status      EntryStatus
	PageToken   string
	PageSize    int32
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []CommissionLedgerEntry `json:"entries"`
}

type Service interface {
	Post(ctx context.Context, req PostCommissionRequest) (PostResult, error)
	AdvanceStatus(ctx context.Context, entryID snowflake.ID, to EntryStatus) (CommissionLedgerEntry, error)
	FindByKey(ctx context.Context, recipientID, orderID snowflake.ID, commissionType CommissionType) (*CommissionLedgerEntry, error)
	ListByOrder(ctx context.Context, orderID snowflake.ID) ([]CommissionLedgerEntry, error)
	List(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	PayableBalance(ctx context.Context, recipientID snowflake.ID) (int64, error)
	Summary(ctx context.Context, recipientID snowflake.ID) (Summary, error)
}

var (
	ErrNotFound              = errors.New("not_found")
	ErrOrderNotFound         = fmt.Errorf("order: %w", ErrNotFound)
	ErrRecipientNotFound     = fmt.Errorf("recipient: %w", ErrNotFound)
	ErrEntryNotFound         = fmt.Errorf("ledger_entry: %w", ErrNotFound)
	ErrInvalidOrder          = errors.New("invalid_order")
	ErrInvalidRecipient      = errors.New("invalid_recipient")
	ErrInvalidRecipientKind  = errors.New("invalid_recipient_kind")
	ErrInvalidCommissionType = errors.New("invalid_commission_type")
	ErrInvalidRate           = errors.New("invalid_commission_rate")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidTransition     = errors.New("invalid_status_transition")
	ErrInvalidCursor         = errors.New("invalid_page_token")
)
