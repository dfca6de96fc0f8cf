package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/commission/rate"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	CreditRepo creditdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	creditRepo creditdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		creditRepo: p.CreditRepo,
		obsMetrics: p.ObsMetrics,
	}
}

// Post writes the commission for (recipient, order, type) at most once. A repeated
// post returns the stored entry with Created false and writes nothing.
func (s *Service) Post(ctx context.Context, req ledgerdomain.PostCommissionRequest) (ledgerdomain.PostResult, error) {
	if err := validatePost(req); err != nil {
		return ledgerdomain.PostResult{}, err
	}

	now := s.clock.Now()
	entry := ledgerdomain.CommissionLedgerEntry{
		ID:                    s.genID.Generate(),
		RecipientID:           req.RecipientID,
		RecipientKind:         req.RecipientKind,
		OrderID:               req.OrderID,
		CommissionType:        req.CommissionType,
		CommissionRate:        req.Rate,
		BaseAmountMinor:       req.SubtotalMinor,
		CommissionAmountMinor: rate.AmountFor(req.SubtotalMinor, req.Rate),
		Currency:              strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:                ledgerdomain.EntryStatusPending,
		Metadata:              datatypes.NewJSONType(req.Metadata),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	var result ledgerdomain.PostResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.OrderExists(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return ledgerdomain.ErrOrderNotFound
		}

		exists, err = s.repo.RecipientExists(ctx, tx, req.RecipientID, req.RecipientKind)
		if err != nil {
			return err
		}
		if !exists {
			return ledgerdomain.ErrRecipientNotFound
		}

		created, err := s.repo.InsertIfAbsent(ctx, tx, &entry)
		if err != nil {
			return err
		}
		if !created {
			existing, err := s.repo.FindByKey(ctx, tx, req.RecipientID, req.OrderID, req.CommissionType)
			if err != nil {
				return err
			}
			if existing == nil {
				return ledgerdomain.ErrEntryNotFound
			}
			result = ledgerdomain.PostResult{Entry: *existing}
			return nil
		}

		if entry.CommissionType == ledgerdomain.CommissionTypeCustomerCredit && entry.CommissionAmountMinor > 0 {
			if err := s.issueReferralReward(ctx, tx, entry, now); err != nil {
				return err
			}
		}
		result = ledgerdomain.PostResult{Entry: entry, Created: true}
		return nil
	})
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}

	outcome := "created"
	if !result.Created {
		outcome = "duplicate"
	}
	s.obsMetrics.RecordCommissionPosted(ctx, string(result.Entry.CommissionType), outcome, result.Entry.CommissionAmountMinor)
	s.log.Info("commission posted",
		zap.String("entry_id", result.Entry.ID.String()),
		zap.String("order_id", req.OrderID.String()),
		zap.String("recipient_id", req.RecipientID.String()),
		zap.String("commission_type", string(req.CommissionType)),
		zap.Int64("amount_minor", result.Entry.CommissionAmountMinor),
		zap.Bool("created", result.Created),
	)
	return result, nil
}

func (s *Service) issueReferralReward(ctx context.Context, tx *gorm.DB, entry ledgerdomain.CommissionLedgerEntry, now time.Time) error {
	entryID := entry.ID
	orderID := entry.OrderID
	credit := creditdomain.CustomerCredit{
		ID:            s.genID.Generate(),
		CustomerID:    entry.RecipientID,
		AmountMinor:   entry.CommissionAmountMinor,
		SourceOrderID: &orderID,
		SourceEntryID: &entryID,
		Reason:        creditdomain.ReasonReferralReward,
		Status:        creditdomain.CreditStatusIssued,
		IssuedAt:      &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.creditRepo.Insert(ctx, tx, &credit); err != nil {
		return err
	}
	s.obsMetrics.RecordCreditIssued(ctx, string(creditdomain.ReasonReferralReward))
	return nil
}

func validatePost(req ledgerdomain.PostCommissionRequest) error {
	switch {
	case req.OrderID == 0:
		return ledgerdomain.ErrInvalidOrder
	case req.RecipientID == 0:
		return ledgerdomain.ErrInvalidRecipient
	case !req.RecipientKind.Valid():
		return ledgerdomain.ErrInvalidRecipientKind
	case !req.CommissionType.Valid():
		return ledgerdomain.ErrInvalidCommissionType
	case req.CommissionType == ledgerdomain.CommissionTypeCustomerCredit && req.RecipientKind != ledgerdomain.RecipientKindCustomer:
		return ledgerdomain.ErrInvalidCommissionType
	case !req.Rate.IsPositive():
		return ledgerdomain.ErrInvalidRate
	case req.SubtotalMinor < 0:
		return ledgerdomain.ErrInvalidAmount
	case strings.TrimSpace(req.Currency) == "":
		return ledgerdomain.ErrInvalidCurrency
	}
	return nil
}

// AdvanceStatus moves an entry one step along pending, approved, paid. Asking for the
// status the entry already has returns it unchanged.
func (s *Service) AdvanceStatus(ctx context.Context, entryID snowflake.ID, to ledgerdomain.EntryStatus) (ledgerdomain.CommissionLedgerEntry, error) {
	if entryID == 0 {
		return ledgerdomain.CommissionLedgerEntry{}, ledgerdomain.ErrEntryNotFound
	}
	from, ok := to.Predecessor()
	if !ok {
		return ledgerdomain.CommissionLedgerEntry{}, ledgerdomain.ErrInvalidStatus
	}

	changed, err := s.repo.UpdateStatus(ctx, s.db, entryID, from, to, s.clock.Now())
	if err != nil {
		return ledgerdomain.CommissionLedgerEntry{}, err
	}

	entry, err := s.repo.FindByID(ctx, s.db, entryID)
	if err != nil {
		return ledgerdomain.CommissionLedgerEntry{}, err
	}
	if entry == nil {
		return ledgerdomain.CommissionLedgerEntry{}, ledgerdomain.ErrEntryNotFound
	}
	if !changed && entry.Status != to {
		return ledgerdomain.CommissionLedgerEntry{}, ledgerdomain.ErrInvalidTransition
	}
	if changed {
		s.log.Info("commission status advanced",
			zap.String("entry_id", entryID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return *entry, nil
}

func (s *Service) FindByKey(ctx context.Context, recipientID, orderID snowflake.ID, commissionType ledgerdomain.CommissionType) (*ledgerdomain.CommissionLedgerEntry, error) {
	if !commissionType.Valid() {
		return nil, ledgerdomain.ErrInvalidCommissionType
	}
	return s.repo.FindByKey(ctx, s.db, recipientID, orderID, commissionType)
}

func (s *Service) ListByOrder(ctx context.Context, orderID snowflake.ID) ([]ledgerdomain.CommissionLedgerEntry, error) {
	if orderID == 0 {
		return nil, ledgerdomain.ErrInvalidOrder
	}
	return s.repo.ListByOrder(ctx, s.db, orderID)
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	if req.RecipientID == 0 {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidRecipient
	}
	if req.Status != "" && req.Status != ledgerdomain.EntryStatusPending &&
		req.Status != ledgerdomain.EntryStatusApproved && req.Status != ledgerdomain.EntryStatusPaid {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := ledgerdomain.ListFilter{
		RecipientID: req.RecipientID,
		Status:      req.Status,
		Limit:       int(pageSize) + 1,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		id, createdAt, err := pagination.DecodeKeyset(token)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidCursor
		}
		filter.BeforeCreatedAt = &createdAt
		filter.BeforeID = id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *ledgerdomain.CommissionLedgerEntry) string {
		return pagination.EncodeKeyset(entry.ID, entry.CreatedAt)
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	entries := make([]ledgerdomain.CommissionLedgerEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := ledgerdomain.ListEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
		if !pageInfo.HasMore {
			resp.NextPageToken = ""
		}
	}
	return resp, nil
}

// PayableBalance is what the recipient is owed right now: approved cash commission not yet paid.
func (s *Service) PayableBalance(ctx context.Context, recipientID snowflake.ID) (int64, error) {
	if recipientID == 0 {
		return 0, ledgerdomain.ErrInvalidRecipient
	}
	return s.repo.SumApprovedPayable(ctx, s.db, recipientID)
}

func (s *Service) Summary(ctx context.Context, recipientID snowflake.ID) (ledgerdomain.Summary, error) {
	if recipientID == 0 {
		return ledgerdomain.Summary{}, ledgerdomain.ErrInvalidRecipient
	}

	totals, err := s.repo.TotalsByStatus(ctx, s.db, recipientID)
	if err != nil {
		return ledgerdomain.Summary{}, err
	}
	credit, err := s.repo.SumCustomerCredit(ctx, s.db, recipientID)
	if err != nil {
		return ledgerdomain.Summary{}, err
	}

	summary := ledgerdomain.Summary{RecipientID: recipientID, CreditMinor: credit, ByStatus: totals}
	for _, t := range totals {
		summary.EntryCount += t.Count
		switch t.Status {
		case ledgerdomain.EntryStatusPending:
			summary.PendingMinor = t.AmountMinor
		case ledgerdomain.EntryStatusApproved:
			summary.ApprovedMinor = t.AmountMinor
		case ledgerdomain.EntryStatusPaid:
			summary.PaidMinor = t.AmountMinor
		}
	}
	return summary, nil
}
