package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability/tracing"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/providers/pdf"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	jobName          = "reconciliation"
	lockKey          = "pawtraits:reconciliation:lock"
	defaultBatchSize = 200
	maxBatchSize     = 1000
	defaultLookback  = 90 * 24 * time.Hour
	defaultLockTTL   = 10 * time.Minute
	defaultListLimit = 20
	maxListLimit     = 100
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	Orders      orderdomain.Service
	Referrals   referraldomain.Service
	Credits     creditdomain.Service
	Attribution attribution.Service
	PDF         pdf.Provider           `optional:"true"`
	Locker      domain.Locker          `optional:"true"`
	JobMetrics  *obsmetrics.JobMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.ReconcileConfig
	repo        domain.Repository
	orders      orderdomain.Service
	referrals   referraldomain.Service
	credits     creditdomain.Service
	attribution attribution.Service
	pdf         pdf.Provider
	locker      domain.Locker
	jobMetrics  *obsmetrics.JobMetrics
}

func New(p Params) domain.Service {
	renderer := p.PDF
	if renderer == nil {
		renderer = pdf.New()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Config.Reconcile,
		repo:        p.Repo,
		orders:      p.Orders,
		referrals:   p.Referrals,
		credits:     p.Credits,
		attribution: p.Attribution,
		pdf:         renderer,
		locker:      p.Locker,
		jobMetrics:  p.JobMetrics,
	}
}

// Run re-derives what every paid order since opts.Since should have produced and
// repairs the gaps. Every repair goes through the same idempotent paths as live
// processing, so running it twice changes nothing the second time.
func (s *Service) Run(ctx context.Context, opts domain.Options) (domain.Report, error) {
	opts, err := s.normalize(opts)
	if err != nil {
		return domain.Report{}, err
	}
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	ctx, span := tracing.StartSpan(ctx, "reconciliation.run",
		attribute.String("correlation_id", cid),
		attribute.Bool("dry_run", opts.DryRun),
	)
	defer span.End()

	report := domain.Report{
		RunKey:    correlation.NewRunKey(),
		DryRun:    opts.DryRun,
		Since:     *opts.Since,
		StartedAt: s.clock.Now(),
		Affected:  []domain.Affected{},
	}
	log := s.log.With(
		zap.String("run_key", report.RunKey),
		zap.String("correlation_id", cid),
		zap.Bool("dry_run", opts.DryRun),
	)

	release, acquired := s.acquire(ctx, log)
	if !acquired {
		report.LockSkipped = true
		report.FinishedAt = s.clock.Now()
		s.jobMetrics.IncLockSkipped(jobName)
		log.Info("reconciliation skipped, another run holds the lock")
		return report, nil
	}
	defer release()

	run := &domain.Run{
		ID:        s.genID.Generate(),
		RunKey:    report.RunKey,
		DryRun:    opts.DryRun,
		Status:    domain.RunStatusRunning,
		Summary:   datatypes.NewJSONType(report),
		StartedAt: report.StartedAt,
	}
	if err := s.repo.InsertRun(ctx, s.db, run); err != nil {
		return domain.Report{}, err
	}
	report.RunID = run.ID

	runErr := s.scanOrders(ctx, log, opts, &report)
	if runErr == nil {
		runErr = s.sweepExpired(ctx, opts, &report)
	}

	report.FinishedAt = s.clock.Now()
	status := report.Status()
	if runErr != nil {
		report.Errors = append(report.Errors, runErr.Error())
		status = domain.RunStatusFailed
	}
	if err := s.repo.FinishRun(context.WithoutCancel(ctx), s.db, run.ID, status, report, report.FinishedAt); err != nil {
		log.Error("failed to record reconciliation run", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	s.jobMetrics.AddProcessed(jobName, "orders", report.Counts.Scanned)
	s.jobMetrics.AddProcessed(jobName, "repairs", report.Counts.Repaired)
	s.jobMetrics.AddProcessed(jobName, "retrofits", report.Counts.Retrofits)
	s.jobMetrics.AddProcessed(jobName, "expired_referrals", report.Counts.Expired)

	log.Info("reconciliation finished",
		zap.String("status", string(status)),
		zap.Int("scanned", report.Counts.Scanned),
		zap.Int("repaired", report.Counts.Repaired),
		zap.Int("already_consistent", report.Counts.AlreadyConsistent),
		zap.Int("retrofits", report.Counts.Retrofits),
		zap.Int("expired", report.Counts.Expired),
		zap.Int("failed", report.Counts.Failed),
	)
	return report, runErr
}

func (s *Service) normalize(opts domain.Options) (domain.Options, error) {
	if opts.BatchSize < 0 || opts.BatchSize > maxBatchSize {
		return opts, domain.ErrInvalidBatchSize
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.cfg.BatchSize
		if opts.BatchSize <= 0 || opts.BatchSize > maxBatchSize {
			opts.BatchSize = defaultBatchSize
		}
	}
	if opts.Since == nil {
		lookback := s.cfg.Lookback
		if lookback <= 0 {
			lookback = defaultLookback
		}
		since := s.clock.Now().Add(-lookback)
		opts.Since = &since
	}
	return opts, nil
}

// acquire takes the cross-instance lock. A lock store failure runs unguarded, since
// repairs are idempotent.
func (s *Service) acquire(ctx context.Context, log *zap.Logger) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	ttl := s.cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	token, ok, err := s.locker.TryLock(ctx, lockKey, ttl)
	if err != nil {
		log.Warn("reconciliation lock unavailable, running unguarded", zap.Error(err))
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn("failed to release reconciliation lock", zap.Error(err))
		}
	}, true
}

func (s *Service) scanOrders(ctx context.Context, log *zap.Logger, opts domain.Options, report *domain.Report) error {
	var cursor *orderdomain.PaidCursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.orders.ListPaidSince(ctx, *opts.Since, cursor, opts.BatchSize)
		if err != nil {
			return err
		}
		for _, order := range batch {
			report.Counts.Scanned++
			if err := s.reconcileOrder(ctx, opts, order, report); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				report.Counts.Failed++
				report.Affected = append(report.Affected, domain.Affected{
					OrderID: order.ID,
					Action:  domain.ActionFailed,
					Error:   err.Error(),
				})
				s.jobMetrics.IncJobError(jobName, err)
				log.Warn("order reconciliation failed",
					zap.String("order_id", order.ID.String()),
					zap.Error(err),
				)
			}
		}
		if len(batch) < opts.BatchSize {
			return nil
		}
		last := batch[len(batch)-1]
		cursor = &orderdomain.PaidCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (s *Service) reconcileOrder(ctx context.Context, opts domain.Options, order orderdomain.Order, report *domain.Report) error {
	plan, err := s.attribution.Plan(ctx, order.ID)
	if err != nil {
		return err
	}

	if plan.NeedsRepair() {
		affected := domain.Affected{
			OrderID:        order.ID,
			Action:         domain.ActionRepair,
			CommissionType: plan.Decision.Type,
			RecipientID:    &plan.Recipient.EntityID,
			AmountMinor:    plan.AmountMinor,
		}
		if !opts.DryRun {
			result, err := s.attribution.ProcessOrderPaid(ctx, order.ID)
			if err != nil {
				return err
			}
			if result.Created {
				report.Totals.CommissionPostedMinor += result.AmountMinor
			}
		} else if !plan.EntryExists {
			report.Totals.CommissionPostedMinor += plan.AmountMinor
		}
		report.Counts.Repaired++
		report.Affected = append(report.Affected, affected)
	} else {
		report.Counts.AlreadyConsistent++
	}

	return s.retrofitDiscount(ctx, opts, plan, report)
}

// retrofitDiscount credits the customer the part of the first-order discount the
// order did not receive at checkout. The order itself is never changed.
func (s *Service) retrofitDiscount(ctx context.Context, opts domain.Options, plan attribution.Plan, report *domain.Report) error {
	if !plan.Attributed || !plan.Decision.Type.FirstOrder() || plan.Customer == nil {
		return nil
	}
	shortfall := plan.EntitledDiscountMinor - plan.Order.DiscountMinor
	if shortfall <= 0 {
		return nil
	}

	customerID := plan.Customer.ID
	affected := domain.Affected{
		OrderID:        plan.Order.ID,
		Action:         domain.ActionRetrofit,
		CommissionType: plan.Decision.Type,
		CustomerID:     &customerID,
		AmountMinor:    shortfall,
	}

	if opts.DryRun {
		existing, err := s.credits.FindRetrofit(ctx, customerID, plan.Order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	} else {
		orderID := plan.Order.ID
		issued, err := s.credits.Issue(ctx, creditdomain.IssueRequest{
			CustomerID:       customerID,
			AmountMinor:      shortfall,
			Reason:           creditdomain.ReasonDiscountRetrofit,
			SourceOrderID:    &orderID,
			SourceReferralID: referralID(plan),
		})
		if err != nil {
			return err
		}
		if !issued.Created {
			return nil
		}
	}

	report.Counts.Retrofits++
	report.Totals.CreditIssuedMinor += shortfall
	report.Affected = append(report.Affected, affected)
	return nil
}

func (s *Service) sweepExpired(ctx context.Context, opts domain.Options, report *domain.Report) error {
	expired, err := s.referrals.ExpireStale(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	report.Counts.Expired = int(expired)
	return nil
}

func (s *Service) GetRun(ctx context.Context, id snowflake.ID) (*domain.Run, error) {
	run, err := s.repo.FindRun(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListRuns(ctx, s.db, limit)
}

func referralID(plan attribution.Plan) *snowflake.ID {
	if plan.Referral == nil {
		return nil
	}
	id := plan.Referral.ID
	return &id
}
