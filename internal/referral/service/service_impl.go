package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	obsmetrics "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/metrics"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeAttempts = 5

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Policy  config.PolicySource
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  config.PolicySource
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("referral.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) RegisterPartner(ctx context.Context, req domain.RegisterPartnerRequest) (domain.Partner, error) {
	if !req.Kind.Root() {
		return domain.Partner{}, domain.ErrInvalidKind
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Partner{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Partner{}, domain.ErrInvalidName
	}

	now := s.clock.Now()
	partner := domain.Partner{
		ID:        s.genID.Generate(),
		Kind:      req.Kind,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	requested := strings.ToUpper(strings.TrimSpace(req.Code))
	if requested != "" && !validCode(requested) {
		return domain.Partner{}, domain.ErrInvalidCode
	}

	err = s.withFreshCode(ctx, requested, func(code string) error {
		partner.ReferralCode = code
		return s.repo.InsertPartner(ctx, s.db, &partner)
	})
	if err != nil {
		return domain.Partner{}, err
	}

	s.log.Info("partner registered",
		zap.String("partner_id", partner.ID.String()),
		zap.String("kind", string(partner.Kind)),
		zap.String("referral_code", partner.ReferralCode),
	)
	return partner, nil
}

// withFreshCode runs insert with a code no entity holds yet. A requested code is used as
// is and a clash reports ErrCodeTaken; generated codes are retried.
func (s *Service) withFreshCode(ctx context.Context, requested string, insert func(code string) error) error {
	if requested != "" {
		taken, err := s.repo.CodeTaken(ctx, s.db, requested)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrCodeTaken
		}
		if err := insert(requested); err != nil {
			return mapInsertErr(err)
		}
		return nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newCode()
		if err != nil {
			return err
		}
		taken, err := s.repo.CodeTaken(ctx, s.db, code)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		err = insert(code)
		if err == nil {
			return nil
		}
		if mapped := mapInsertErr(err); mapped != domain.ErrCodeTaken {
			return mapped
		}
	}
	return domain.ErrCodeGeneration
}

// mapInsertErr names the unique rule a failed insert broke.
func mapInsertErr(err error) error {
	if !db.IsDuplicateKeyErr(err) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "email") {
		return domain.ErrEmailTaken
	}
	return domain.ErrCodeTaken
}

func (s *Service) GetPartner(ctx context.Context, id snowflake.ID) (domain.Partner, error) {
	partner, err := s.repo.FindPartnerByID(ctx, s.db, id)
	if err != nil {
		return domain.Partner{}, err
	}
	if partner == nil {
		return domain.Partner{}, domain.ErrPartnerNotFound
	}
	return *partner, nil
}

func (s *Service) GetCustomer(ctx context.Context, id snowflake.ID) (domain.Customer, error) {
	customer, err := s.repo.FindCustomerByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *Service) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return s.repo.FindCustomerByEmail(ctx, s.db, email)
}

func (s *Service) ResolveCode(ctx context.Context, code string) (*domain.CodeOwner, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	return s.repo.FindOwnerByCode(ctx, s.db, code)
}

func (s *Service) IssueInvite(ctx context.Context, req domain.IssueInviteRequest) (domain.Referral, error) {
	if req.ReferrerID == 0 {
		return domain.Referral{}, domain.ErrInvalidReferrer
	}
	if !req.ReferrerKind.Valid() {
		return domain.Referral{}, domain.ErrInvalidKind
	}
	email, err := normalizeEmail(req.RefereeEmail)
	if err != nil {
		return domain.Referral{}, err
	}

	referrerEmail, err := s.referrerEmail(ctx, req.ReferrerID, req.ReferrerKind)
	if err != nil {
		return domain.Referral{}, err
	}
	if referrerEmail == email {
		return domain.Referral{}, domain.ErrSelfReferral
	}

	now := s.clock.Now()
	referral := domain.Referral{
		ID:           s.genID.Generate(),
		ReferrerID:   req.ReferrerID,
		ReferrerKind: req.ReferrerKind,
		RefereeEmail: email,
		Status:       domain.StatusInvited,
		ExpiresAt:    now.Add(s.policy.Get().ReferralTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.withFreshCode(ctx, "", func(code string) error {
		referral.Code = code
		return s.repo.InsertReferral(ctx, s.db, &referral)
	})
	if err != nil {
		return domain.Referral{}, err
	}

	s.metrics.RecordReferralTransition(ctx, string(domain.StatusInvited))
	s.log.Info("referral issued",
		zap.String("referral_id", referral.ID.String()),
		zap.String("referrer_id", req.ReferrerID.String()),
		zap.String("referrer_kind", string(req.ReferrerKind)),
	)
	return referral, nil
}

func (s *Service) referrerEmail(ctx context.Context, id snowflake.ID, kind domain.ReferrerKind) (string, error) {
	if kind == domain.ReferrerKindCustomer {
		customer, err := s.repo.FindCustomerByID(ctx, s.db, id)
		if err != nil {
			return "", err
		}
		if customer == nil {
			return "", domain.ErrReferrerNotFound
		}
		return customer.Email, nil
	}

	partner, err := s.repo.FindPartnerByID(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	if partner == nil || partner.Kind != kind {
		return "", domain.ErrReferrerNotFound
	}
	return partner.Email, nil
}

// MarkAccessed records that the invitee opened the invite link. Referrals already past
// invited are returned unchanged.
func (s *Service) MarkAccessed(ctx context.Context, code string) (domain.Referral, error) {
	referral, err := s.repo.FindReferralByCode(ctx, s.db, code)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral == nil {
		return domain.Referral{}, domain.ErrReferralNotFound
	}
	if referral.Status == domain.StatusExpired {
		return domain.Referral{}, domain.ErrReferralExpired
	}
	if referral.Status != domain.StatusInvited {
		return *referral, nil
	}

	now := s.clock.Now()
	if !now.Before(referral.ExpiresAt) {
		return domain.Referral{}, domain.ErrReferralExpired
	}
	changed, err := s.repo.MarkAccessed(ctx, s.db, referral.ID, now)
	if err != nil {
		return domain.Referral{}, err
	}
	if changed {
		s.metrics.RecordReferralTransition(ctx, string(domain.StatusAccessed))
	}

	updated, err := s.repo.FindReferralByID(ctx, s.db, referral.ID)
	if err != nil {
		return domain.Referral{}, err
	}
	if updated == nil {
		return domain.Referral{}, domain.ErrReferralNotFound
	}
	return *updated, nil
}

// Signup creates a customer. The code may be an invite code, a partner code or another
// customer's personal code; an unrecognised code is kept on the customer but attributes
// nothing.
func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (domain.SignupResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.SignupResult{}, err
	}
	existing, err := s.repo.FindCustomerByEmail(ctx, s.db, email)
	if err != nil {
		return domain.SignupResult{}, err
	}
	if existing != nil {
		return domain.SignupResult{}, domain.ErrEmailTaken
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	now := s.clock.Now()

	customer := domain.Customer{
		ID:        s.genID.Generate(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		invite *domain.Referral
		owner  *domain.CodeOwner
	)
	if code != "" {
		invite, owner, err = s.resolveSignupCode(ctx, code, email, now)
		if err != nil {
			return domain.SignupResult{}, err
		}
		if owner != nil {
			ownerCode := owner.Code
			ownerID := owner.ID
			ownerKind := owner.Kind
			customer.ReferredByCode = &ownerCode
			customer.ReferredByID = &ownerID
			customer.ReferredByKind = &ownerKind
		} else {
			customer.ReferredByCode = &code
			s.log.Warn("signup with unrecognised referral code",
				zap.String("customer_id", customer.ID.String()),
				zap.String("referral_code", code),
			)
		}
	}

	var result domain.SignupResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertCustomer(ctx, tx, &customer); err != nil {
			return err
		}
		result.Customer = customer

		switch {
		case invite != nil:
			changed, err := s.repo.MarkAccepted(ctx, tx, invite.ID, customer.ID, now)
			if err != nil {
				return err
			}
			if !changed {
				return domain.ErrReferralAlreadyUsed
			}
			accepted, err := s.repo.FindReferralByID(ctx, tx, invite.ID)
			if err != nil {
				return err
			}
			result.Referral = accepted
		case owner != nil:
			customerID := customer.ID
			referral := domain.Referral{
				ID:                s.genID.Generate(),
				ReferrerID:        owner.ID,
				ReferrerKind:      owner.Kind,
				RefereeEmail:      email,
				RefereeCustomerID: &customerID,
				Status:            domain.StatusAccepted,
				ExpiresAt:         now.Add(s.policy.Get().ReferralTTL),
				AcceptedAt:        &now,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := s.insertReferral(ctx, tx, &referral); err != nil {
				return err
			}
			result.Referral = &referral
		}
		return nil
	})
	if err != nil {
		return domain.SignupResult{}, err
	}

	if result.Referral != nil {
		s.metrics.RecordReferralTransition(ctx, string(domain.StatusAccepted))
	}
	s.log.Info("customer signed up",
		zap.String("customer_id", customer.ID.String()),
		zap.Bool("referred", result.Referral != nil),
	)
	return result, nil
}

// resolveSignupCode returns the invite the code names, if any, and the owner of the code
// the new customer is attributed to.
func (s *Service) resolveSignupCode(ctx context.Context, code, email string, now time.Time) (*domain.Referral, *domain.CodeOwner, error) {
	invite, err := s.repo.FindReferralByCode(ctx, s.db, code)
	if err != nil {
		return nil, nil, err
	}
	if invite != nil {
		switch {
		case invite.Status == domain.StatusExpired, !now.Before(invite.ExpiresAt):
			return nil, nil, domain.ErrReferralExpired
		case invite.Status == domain.StatusApplied, invite.Status == domain.StatusAccepted:
			return nil, nil, domain.ErrReferralAlreadyUsed
		case invite.RefereeEmail != email:
			return nil, nil, domain.ErrReferralEmailMismatch
		}

		owner, err := s.ownerOf(ctx, invite.ReferrerID, invite.ReferrerKind)
		if err != nil {
			return nil, nil, err
		}
		return invite, owner, nil
	}

	owner, err := s.repo.FindOwnerByCode(ctx, s.db, code)
	if err != nil {
		return nil, nil, err
	}
	if owner != nil && owner.Email == email {
		return nil, nil, domain.ErrSelfReferral
	}
	return nil, owner, nil
}

func (s *Service) ownerOf(ctx context.Context, id snowflake.ID, kind domain.ReferrerKind) (*domain.CodeOwner, error) {
	if kind == domain.ReferrerKindCustomer {
		customer, err := s.repo.FindCustomerByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, domain.ErrReferrerNotFound
		}
		return &domain.CodeOwner{ID: customer.ID, Kind: kind, Email: customer.Email, Code: customer.PersonalCode, ReferredByCode: customer.ReferredByCode}, nil
	}

	partner, err := s.repo.FindPartnerByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, domain.ErrReferrerNotFound
	}
	return &domain.CodeOwner{ID: partner.ID, Kind: partner.Kind, Email: partner.Email, Code: partner.ReferralCode}, nil
}

func (s *Service) insertCustomer(ctx context.Context, tx *gorm.DB, customer *domain.Customer) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newCode()
		if err != nil {
			return err
		}
		taken, err := s.repo.CodeTaken(ctx, tx, code)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		customer.PersonalCode = code
		err = s.repo.InsertCustomer(ctx, tx, customer)
		if err == nil {
			return nil
		}
		return mapInsertErr(err)
	}
	return domain.ErrCodeGeneration
}

func (s *Service) insertReferral(ctx context.Context, tx *gorm.DB, referral *domain.Referral) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newCode()
		if err != nil {
			return err
		}
		taken, err := s.repo.CodeTaken(ctx, tx, code)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		referral.Code = code
		return s.repo.InsertReferral(ctx, tx, referral)
	}
	return domain.ErrCodeGeneration
}

// MarkApplied records the order that consumed the referral. It reports false when the
// referral was already applied or expired.
func (s *Service) MarkApplied(ctx context.Context, req domain.MarkAppliedRequest) (bool, error) {
	if req.ReferralID == 0 || req.OrderID == 0 {
		return false, domain.ErrReferralNotFound
	}
	changed, err := s.repo.MarkApplied(ctx, s.db, req.ReferralID, req.OrderID, req.Rate, req.DiscountMinor, s.clock.Now())
	if err != nil {
		return false, err
	}
	if changed {
		s.metrics.RecordReferralTransition(ctx, string(domain.StatusApplied))
		s.log.Info("referral applied",
			zap.String("referral_id", req.ReferralID.String()),
			zap.String("order_id", req.OrderID.String()),
			zap.String("commission_rate", req.Rate.String()),
		)
	}
	return changed, nil
}

func (s *Service) FindActiveForCustomer(ctx context.Context, email string, at time.Time) (*domain.Referral, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.repo.FindActiveForEmail(ctx, s.db, normalized, at)
}

func (s *Service) ExpireStale(ctx context.Context, dryRun bool) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.db, s.clock.Now(), dryRun)
	if err != nil {
		return 0, err
	}
	if n > 0 && !dryRun {
		s.metrics.RecordReferralTransition(ctx, string(domain.StatusExpired))
		s.log.Info("referrals expired", zap.Int64("count", n))
	}
	return n, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
