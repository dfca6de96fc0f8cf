package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder          = "order"
	ObjectCredit         = "credit"
	ObjectReferral       = "referral"
	ObjectCommission     = "commission"
	ObjectAttribution    = "attribution"
	ObjectPartner        = "partner"
	ObjectReconciliation = "reconciliation"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionView     = "view"
	ActionCreate   = "create"
	ActionRedeem   = "redeem"
	ActionMarkPaid = "mark_paid"
	ActionApprove  = "approve"
	ActionPay      = "pay"
	ActionRun      = "run"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether a principal may perform action on object. When owner is
// set, non-admin principals must also be that entity.
type Service interface {
	Authorize(ctx context.Context, principal identity.Principal, object, action string, owner *snowflake.ID) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal identity.Principal, object, action string, owner *snowflake.ID) error {
	if principal.UserID == "" || !principal.Role.Valid() {
		return identity.ErrUnauthenticated
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", principal.UserID)
	if err := s.ensureGrouping(subject, roleSubject(principal.Role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed || (owner != nil && !principal.Owns(*owner)) {
		s.log.Info("authorization denied",
			zap.String("user_id", principal.UserID),
			zap.String("role", string(principal.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per user, following profile changes.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) >= 2 && rule[1] != roleName {
			if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
				return err
			}
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func roleSubject(role identity.Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", "*"},

		{"role:partner", ObjectAttribution, ActionView},
		{"role:partner", ObjectCommission, ActionView},
		{"role:partner", ObjectReferral, ActionCreate},
		{"role:partner", ObjectPartner, ActionView},

		{"role:influencer", ObjectAttribution, ActionView},
		{"role:influencer", ObjectCommission, ActionView},
		{"role:influencer", ObjectReferral, ActionCreate},
		{"role:influencer", ObjectPartner, ActionView},

		{"role:customer", ObjectCredit, ActionView},
		{"role:customer", ObjectCredit, ActionRedeem},
		{"role:customer", ObjectReferral, ActionCreate},
		{"role:customer", ObjectAttribution, ActionView},
		{"role:customer", ObjectCommission, ActionView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
