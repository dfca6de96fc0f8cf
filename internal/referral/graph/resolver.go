// Package graph walks the referral graph in both directions: down from a code to every
// customer it attributes, and up from a customer to the referrers above them.
package graph

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pathSeparator = " > "

// Descendant is a customer attributed to the root code, Level hops below it.
type Descendant struct {
	EntityID snowflake.ID `json:"entity_id"`
	Email    string       `json:"email"`
	Code     string       `json:"code"`
	Level    int          `json:"level"`
	Path     string       `json:"path"`
}

// ChainLink is one referrer above a customer. Level 1 is the immediate referrer.
type ChainLink struct {
	EntityID snowflake.ID        `json:"entity_id"`
	Kind     domain.ReferrerKind `json:"kind"`
	Email    string              `json:"email"`
	Code     string              `json:"code"`
	Level    int                 `json:"level"`
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Policy config.PolicySource
	Repo   domain.Repository
}

type Resolver struct {
	db     *gorm.DB
	log    *zap.Logger
	policy config.PolicySource
	repo   domain.Repository
}

func NewResolver(p Params) *Resolver {
	return &Resolver{
		db:     p.DB,
		log:    p.Log.Named("referral.graph"),
		policy: p.Policy,
		repo:   p.Repo,
	}
}

func (r *Resolver) maxDepth() int {
	depth := r.policy.Get().MaxGraphDepth
	if depth <= 0 {
		return config.DefaultCommissionPolicy().MaxGraphDepth
	}
	return depth
}

// ResolveAttributedDescendants lists every customer reachable from rootCode, breadth
// first. rootCode may be a personal code, a partner code or an invite code. Each level
// costs one lookup. An entity is never returned twice; a revisit is logged as an
// attribution cycle and that branch is cut.
func (r *Resolver) ResolveAttributedDescendants(ctx context.Context, rootCode string) ([]Descendant, error) {
	rootCode = strings.ToUpper(strings.TrimSpace(rootCode))
	if rootCode == "" {
		return nil, nil
	}

	root, err := r.repo.FindOwnerByCode(ctx, r.db, rootCode)
	if err != nil {
		return nil, err
	}
	if root == nil {
		// An issued invite code stands for its referrer.
		root, err = r.inviteOwner(ctx, rootCode)
		if err != nil {
			return nil, err
		}
		if root == nil {
			return []Descendant{}, nil
		}
		rootCode = root.Code
	}

	visited := map[snowflake.ID]struct{}{}
	if root.Kind == domain.ReferrerKindCustomer {
		visited[root.ID] = struct{}{}
	}

	// frontier maps a code to the path that reached it.
	frontier := map[string]string{rootCode: rootCode}
	descendants := []Descendant{}
	maxDepth := r.maxDepth()

	for level := 1; level <= maxDepth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		codes := make([]string, 0, len(frontier))
		for code := range frontier {
			codes = append(codes, code)
		}
		children, err := r.repo.ListReferredBy(ctx, r.db, codes)
		if err != nil {
			return nil, err
		}

		next := make(map[string]string, len(children))
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				r.log.Warn("attribution cycle",
					zap.String("root_code", rootCode),
					zap.String("entity_id", child.ID.String()),
					zap.Int("level", level),
				)
				continue
			}
			visited[child.ID] = struct{}{}

			parentPath := frontier[derefCode(child.ReferredByCode)]
			path := parentPath + pathSeparator + child.PersonalCode
			descendants = append(descendants, Descendant{
				EntityID: child.ID,
				Email:    child.Email,
				Code:     child.PersonalCode,
				Level:    level,
				Path:     path,
			})
			next[child.PersonalCode] = path
		}
		frontier = next
	}

	if len(frontier) > 0 {
		r.log.Warn("attribution depth limit reached",
			zap.String("root_code", rootCode),
			zap.Int("max_depth", maxDepth),
		)
	}
	return descendants, nil
}

// ResolveReferrerChain walks up from a customer through the codes they were referred by.
// The walk ends at a partner, a code nobody owns, a repeated entity or the depth limit.
func (r *Resolver) ResolveReferrerChain(ctx context.Context, customerID snowflake.ID) ([]ChainLink, error) {
	customer, err := r.repo.FindCustomerByID(ctx, r.db, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.ErrCustomerNotFound
	}

	visited := map[snowflake.ID]struct{}{customer.ID: {}}
	chain := []ChainLink{}
	code := derefCode(customer.ReferredByCode)
	maxDepth := r.maxDepth()

	for level := 1; level <= maxDepth && code != ""; level++ {
		owner, err := r.repo.FindOwnerByCode(ctx, r.db, code)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			r.log.Debug("dangling referral code",
				zap.String("customer_id", customerID.String()),
				zap.String("referral_code", code),
			)
			break
		}
		if _, seen := visited[owner.ID]; seen {
			r.log.Warn("attribution cycle",
				zap.String("customer_id", customerID.String()),
				zap.String("entity_id", owner.ID.String()),
				zap.Int("level", level),
			)
			break
		}
		visited[owner.ID] = struct{}{}

		chain = append(chain, ChainLink{
			EntityID: owner.ID,
			Kind:     owner.Kind,
			Email:    owner.Email,
			Code:     owner.Code,
			Level:    level,
		})
		if owner.Kind.Root() {
			break
		}
		code = derefCode(owner.ReferredByCode)
	}
	return chain, nil
}

func derefCode(code *string) string {
	if code == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*code))
}

func (r *Resolver) inviteOwner(ctx context.Context, code string) (*domain.CodeOwner, error) {
	invite, err := r.repo.FindReferralByCode(ctx, r.db, code)
	if err != nil || invite == nil {
		return nil, err
	}

	if invite.ReferrerKind == domain.ReferrerKindCustomer {
		customer, err := r.repo.FindCustomerByID(ctx, r.db, invite.ReferrerID)
		if err != nil || customer == nil {
			return nil, err
		}
		return &domain.CodeOwner{
			ID:             customer.ID,
			Kind:           domain.ReferrerKindCustomer,
			Email:          customer.Email,
			Code:           customer.PersonalCode,
			ReferredByCode: customer.ReferredByCode,
		}, nil
	}

	partner, err := r.repo.FindPartnerByID(ctx, r.db, invite.ReferrerID)
	if err != nil || partner == nil {
		return nil, err
	}
	return &domain.CodeOwner{
		ID:    partner.ID,
		Kind:  partner.Kind,
		Email: partner.Email,
		Code:  partner.ReferralCode,
	}, nil
}
