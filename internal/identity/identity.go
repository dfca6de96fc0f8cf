// Package identity maps an authenticated user id to the storefront entity it acts as.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RolePartner    Role = "partner"
	RoleInfluencer Role = "influencer"
	RoleCustomer   Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePartner, RoleInfluencer, RoleCustomer:
		return true
	default:
		return false
	}
}

// Principal is who a request acts as. EntityID is the partner or customer id; admins
// have none.
type Principal struct {
	UserID   string       `json:"user_id"`
	Role     Role         `json:"role"`
	EntityID snowflake.ID `json:"entity_id,omitempty"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Owns reports whether the principal may act on entityID's own resources.
func (p Principal) Owns(entityID snowflake.ID) bool {
	return p.IsAdmin() || (p.EntityID != 0 && p.EntityID == entityID)
}

type Profile struct {
	UserID    string `gorm:"primaryKey"`
	Role      Role   `gorm:"type:text;not null"`
	EntityID  *snowflake.ID
	CreatedAt time.Time
}

func (Profile) TableName() string { return "profiles" }

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnknownUser     = errors.New("unknown_user")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrAlreadyLinked   = errors.New("profile_already_linked")
)

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, ErrUnauthenticated
	}

	var profile Profile
	err := r.db.WithContext(ctx).Raw(
		`SELECT user_id, role, entity_id, created_at FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&profile).Error
	if err != nil {
		return Principal{}, err
	}
	if profile.UserID == "" || !profile.Role.Valid() {
		return Principal{}, ErrUnknownUser
	}

	principal := Principal{UserID: profile.UserID, Role: profile.Role}
	if profile.EntityID != nil {
		principal.EntityID = *profile.EntityID
	}
	return principal, nil
}

// Link binds a user to the entity it was registered as. Linking the same user to the
// same entity again is a no-op.
func (r *Resolver) Link(ctx context.Context, userID string, role Role, entityID snowflake.ID, now time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUnauthenticated
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	var entity *snowflake.ID
	if entityID != 0 {
		entity = &entityID
	}
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO profiles (user_id, role, entity_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		role,
		entity,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	existing, err := r.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if existing.Role != role || existing.EntityID != entityID {
		return ErrAlreadyLinked
	}
	return nil
}

var Module = fx.Module("identity",
	fx.Provide(NewResolver),
)
