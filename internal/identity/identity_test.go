package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func TestResolveAndLink(t *testing.T) {
	ctx := context.Background()
	r := identity.NewResolver(testutil.OpenDB(t))

	_, err := r.Resolve(ctx, "")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	_, err = r.Resolve(ctx, "user-1")
	assert.ErrorIs(t, err, identity.ErrUnknownUser)

	partnerID := snowflake.ID(42)
	require.NoError(t, r.Link(ctx, "user-1", identity.RolePartner, partnerID, now))
	require.NoError(t, r.Link(ctx, "user-1", identity.RolePartner, partnerID, now))
	assert.ErrorIs(t, r.Link(ctx, "user-1", identity.RoleCustomer, 7, now), identity.ErrAlreadyLinked)
	assert.ErrorIs(t, r.Link(ctx, "user-2", identity.Role("owner"), 7, now), identity.ErrInvalidRole)

	p, err := r.Resolve(ctx, " user-1 ")
	require.NoError(t, err)
	assert.Equal(t, identity.RolePartner, p.Role)
	assert.Equal(t, partnerID, p.EntityID)
	assert.True(t, p.Owns(partnerID))
	assert.False(t, p.Owns(43))

	require.NoError(t, r.Link(ctx, "ops", identity.RoleAdmin, 0, now))
	admin, err := r.Resolve(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, admin.Owns(43))
	assert.Zero(t, admin.EntityID)
}
