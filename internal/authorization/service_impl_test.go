package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/identity"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(testutil.OpenDB(t))
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func ownerRef(id snowflake.ID) *snowflake.ID { return &id }

func TestAuthorizeRolePolicies(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	admin := identity.Principal{UserID: "ops", Role: identity.RoleAdmin}
	partner := identity.Principal{UserID: "p-1", Role: identity.RolePartner, EntityID: 10}
	customer := identity.Principal{UserID: "c-1", Role: identity.RoleCustomer, EntityID: 20}

	cases := []struct {
		name      string
		principal identity.Principal
		object    string
		action    string
		owner     *snowflake.ID
		wantErr   error
	}{
		{"admin runs reconciliation", admin, ObjectReconciliation, ActionRun, nil, nil},
		{"admin views any balance", admin, ObjectCredit, ActionView, ownerRef(20), nil},
		{"partner views own commissions", partner, ObjectCommission, ActionView, ownerRef(10), nil},
		{"partner cannot view other commissions", partner, ObjectCommission, ActionView, ownerRef(11), ErrForbidden},
		{"partner cannot approve", partner, ObjectCommission, ActionApprove, nil, ErrForbidden},
		{"customer redeems own credit", customer, ObjectCredit, ActionRedeem, ownerRef(20), nil},
		{"customer cannot redeem for another", customer, ObjectCredit, ActionRedeem, ownerRef(21), ErrForbidden},
		{"customer cannot mark orders paid", customer, ObjectOrder, ActionMarkPaid, nil, ErrForbidden},
		{"anonymous", identity.Principal{}, ObjectCredit, ActionView, nil, identity.ErrUnauthenticated},
		{"empty object", admin, " ", ActionView, nil, ErrInvalidObject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.principal, tc.object, tc.action, tc.owner)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user := identity.Principal{UserID: "u-1", Role: identity.RoleAdmin}
	require.NoError(t, svc.Authorize(ctx, user, ObjectReconciliation, ActionRun, nil))

	user.Role = identity.RoleCustomer
	user.EntityID = 5
	assert.ErrorIs(t, svc.Authorize(ctx, user, ObjectReconciliation, ActionRun, nil), ErrForbidden)
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	_, err = NewEnforcer(db)
	require.NoError(t, err)

	assert.Equal(t, int64(14), testutil.CountRows(t, db, `SELECT COUNT(*) FROM casbin_rule WHERE ptype = 'p'`))
}
