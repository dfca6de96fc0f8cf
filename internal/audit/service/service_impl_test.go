package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/audit/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/audit/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/audit/service"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	obscontext "github.com/pawtraits-dev/pawtraits-sub014/internal/observability/context"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (auditdomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk, db
}

func strPtr(v string) *string { return &v }

func TestAuditLogRecordsActorAndRequestID(t *testing.T) {
	svc, _, db := newService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "ops")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	err := svc.AuditLog(ctx, "commission.approved", "commission", strPtr(" 991 "), map[string]any{"amount": 500, "": "dropped"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.CountRows(t, db, `SELECT COUNT(*) FROM audit_logs WHERE action = ?`, "commission.approved"))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "ops", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "991", *entry.TargetID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.NotContains(t, entry.Metadata, "")
	assert.False(t, resp.HasMore)
}

func TestAuditLogWithoutActorIsSystem(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.AuditLog(ctx, "reconciliation.run", "", nil, nil))
	assert.ErrorIs(t, svc.AuditLog(ctx, "  ", "commission", nil, nil), auditdomain.ErrInvalidAction)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk, _ := newService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "ops")

	for _, action := range []string{"partner.registered", "commission.approved", "commission.paid"} {
		require.NoError(t, svc.AuditLog(ctx, action, "commission", nil, nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.Equal(t, "commission.paid", first.AuditLogs[0].Action)
	assert.Equal(t, "commission.approved", first.AuditLogs[1].Action)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.Equal(t, "partner.registered", second.AuditLogs[0].Action)
	assert.False(t, second.HasMore)

	filtered, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "commission.paid"})
	require.NoError(t, err)
	assert.Len(t, filtered.AuditLogs, 1)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
