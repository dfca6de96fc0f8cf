package graph_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/repository"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, db *gorm.DB, maxDepth int) (*graph.Resolver, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	policy := config.DefaultCommissionPolicy()
	if maxDepth > 0 {
		policy.MaxGraphDepth = maxDepth
	}
	return graph.NewResolver(graph.Params{
		DB:     db,
		Log:    zap.New(core),
		Policy: config.StaticPolicy(policy),
		Repo:   repository.Provide(),
	}), logs
}

func TestDescendantsAcrossLevels(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	partner := node.Generate()
	c1, c2, c3, c4 := node.Generate(), node.Generate(), node.Generate(), node.Generate()
	testutil.SeedPartner(t, db, partner, "partner", "studio@example.com", "ABC12345", now)
	testutil.SeedCustomer(t, db, c1, "c1@example.com", "C1CODE01", "ABC12345", now)
	testutil.SeedCustomer(t, db, c2, "c2@example.com", "C2CODE01", "C1CODE01", now.Add(time.Minute))
	testutil.SeedCustomer(t, db, c3, "c3@example.com", "C3CODE01", "C1CODE01", now.Add(2*time.Minute))
	testutil.SeedCustomer(t, db, c4, "c4@example.com", "C4CODE01", "C2CODE01", now.Add(3*time.Minute))

	resolver, logs := newResolver(t, db, 0)
	got, err := resolver.ResolveAttributedDescendants(ctx, "abc12345")
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, graph.Descendant{EntityID: c1, Email: "c1@example.com", Code: "C1CODE01", Level: 1, Path: "ABC12345 > C1CODE01"}, got[0])
	assert.Equal(t, 2, got[1].Level)
	assert.Equal(t, c2, got[1].EntityID)
	assert.Equal(t, c3, got[2].EntityID)
	assert.Equal(t, "ABC12345 > C1CODE01 > C2CODE01 > C4CODE01", got[3].Path)
	assert.Equal(t, 3, got[3].Level)
	assert.Zero(t, logs.Len())

	fromC1, err := resolver.ResolveAttributedDescendants(ctx, "C1CODE01")
	require.NoError(t, err)
	assert.Len(t, fromC1, 3)
}

func TestDescendantsOfUnknownCodeIsEmpty(t *testing.T) {
	resolver, _ := newResolver(t, testutil.OpenDB(t), 0)
	got, err := resolver.ResolveAttributedDescendants(context.Background(), "NOPE0000")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDescendantsFromInviteCodeFollowReferrer(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	partner, c1, c2 := node.Generate(), node.Generate(), node.Generate()
	testutil.SeedPartner(t, db, partner, "partner", "studio@example.com", "ABC12345", now)
	testutil.SeedCustomer(t, db, c1, "c1@example.com", "C1CODE01", "ABC12345", now)
	testutil.SeedCustomer(t, db, c2, "c2@example.com", "C2CODE01", "C1CODE01", now.Add(time.Minute))

	repo := repository.Provide()
	for _, invite := range []domain.Referral{
		{ID: node.Generate(), Code: "INVPART1", ReferrerID: partner, ReferrerKind: domain.ReferrerKindPartner, RefereeEmail: "p@example.com"},
		{ID: node.Generate(), Code: "INVCUST1", ReferrerID: c1, ReferrerKind: domain.ReferrerKindCustomer, RefereeEmail: "q@example.com"},
	} {
		invite.Status = domain.StatusInvited
		invite.ExpiresAt = now.Add(30 * 24 * time.Hour)
		invite.CreatedAt, invite.UpdatedAt = now, now
		require.NoError(t, repo.InsertReferral(ctx, db, &invite))
	}

	resolver, _ := newResolver(t, db, 0)
	byOwner, err := resolver.ResolveAttributedDescendants(ctx, "ABC12345")
	require.NoError(t, err)
	byInvite, err := resolver.ResolveAttributedDescendants(ctx, "invpart1")
	require.NoError(t, err)
	require.Len(t, byInvite, 2)
	assert.Equal(t, byOwner, byInvite)

	fromCustomerInvite, err := resolver.ResolveAttributedDescendants(ctx, "INVCUST1")
	require.NoError(t, err)
	require.Len(t, fromCustomerInvite, 1)
	assert.Equal(t, c2, fromCustomerInvite[0].EntityID)
	assert.Equal(t, "C1CODE01 > C2CODE01", fromCustomerInvite[0].Path)
}

func TestInducedCycleTerminatesWithoutRepeats(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	a, b, c := node.Generate(), node.Generate(), node.Generate()
	testutil.SeedCustomer(t, db, a, "a@example.com", "ACODE001", "CCODE001", now)
	testutil.SeedCustomer(t, db, b, "b@example.com", "BCODE001", "ACODE001", now)
	testutil.SeedCustomer(t, db, c, "c@example.com", "CCODE001", "BCODE001", now)

	resolver, logs := newResolver(t, db, 0)
	got, err := resolver.ResolveAttributedDescendants(ctx, "ACODE001")
	require.NoError(t, err)

	seen := map[snowflake.ID]bool{}
	for _, d := range got {
		assert.False(t, seen[d.EntityID], "entity %s repeated", d.EntityID)
		seen[d.EntityID] = true
	}
	assert.Len(t, got, 2)
	assert.False(t, seen[a])
	assert.Equal(t, 1, logs.FilterMessage("attribution cycle").Len())

	chain, err := resolver.ResolveReferrerChain(ctx, a)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, c, chain[0].EntityID)
	assert.Equal(t, b, chain[1].EntityID)
}

func TestDescendantsStopAtMaxDepth(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	testutil.SeedPartner(t, db, node.Generate(), "influencer", "inf@example.com", "INFLU001", now)
	parent := "INFLU001"
	for i := 0; i < 8; i++ {
		code := fmt.Sprintf("DEEP%04d", i)
		testutil.SeedCustomer(t, db, node.Generate(), fmt.Sprintf("deep%d@example.com", i), code, parent, now.Add(time.Duration(i)*time.Second))
		parent = code
	}

	resolver, logs := newResolver(t, db, 5)
	got, err := resolver.ResolveAttributedDescendants(ctx, "INFLU001")
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 5, got[4].Level)
	assert.Equal(t, 1, logs.FilterMessage("attribution depth limit reached").Len())
}

func TestReferrerChainEndsAtPartner(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	partner, c1, c2 := node.Generate(), node.Generate(), node.Generate()
	testutil.SeedPartner(t, db, partner, "partner", "studio@example.com", "ABC12345", now)
	testutil.SeedCustomer(t, db, c1, "c1@example.com", "C1CODE01", "ABC12345", now)
	testutil.SeedCustomer(t, db, c2, "c2@example.com", "C2CODE01", "C1CODE01", now)

	resolver, _ := newResolver(t, db, 0)
	chain, err := resolver.ResolveReferrerChain(ctx, c2)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, graph.ChainLink{EntityID: c1, Kind: domain.ReferrerKindCustomer, Email: "c1@example.com", Code: "C1CODE01", Level: 1}, chain[0])
	assert.Equal(t, partner, chain[1].EntityID)
	assert.Equal(t, domain.ReferrerKindPartner, chain[1].Kind)

	chain, err = resolver.ResolveReferrerChain(ctx, c1)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, partner, chain[0].EntityID)
}

func TestReferrerChainWithDanglingCodeIsRoot(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)

	orphan := node.Generate()
	testutil.SeedCustomer(t, db, orphan, "orphan@example.com", "ORPHAN01", "GONE0000", now)

	resolver, _ := newResolver(t, db, 0)
	chain, err := resolver.ResolveReferrerChain(ctx, orphan)
	require.NoError(t, err)
	assert.Empty(t, chain)

	_, err = resolver.ResolveReferrerChain(ctx, node.Generate())
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}
