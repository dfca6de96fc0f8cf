// Package stack wires the domain services over an in-memory store the way the
// application does, for tests that cross package boundaries.
package stack

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/commission/rate"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	creditdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/domain"
	creditrepo "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/repository"
	creditservice "github.com/pawtraits-dev/pawtraits-sub014/internal/credit/service"
	ledgerdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/domain"
	ledgerrepo "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/repository"
	ledgerservice "github.com/pawtraits-dev/pawtraits-sub014/internal/ledger/service"
	orderdomain "github.com/pawtraits-dev/pawtraits-sub014/internal/order/domain"
	orderrepo "github.com/pawtraits-dev/pawtraits-sub014/internal/order/repository"
	orderservice "github.com/pawtraits-dev/pawtraits-sub014/internal/order/service"
	referraldomain "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral/graph"
	referralrepo "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/repository"
	referralservice "github.com/pawtraits-dev/pawtraits-sub014/internal/referral/service"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Start = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type Stack struct {
	DB          *gorm.DB
	Node        *snowflake.Node
	Clock       *clock.FakeClock
	Policy      config.PolicySource
	Orders      orderdomain.Service
	Referrals   referraldomain.Service
	Graph       *graph.Resolver
	Ledger      ledgerdomain.Service
	Credits     creditdomain.Service
	Attribution attribution.Service
}

func New(t testing.TB) *Stack {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(Start)
	policy := config.StaticPolicy(config.DefaultCommissionPolicy())
	log := zap.NewNop()

	referralRepo := referralrepo.Provide()
	creditRepo := creditrepo.Provide()

	s := &Stack{DB: db, Node: node, Clock: clk, Policy: policy}
	s.Orders = orderservice.New(orderservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: orderrepo.Provide()})
	s.Referrals = referralservice.New(referralservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Policy: policy, Repo: referralRepo})
	s.Graph = graph.NewResolver(graph.Params{DB: db, Log: log, Policy: policy, Repo: referralRepo})
	s.Ledger = ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(), CreditRepo: creditRepo})
	s.Credits = creditservice.New(creditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: creditRepo})
	s.Attribution = attribution.New(attribution.Params{
		Log:       log,
		Clock:     clk,
		Orders:    s.Orders,
		Referrals: s.Referrals,
		Graph:     s.Graph,
		Rates:     rate.NewEngine(policy),
		Ledger:    s.Ledger,
	})
	return s
}
