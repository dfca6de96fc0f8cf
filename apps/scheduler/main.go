// Command scheduler runs the reconciliation loop without the HTTP edge, for
// deployments that keep background jobs on their own instances.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/providers/pdf"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ratelimit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/scheduler"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Services the reconciler walks
		order.Module,
		referral.Module,
		ledger.Module,
		credit.Module,
		attribution.Module,
		pdf.Module,
		ratelimit.Module,
		reconciliation.Module,

		// No server module
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
