package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/migration"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/scheduler"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/server"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
