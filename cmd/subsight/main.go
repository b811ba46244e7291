package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/subsight/internal/clock"
	"github.com/smallbiznis/subsight/internal/config"
	"github.com/smallbiznis/subsight/internal/migration"
	"github.com/smallbiznis/subsight/internal/observability"
	"github.com/smallbiznis/subsight/internal/ratelimit"
	"github.com/smallbiznis/subsight/internal/server"
	"github.com/smallbiznis/subsight/internal/stripedata"
	"github.com/smallbiznis/subsight/internal/vault"
	"github.com/smallbiznis/subsight/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		vault.Module,
		ratelimit.Module,
		stripedata.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
