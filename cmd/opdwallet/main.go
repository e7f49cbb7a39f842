package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/lock"
	"github.com/careplix/opdwallet/internal/migration"
	"github.com/careplix/opdwallet/internal/observability"
	"github.com/careplix/opdwallet/internal/server"
	"github.com/careplix/opdwallet/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Schema and taxonomy bootstrap must run before the server module
		// constructs the category registry from the categories table.
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
