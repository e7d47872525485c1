package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/clock"
	"github.com/viewdeal/viewdeal/internal/migration"
	"github.com/viewdeal/viewdeal/internal/reconcile"
	"github.com/viewdeal/viewdeal/internal/server"
	"github.com/viewdeal/viewdeal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		reconcile.Module,
		fx.Invoke(reconcile.Run),
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
