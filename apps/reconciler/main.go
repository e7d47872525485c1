// The reconciler binary runs only the usage reconciliation loop, for
// deployments that scale the sweep separately from the API.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/viewdeal/viewdeal/internal/clock"
	"github.com/viewdeal/viewdeal/internal/config"
	"github.com/viewdeal/viewdeal/internal/contract"
	"github.com/viewdeal/viewdeal/internal/migration"
	"github.com/viewdeal/viewdeal/internal/observability"
	"github.com/viewdeal/viewdeal/internal/providers"
	"github.com/viewdeal/viewdeal/internal/reconcile"
	"github.com/viewdeal/viewdeal/internal/revenue"
	"github.com/viewdeal/viewdeal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		providers.Module,
		contract.Module,
		revenue.Module,
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
