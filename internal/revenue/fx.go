package revenue

import (
	"github.com/viewdeal/viewdeal/internal/revenue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revenue",
	fx.Provide(service.NewLedger),
)
