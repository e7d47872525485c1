package providers

import (
	"github.com/viewdeal/viewdeal/internal/config"
	"github.com/viewdeal/viewdeal/internal/providers/billing"
	"github.com/viewdeal/viewdeal/internal/providers/views"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers",
	fx.Provide(func(cfg config.Config, log *zap.Logger) billing.Provider {
		return billing.NewStripeProvider(cfg.Billing, log)
	}),
	fx.Provide(func(cfg config.Config) views.Source {
		return views.NewHTTPSource(cfg.Views)
	}),
)
