package contract

import (
	"github.com/viewdeal/viewdeal/internal/contract/repository"
	"github.com/viewdeal/viewdeal/internal/contract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contract",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
