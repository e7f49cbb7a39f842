package wallet

import (
	"github.com/careplix/opdwallet/internal/wallet/repository"
	"github.com/careplix/opdwallet/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
