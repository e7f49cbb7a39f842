package planoverride

import (
	"github.com/careplix/opdwallet/internal/planoverride/repository"
	"github.com/careplix/opdwallet/internal/planoverride/service"
	"go.uber.org/fx"
)

var Module = fx.Module("planoverride.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
