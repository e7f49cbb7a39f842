package coverage

import (
	"github.com/careplix/opdwallet/internal/coverage/repository"
	"github.com/careplix/opdwallet/internal/coverage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coverage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
