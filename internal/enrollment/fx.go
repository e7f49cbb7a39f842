package enrollment

import (
	"github.com/careplix/opdwallet/internal/enrollment/repository"
	"github.com/careplix/opdwallet/internal/enrollment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
