package policy

import (
	"github.com/careplix/opdwallet/internal/policy/repository"
	"github.com/careplix/opdwallet/internal/policy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("policy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
