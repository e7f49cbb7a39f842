package category

import (
	"github.com/careplix/opdwallet/internal/category/registry"
	"go.uber.org/fx"
)

var Module = fx.Module("category.registry",
	fx.Provide(registry.New),
)
