package migration

import (
	categorydomain "github.com/careplix/opdwallet/internal/category/domain"
	"github.com/careplix/opdwallet/internal/config"
	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	enrollmentdomain "github.com/careplix/opdwallet/internal/enrollment/domain"
	planoverridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	policydomain "github.com/careplix/opdwallet/internal/policy/domain"
	"github.com/careplix/opdwallet/internal/seed"
	walletdomain "github.com/careplix/opdwallet/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite deployments rely on the model schema; the
			// versioned SQL is written for postgres only.
			err := conn.AutoMigrate(
				&categorydomain.Category{},
				&policydomain.Policy{},
				&enrollmentdomain.Enrollment{},
				&planoverridedomain.PlanVersionOverride{},
				&coveragedomain.CoverageMatrixEntry{},
				&walletdomain.WalletTransaction{},
			)
			if err != nil {
				return err
			}
		}

		return seed.EnsureCategories(conn)
	}),
)
