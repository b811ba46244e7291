package migration

import (
	analyticsdomain "github.com/smallbiznis/subsight/internal/analytics/domain"
	"github.com/smallbiznis/subsight/internal/config"
	connectiondomain "github.com/smallbiznis/subsight/internal/connection/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// golang-migrate is wired for postgres; other dialects are
			// dev conveniences and use the model definitions directly.
			return conn.AutoMigrate(
				&connectiondomain.StripeConnection{},
				&analyticsdomain.MetricRow{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
