package migration

import (
	billingdomain "github.com/zerocost/portal/internal/billing/domain"
	"github.com/zerocost/portal/internal/config"
	entitlementdomain "github.com/zerocost/portal/internal/entitlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations run against postgres. Other dialects
		// (sqlite for local hacking, mysql) get the gorm schema sync.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&entitlementdomain.Record{},
				&billingdomain.WebhookEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
