package migration

import (
	"strings"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			log.Warn("schema migrations skipped, only postgres is migrated automatically",
				zap.String("db_type", cfg.DBType),
			)
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
