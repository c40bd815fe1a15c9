package migrate

import (
	"context"
	"fmt"

	"github.com/saffronhouse/orders-backend/pkg/config"
	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/logger"
)

// AutoRunEnabled reports whether services should migrate on boot. sqlite is
// always migrated because it is only used for local runs and tests; postgres
// only in dev with the auto-migrate flag on.
func AutoRunEnabled(cfg *config.Config) bool {
	if Dialect(cfg.DB.Driver) == "sqlite3" {
		return true
	}
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev applies the embedded migrations when AutoRunEnabled allows it.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !AutoRunEnabled(cfg) {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": EmbeddedDir(cfg.DB.Driver)})
	logg.Info(ctx, "migrate.autorun.start")
	if err := RunEmbedded(ctx, sqlDB, cfg.DB.Driver, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "migrate.autorun.done")
	return nil
}
