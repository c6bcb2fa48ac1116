package commands

import (
	"fmt"
	"log/slog"

	"github.com/allisson/capvault/internal/database"
)

// RunMigrations applies the embedded migrations for the configured driver. It is only
// needed with VAULT_STORE=sql.
func RunMigrations(logger *slog.Logger, cfg database.Config) error {
	logger.Info("running database migrations", slog.String("driver", cfg.Driver))

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	version, err := database.Migrate(db, cfg.Driver)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}
