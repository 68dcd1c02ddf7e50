package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/database"
	"github.com/iliyamo/campus-events/internal/repository/mongostore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long: `Create the MySQL tables (STORE_DRIVER=mysql) or the MongoDB indexes
(STORE_DRIVER=mongo). Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func runMigrate() error {
	cfg, logger := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
	case config.DriverMongo:
		ms, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer ms.Close(context.Background())
		if err := ms.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
	default:
		logger.Info().Str("driver", cfg.StoreDriver).Msg("nothing to migrate")
		return nil
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("schema ready")
	return nil
}
