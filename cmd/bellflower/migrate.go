package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/bellflower/pkg/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()

			db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(db.DB, cfg.DatabaseName); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
}
