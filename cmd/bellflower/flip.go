package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
	"github.com/Ramsey-B/bellflower/pkg/scheduler"
)

// flipImportanceCmd runs a single importance flip, for deployments that schedule it externally.
func flipImportanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flip-importance",
		Short: "Flip is_important on every notification whose importance change time has passed",
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

			store := repositories.NewNotificationRepository(database.NewDatabaseInstance(db, logger), logger)
			flipped, err := scheduler.NewScheduler(store, nil, cfg.Scheduler(), logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flipped %d notifications\n", flipped)
			return nil
		},
	}
}
