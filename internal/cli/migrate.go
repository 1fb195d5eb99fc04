package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iliyamo/paycore/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return runMigrate(cmd.Context(), a)
		},
	}
}

func runMigrate(ctx context.Context, a *app) error {
	if err := database.Migrate(ctx, a.db); err != nil {
		return err
	}
	a.log.Info("schema applied", slog.String("db", a.cfg.DB.Name))
	return nil
}
