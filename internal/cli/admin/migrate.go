package admin

import (
	"fmt"

	"github.com/cloo-solutions/finknow/internal/config"
	"github.com/cloo-solutions/finknow/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending schema migrations to FINKNOW_DATABASE_URL. Only the pgvector backend uses the database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("FINKNOW_DATABASE_URL is required")
			}
			return database.Migrate(cfg.DatabaseURL, cfg.MigrationsSource)
		},
	}
}
