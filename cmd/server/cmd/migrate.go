package cmd

import (
	"fmt"

	"github.com/dom/shared-calendar/internal/config"
	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply all pending database migrations and exit.

Examples:
  server migrate
  server migrate down --steps 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(postgres.RunMigrations)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *gorm.DB, logger zerolog.Logger) error {
			return postgres.RollbackMigrations(db, migrateDownSteps, logger)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateDownCmd)
}

func withDatabase(run func(db *gorm.DB, logger zerolog.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	db, err := postgres.NewConnection(cfg.DatabaseURL, config.GormLogLevel(cfg.Logging))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer postgres.Close(db)

	return run(db, logger)
}
