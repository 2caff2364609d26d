package cli

import (
	"context"
	"fmt"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/postgres"
	"github.com/spf13/cobra"
)

// NewMigrateCmd applies database migrations and seeds the question pool.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the sample daily question pool")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrations need the %q store driver, config uses %q", config.StoreDriverPostgres, cfg.Store.Driver)
	}

	repo, err := postgres.NewRepository(&cfg.Postgres, &cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		return err
	}
	if seed {
		if err := seedQuestions(ctx, repo, cfg.Daily.PoolTag); err != nil {
			return err
		}
		logger.Info("seeded daily question pool", "count", len(sampleQuestions))
	}
	logger.Info("migrations applied")
	return nil
}
