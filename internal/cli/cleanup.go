package cli

import (
	"context"
	"fmt"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/metrics"
	"github.com/biohunter/internal/postgres"
	"github.com/biohunter/internal/worker"
	"github.com/spf13/cobra"
)

// NewCleanupCmd runs a single retention pass, for use from an external scheduler.
func NewCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions older than the retention window once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), *configPath)
		},
	}
}

func runCleanup(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("cleanup needs the %q store driver, config uses %q", config.StoreDriverPostgres, cfg.Store.Driver)
	}

	repo, err := postgres.NewRepository(&cfg.Postgres, &cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer repo.Close()

	cleaner := worker.NewRetentionCleaner(repo, &cfg.Retention, metrics.NewRecorder(), logger)
	deleted, err := cleaner.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d sessions older than %s\n", deleted, cfg.Retention.Window)
	return nil
}
