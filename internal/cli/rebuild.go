package cli

import (
	"context"
	"fmt"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/metrics"
	"github.com/biohunter/internal/service"
	"github.com/biohunter/internal/worker"
	"github.com/spf13/cobra"
)

// NewRebuildCmd drops the cached rankings and rebuilds them from Postgres.
func NewRebuildCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the Redis rankings from the archive and player aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd.Context(), *configPath)
		},
	}
}

func runRebuild(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("rebuild needs the %q store driver, config uses %q", config.StoreDriverPostgres, cfg.Store.Driver)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	leaderboard := service.NewLeaderboardService(st.rankings, st.persistent, &cfg.Leaderboard, metrics.NewRecorder(), logger)
	syncWorker := worker.NewSyncWorker(st.persistent, st.rankings, leaderboard, &cfg.Sync, logger)

	projected, err := syncWorker.Rebuild(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("rebuilt rankings, %d players reconciled into the global ranking\n", projected)
	return nil
}
