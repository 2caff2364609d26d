package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"golang.org/x/sync/errgroup"
)

// reconcileParallelism bounds concurrent projections during a reconcile pass
const reconcileParallelism = 8

// RankingSource is the durable side of the ranking projection
type RankingSource interface {
	ListRankingTypes(ctx context.Context) ([]string, error)
	ListRankingEntries(ctx context.Context, rankingType string) ([]domain.RankingEntry, error)
	ListAggregates(ctx context.Context, afterID string, limit int) ([]domain.PlayerAggregate, error)
}

// RankingCache receives rebuilt rankings
type RankingCache interface {
	BatchSet(ctx context.Context, rankingType string, entries []domain.RankingEntry) error
	Types(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, rankingType string) (bool, error)
	Reset(ctx context.Context, rankingType string) error
}

// Projector writes one ranking entry
type Projector interface {
	ProjectRanking(ctx context.Context, rankingType, playerID, displayName string, score int64) error
}

// SyncWorker keeps the ranking cache convergent with the player aggregates.
// On startup it rebuilds the cache from the ranking archive; periodically it
// re-projects every aggregate into the global ranking so a lost event only
// delays a ranking update until the next pass.
type SyncWorker struct {
	periodic
	source    RankingSource
	cache     RankingCache
	projector Projector
	config    *config.SyncConfig
	logger    *slog.Logger
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source RankingSource,
	cache RankingCache,
	projector Projector,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	w := &SyncWorker{
		source:    source,
		cache:     cache,
		projector: projector,
		config:    cfg,
		logger:    logger,
	}
	w.periodic = periodic{
		name:     "sync worker",
		interval: cfg.Interval,
		tick:     w.reconcileCycle,
		logger:   logger,
	}
	return w
}

func (w *SyncWorker) reconcileCycle(ctx context.Context) {
	w.logger.Info("starting reconcile cycle")
	startTime := time.Now()

	projected, err := w.Reconcile(ctx)
	if err != nil {
		w.logger.Error("reconcile cycle failed", "projected", projected, "error", err)
		return
	}

	w.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"projected", projected,
	)
}

// Reconcile re-projects every player aggregate into the global ranking.
// Projection is idempotent, so running it concurrently with live events is safe.
func (w *SyncWorker) Reconcile(ctx context.Context) (int64, error) {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	var projected int64
	afterID := ""
	for {
		aggs, err := w.source.ListAggregates(ctx, afterID, batchSize)
		if err != nil {
			return projected, fmt.Errorf("listing aggregates: %w", err)
		}
		if len(aggs) == 0 {
			return projected, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reconcileParallelism)
		for _, agg := range aggs {
			agg := agg
			g.Go(func() error {
				err := w.projector.ProjectRanking(gctx, domain.RankingGlobal, agg.PlayerID, agg.DisplayName, agg.TotalScore)
				if err != nil {
					return fmt.Errorf("projecting %s: %w", agg.PlayerID, err)
				}
				atomic.AddInt64(&projected, 1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return atomic.LoadInt64(&projected), err
		}

		if len(aggs) < batchSize {
			return projected, nil
		}
		afterID = aggs[len(aggs)-1].PlayerID
	}
}

// RebuildFromArchive loads archived ranking types that are missing from the cache.
// Types already cached are left alone: the cache is written before the archive,
// so it can only be newer.
func (w *SyncWorker) RebuildFromArchive(ctx context.Context) error {
	w.logger.Info("rebuilding rankings from archive")

	types, err := w.source.ListRankingTypes(ctx)
	if err != nil {
		return fmt.Errorf("listing ranking types: %w", err)
	}

	rebuilt := 0
	for _, rankingType := range types {
		exists, err := w.cache.Exists(ctx, rankingType)
		if err != nil {
			return fmt.Errorf("checking ranking %s: %w", rankingType, err)
		}
		if exists {
			continue
		}

		entries, err := w.source.ListRankingEntries(ctx, rankingType)
		if err != nil {
			w.logger.Error("failed to load ranking from archive", "type", rankingType, "error", err)
			// Continue with other ranking types
			continue
		}
		if err := w.cache.BatchSet(ctx, rankingType, entries); err != nil {
			w.logger.Error("failed to rebuild ranking", "type", rankingType, "error", err)
			continue
		}
		rebuilt++
		w.logger.Debug("rebuilt ranking", "type", rankingType, "player_count", len(entries))
	}

	w.logger.Info("completed rebuilding rankings from archive", "archived", len(types), "rebuilt", rebuilt)
	return nil
}

// Rebuild drops every cached ranking, reloads the archive and reconciles the
// global ranking against the player aggregates.
func (w *SyncWorker) Rebuild(ctx context.Context) (int64, error) {
	cached, err := w.cache.Types(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing cached rankings: %w", err)
	}
	for _, rankingType := range cached {
		if err := w.cache.Reset(ctx, rankingType); err != nil {
			return 0, fmt.Errorf("resetting ranking %s: %w", rankingType, err)
		}
	}
	w.logger.Info("cleared cached rankings", "count", len(cached))

	if err := w.RebuildFromArchive(ctx); err != nil {
		return 0, err
	}
	return w.Reconcile(ctx)
}
