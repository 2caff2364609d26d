package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/memory"
	"github.com/biohunter/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetentionCleanerDeletesInBatches(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// 7 sessions older than 30 days and 2 recent ones
	for i := 0; i < 9; i++ {
		age := 40 * 24 * time.Hour
		if i >= 7 {
			age = time.Hour
		}
		session := domain.Session{
			ID:          "s" + string(rune('a'+i)),
			PlayerID:    "p1",
			Score:       10,
			SubmittedAt: now.Add(-age),
		}
		if _, err := store.RecordSession(ctx, session, "p1"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	cfg := &config.RetentionConfig{Window: 30 * 24 * time.Hour, BatchSize: 3, Interval: time.Hour}
	cleaner := NewRetentionCleaner(store, cfg, nil, testLogger())
	cleaner.SetClock(func() time.Time { return now })

	deleted, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if deleted != 7 {
		t.Fatalf("expected 7 deleted, got %d", deleted)
	}

	remaining, err := store.ListSessions(ctx, "p1", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 recent sessions to remain, got %d", len(remaining))
	}

	deleted, err = cleaner.RunOnce(ctx)
	if err != nil || deleted != 0 {
		t.Fatalf("expected nothing left to delete, got %d err=%v", deleted, err)
	}
}

type failingPurger struct{ calls int }

func (f *failingPurger) DeleteSessionsBefore(context.Context, time.Time, int) (int64, error) {
	f.calls++
	return 0, domain.ErrStoreUnavailable
}

func TestRetentionCleanerReportsStoreErrors(t *testing.T) {
	purger := &failingPurger{}
	cfg := &config.RetentionConfig{Window: time.Hour, BatchSize: 10, Interval: time.Hour}
	cleaner := NewRetentionCleaner(purger, cfg, nil, testLogger())

	_, err := cleaner.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if purger.calls != 1 {
		t.Fatalf("expected a single attempt per run, got %d", purger.calls)
	}
}

func TestRetentionCleanerStartStop(t *testing.T) {
	store := memory.NewStore()
	cfg := &config.RetentionConfig{Window: time.Hour, BatchSize: 10, Interval: 10 * time.Millisecond}
	cleaner := NewRetentionCleaner(store, cfg, nil, testLogger())

	if err := cleaner.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !cleaner.IsRunning() {
		t.Fatalf("expected running")
	}
	time.Sleep(30 * time.Millisecond)
	if err := cleaner.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if cleaner.IsRunning() {
		t.Fatalf("expected stopped")
	}
	// restart after stop
	if err := cleaner.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	_ = cleaner.Stop()
}

func TestSyncWorkerReconcileRepairsMissedProjections(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rankings := memory.NewRankingStore()
	cfg := config.DefaultConfig()
	leaderboard := service.NewLeaderboardService(rankings, store, &cfg.Leaderboard, nil, testLogger())

	// sessions committed without any projection, as if every event was lost
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		session := domain.Session{ID: "s-" + id, PlayerID: id, Score: int64(100 * (i + 1)), SubmittedAt: time.Now()}
		if _, err := store.RecordSession(ctx, session, id); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	syncCfg := &config.SyncConfig{Interval: time.Hour, BatchSize: 2}
	w := NewSyncWorker(store, rankings, leaderboard, syncCfg, testLogger())

	projected, err := w.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if projected != 5 {
		t.Fatalf("expected 5 projections, got %d", projected)
	}

	top, err := leaderboard.QueryTopN(ctx, domain.RankingGlobal, 10)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 5 || top[0].PlayerID != "e" || top[0].Score != 500 {
		t.Fatalf("unexpected ranking %+v", top)
	}
}

func TestSyncWorkerRebuildFromArchive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, e := range []domain.RankingEntry{{PlayerID: "a", Score: 5}, {PlayerID: "b", Score: 9}} {
		if err := store.UpsertRanking(ctx, "weekly", e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rankings := memory.NewRankingStore()
	w := NewSyncWorker(store, rankings, nil, &config.SyncConfig{Interval: time.Hour}, testLogger())
	if err := w.RebuildFromArchive(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	rank, err := rankings.Rank(ctx, "weekly", "b")
	if err != nil || rank != 1 {
		t.Fatalf("expected b ranked first, got %d err=%v", rank, err)
	}
	count, _ := rankings.Count(ctx, "weekly")
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}
}

func TestSyncWorkerRebuildKeepsCachedRankings(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.UpsertRanking(ctx, domain.RankingGlobal, domain.RankingEntry{PlayerID: "a", Score: 5}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// the cache already holds a newer value than the archive
	rankings := memory.NewRankingStore()
	if err := rankings.SetEntry(ctx, domain.RankingGlobal, domain.RankingEntry{PlayerID: "a", Score: 50}); err != nil {
		t.Fatalf("set entry: %v", err)
	}

	w := NewSyncWorker(store, rankings, nil, &config.SyncConfig{Interval: time.Hour}, testLogger())
	if err := w.RebuildFromArchive(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	top, err := rankings.TopN(ctx, domain.RankingGlobal, 1)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 1 || top[0].Score != 50 {
		t.Fatalf("expected cached score 50 to survive, got %+v", top)
	}
}

func TestSyncWorkerFullRebuild(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rankings := memory.NewRankingStore()
	cfg := config.DefaultConfig()
	leaderboard := service.NewLeaderboardService(rankings, store, &cfg.Leaderboard, nil, testLogger())

	if _, err := store.RecordSession(ctx, domain.Session{ID: "s1", PlayerID: "a", Score: 70, SubmittedAt: time.Now()}, "a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.UpsertRanking(ctx, "weekly", domain.RankingEntry{PlayerID: "a", Score: 7}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// stale entries with no archive or aggregate behind them
	if err := rankings.SetEntry(ctx, domain.RankingGlobal, domain.RankingEntry{PlayerID: "ghost", Score: 999}); err != nil {
		t.Fatalf("set entry: %v", err)
	}
	if err := rankings.SetEntry(ctx, "weekly", domain.RankingEntry{PlayerID: "a", Score: 1}); err != nil {
		t.Fatalf("set entry: %v", err)
	}

	w := NewSyncWorker(store, rankings, leaderboard, &config.SyncConfig{Interval: time.Hour, BatchSize: 10}, testLogger())
	projected, err := w.Rebuild(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if projected != 1 {
		t.Fatalf("expected one projection, got %d", projected)
	}

	global, _ := rankings.TopN(ctx, domain.RankingGlobal, 10)
	if len(global) != 1 || global[0].PlayerID != "a" || global[0].Score != 70 {
		t.Fatalf("unexpected global ranking %+v", global)
	}
	weekly, _ := rankings.TopN(ctx, "weekly", 10)
	if len(weekly) != 1 || weekly[0].Score != 7 {
		t.Fatalf("expected archived weekly score, got %+v", weekly)
	}
}
