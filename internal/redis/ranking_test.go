package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/biohunter/internal/domain"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RankingStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRankingStore(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func entry(playerID string, score int64) domain.RankingEntry {
	return domain.RankingEntry{
		PlayerID:    playerID,
		DisplayName: "name-" + playerID,
		Score:       score,
		UpdatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSetEntryIsLastWriterWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetEntry(ctx, "global", entry("p1", 100)); err != nil {
		t.Fatalf("set entry: %v", err)
	}
	if err := store.SetEntry(ctx, "global", entry("p1", 40)); err != nil {
		t.Fatalf("set entry: %v", err)
	}

	top, err := store.TopN(ctx, "global", 10)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("expected one entry, got %d", len(top))
	}
	if top[0].Score != 40 || top[0].DisplayName != "name-p1" {
		t.Fatalf("unexpected entry %+v", top[0])
	}
	if !top[0].UpdatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("updatedAt not round-tripped: %v", top[0].UpdatedAt)
	}
}

func TestTopNOrdersByScoreDescending(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for id, score := range map[string]int64{"a": 300, "b": 100, "c": 200, "d": 50} {
		if err := store.SetEntry(ctx, "global", entry(id, score)); err != nil {
			t.Fatalf("set entry: %v", err)
		}
	}

	top, err := store.TopN(ctx, "global", 3)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	want := []string{"a", "c", "b"}
	if len(top) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(top))
	}
	for i, id := range want {
		if top[i].PlayerID != id || top[i].Rank != int64(i+1) {
			t.Fatalf("position %d: expected %s rank %d, got %+v", i, id, i+1, top[i])
		}
	}
}

func TestTopNEmptyRanking(t *testing.T) {
	store, _ := newTestStore(t)

	top, err := store.TopN(context.Background(), "weekly", 10)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expected empty result, got %+v", top)
	}
}

func TestRankCountsStrictlyGreaterScores(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for id, score := range map[string]int64{"a": 300, "b": 200, "c": 200, "d": 100} {
		if err := store.SetEntry(ctx, "global", entry(id, score)); err != nil {
			t.Fatalf("set entry: %v", err)
		}
	}

	cases := map[string]int64{"a": 1, "b": 2, "c": 2, "d": 4}
	for id, want := range cases {
		got, err := store.Rank(ctx, "global", id)
		if err != nil {
			t.Fatalf("rank %s: %v", id, err)
		}
		if got != want {
			t.Fatalf("rank %s: expected %d, got %d", id, want, got)
		}
	}
}

func TestRankMissingPlayer(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetEntry(ctx, "global", entry("a", 10)); err != nil {
		t.Fatalf("set entry: %v", err)
	}
	_, err := store.Rank(ctx, "global", "ghost")
	if !errors.Is(err, domain.ErrRankingNotFound) {
		t.Fatalf("expected ErrRankingNotFound, got %v", err)
	}
}

func TestBatchSetAndTypes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.BatchSet(ctx, "weekly", []domain.RankingEntry{entry("a", 1), entry("b", 2)})
	if err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := store.SetEntry(ctx, "global", entry("a", 1)); err != nil {
		t.Fatalf("set entry: %v", err)
	}

	count, err := store.Count(ctx, "weekly")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}

	types, err := store.Types(ctx)
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected two ranking types, got %v", types)
	}
}

func TestResetClearsRanking(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SetEntry(ctx, "global", entry("a", 10)); err != nil {
		t.Fatalf("set entry: %v", err)
	}
	if err := store.Reset(ctx, "global"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists("ranking:global") || mr.Exists("ranking:global:entries") {
		t.Fatalf("expected ranking keys removed")
	}
	exists, err := store.Exists(ctx, "global")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected ranking to be gone")
	}
	types, err := store.Types(ctx)
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	if len(types) != 0 {
		t.Fatalf("expected reset type to be forgotten, got %v", types)
	}
}

func TestLowerRankedUpdatesLeaveHigherRanksAlone(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.BatchSet(ctx, "global", []domain.RankingEntry{
		entry("a", 900), entry("b", 700), entry("c", 500), entry("d", 300),
	}); err != nil {
		t.Fatalf("batch set: %v", err)
	}

	// d never climbs above c, the lowest of the higher-ranked players
	for _, score := range []int64{1, 499, 250, 500, 0, 42} {
		if err := store.SetEntry(ctx, "global", entry("d", score)); err != nil {
			t.Fatalf("set entry: %v", err)
		}
		for player, want := range map[string]int64{"a": 1, "b": 2, "c": 3} {
			rank, err := store.Rank(ctx, "global", player)
			if err != nil {
				t.Fatalf("rank %s: %v", player, err)
			}
			if rank != want {
				t.Fatalf("after d=%d: expected %s at rank %d, got %d", score, player, want, rank)
			}
		}
	}
}
