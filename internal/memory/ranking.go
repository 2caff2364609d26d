package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/biohunter/internal/domain"
)

// UpsertRanking archives the latest entry of a player in a ranking type
func (s *Store) UpsertRanking(ctx context.Context, rankingType string, entry domain.RankingEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.rankings[rankingType]
	if !ok {
		entries = make(map[string]domain.RankingEntry)
		s.rankings[rankingType] = entries
	}
	entries[entry.PlayerID] = entry
	return nil
}

// ListRankingTypes returns every archived ranking type
func (s *Store) ListRankingTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.rankings))
	for t := range s.rankings {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// ListRankingEntries returns all archived entries of a ranking type
func (s *Store) ListRankingEntries(ctx context.Context, rankingType string) ([]domain.RankingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]domain.RankingEntry, 0, len(s.rankings[rankingType]))
	for _, e := range s.rankings[rankingType] {
		entries = append(entries, e)
	}
	return entries, nil
}

// RankingStore is an in-process ranking cache. Equal scores are ordered by
// player id descending, matching Redis reverse range order.
type RankingStore struct {
	mu       sync.RWMutex
	rankings map[string]map[string]domain.RankingEntry
}

// NewRankingStore creates an empty ranking cache
func NewRankingStore() *RankingStore {
	return &RankingStore{rankings: make(map[string]map[string]domain.RankingEntry)}
}

// SetEntry upserts a player's entry. Last writer wins.
func (r *RankingStore) SetEntry(ctx context.Context, rankingType string, entry domain.RankingEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.rankings[rankingType]
	if !ok {
		entries = make(map[string]domain.RankingEntry)
		r.rankings[rankingType] = entries
	}
	entries[entry.PlayerID] = entry
	return nil
}

// BatchSet writes many entries of one ranking type
func (r *RankingStore) BatchSet(ctx context.Context, rankingType string, entries []domain.RankingEntry) error {
	for _, e := range entries {
		if err := r.SetEntry(ctx, rankingType, e); err != nil {
			return err
		}
	}
	return nil
}

// TopN returns the n highest entries, score descending
func (r *RankingStore) TopN(ctx context.Context, rankingType string, n int) ([]domain.RankedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	sorted := make([]domain.RankingEntry, 0, len(r.rankings[rankingType]))
	for _, e := range r.rankings[rankingType] {
		sorted = append(sorted, e)
	}
	r.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].PlayerID > sorted[j].PlayerID
	})
	if n < 0 {
		n = 0
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	ranked := make([]domain.RankedEntry, len(sorted))
	for i, e := range sorted {
		ranked[i] = domain.RankedEntry{Rank: int64(i + 1), RankingEntry: e}
	}
	return ranked, nil
}

// Rank returns 1 + the number of players with a strictly greater score
func (r *RankingStore) Rank(ctx context.Context, rankingType, playerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.rankings[rankingType]
	own, ok := entries[playerID]
	if !ok {
		return 0, domain.ErrRankingNotFound
	}
	rank := int64(1)
	for _, e := range entries {
		if e.Score > own.Score {
			rank++
		}
	}
	return rank, nil
}

// Count returns the number of players in a ranking type
func (r *RankingStore) Count(ctx context.Context, rankingType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.rankings[rankingType])), nil
}

// Types returns every ranking type holding entries, sorted
func (r *RankingStore) Types(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.rankings))
	for t := range r.rankings {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// Exists reports whether a ranking type has entries
func (r *RankingStore) Exists(ctx context.Context, rankingType string) (bool, error) {
	count, err := r.Count(ctx, rankingType)
	return count > 0, err
}

// Reset clears a ranking type
func (r *RankingStore) Reset(ctx context.Context, rankingType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rankings, rankingType)
	return nil
}
