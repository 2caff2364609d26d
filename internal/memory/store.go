// Package memory provides in-process stores for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/biohunter/internal/domain"
)

type playerRecord struct {
	player       domain.Player
	rewardIDs    map[string]struct{}
	achievements map[string]struct{}
}

type question struct {
	id     string
	tag    string
	prompt string
}

// Store is a mutex-guarded stand-in for the PostgreSQL repository.
// Every method holds the lock for its whole duration, so each call is atomic.
type Store struct {
	clock func() time.Time

	mu        sync.Mutex
	players   map[string]*playerRecord
	sessions  map[string]domain.Session
	questions map[string]question
	daily     map[string]domain.DailyQuestion
	answers   map[string]domain.DailyAnswer
	rankings  map[string]map[string]domain.RankingEntry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		clock:     time.Now,
		players:   make(map[string]*playerRecord),
		sessions:  make(map[string]domain.Session),
		questions: make(map[string]question),
		daily:     make(map[string]domain.DailyQuestion),
		answers:   make(map[string]domain.DailyAnswer),
		rankings:  make(map[string]map[string]domain.RankingEntry),
	}
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ensurePlayer(playerID, displayName string, createdAt time.Time) *playerRecord {
	rec, ok := s.players[playerID]
	if ok {
		return rec
	}
	rec = &playerRecord{
		player: domain.Player{
			ID:          playerID,
			DisplayName: displayName,
			CreatedAt:   createdAt,
		},
		rewardIDs:    make(map[string]struct{}),
		achievements: make(map[string]struct{}),
	}
	s.players[playerID] = rec
	return rec
}

// RecordSession stores the session and applies its delta, creating the player when absent
func (s *Store) RecordSession(ctx context.Context, session domain.Session, displayName string) (domain.PlayerAggregate, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlayerAggregate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensurePlayer(session.PlayerID, displayName, session.SubmittedAt)
	if _, replay := s.sessions[session.ID]; !replay {
		s.sessions[session.ID] = session
		rec.player.TotalScore += session.Score
		rec.player.GamesPlayed++
		last := session.SubmittedAt
		rec.player.LastPlayedAt = &last
	}
	return rec.player.Aggregate(), nil
}

// GetPlayer returns a copy of the player
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return copyPlayer(&rec.player), nil
}

// ProvisionPlayer creates the player if absent
func (s *Store) ProvisionPlayer(ctx context.Context, playerID string, req domain.ProvisionRequest) (*domain.Player, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.players[playerID]
	rec := s.ensurePlayer(playerID, req.DisplayName, s.clock().UTC())
	if !exists {
		rec.player.CurrencyBalance = req.CurrencyBalance
	}
	return copyPlayer(&rec.player), !exists, nil
}

// Credit adds currency to a player's balance
func (s *Store) Credit(ctx context.Context, playerID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	rec.player.CurrencyBalance += amount
	return rec.player.CurrencyBalance, nil
}

// DebitAndGrant debits cost when covered and records the reward
func (s *Store) DebitAndGrant(ctx context.Context, playerID string, cost int64, reward domain.Reward) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	if _, replay := rec.rewardIDs[reward.ID]; replay {
		return rec.player.CurrencyBalance, nil
	}
	if rec.player.CurrencyBalance < cost {
		return rec.player.CurrencyBalance, domain.ErrInsufficientFunds
	}

	rec.player.CurrencyBalance -= cost
	rec.rewardIDs[reward.ID] = struct{}{}
	if rec.player.Rewards == nil {
		rec.player.Rewards = make(map[string][]string)
	}
	rec.player.Rewards[reward.Category] = append(rec.player.Rewards[reward.Category], reward.ID)
	return rec.player.CurrencyBalance, nil
}

// AddAchievements adds ids not yet held and returns them
func (s *Store) AddAchievements(ctx context.Context, playerID string, achievementIDs []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}

	var added []string
	for _, id := range achievementIDs {
		if _, held := rec.achievements[id]; held {
			continue
		}
		rec.achievements[id] = struct{}{}
		rec.player.Achievements = append(rec.player.Achievements, id)
		added = append(added, id)
	}
	return added, nil
}

// ListAggregates pages through player aggregates ordered by id
func (s *Store) ListAggregates(ctx context.Context, afterID string, limit int) ([]domain.PlayerAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	aggs := make([]domain.PlayerAggregate, 0, len(ids))
	for _, id := range ids {
		rec := s.players[id]
		agg := rec.player.Aggregate()
		if agg.LastPlayedAt.IsZero() {
			agg.LastPlayedAt = rec.player.CreatedAt
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// ListSessions returns a player's sessions, newest first
func (s *Store) ListSessions(ctx context.Context, playerID string, limit int) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []domain.Session
	for _, session := range s.sessions {
		if session.PlayerID == playerID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].SubmittedAt.After(sessions[j].SubmittedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// DeleteSessionsBefore deletes at most limit of the oldest sessions submitted before cutoff
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.Session
	for _, session := range s.sessions {
		if session.SubmittedAt.Before(cutoff) {
			expired = append(expired, session)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].SubmittedAt.Before(expired[j].SubmittedAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	for _, session := range expired {
		delete(s.sessions, session.ID)
	}
	return int64(len(expired)), nil
}

func copyPlayer(p *domain.Player) *domain.Player {
	cp := *p
	cp.Rewards = make(map[string][]string, len(p.Rewards))
	for category, ids := range p.Rewards {
		cp.Rewards[category] = append([]string(nil), ids...)
	}
	cp.Achievements = append([]string{}, p.Achievements...)
	if p.LastPlayedAt != nil {
		last := *p.LastPlayedAt
		cp.LastPlayedAt = &last
	}
	return &cp
}
