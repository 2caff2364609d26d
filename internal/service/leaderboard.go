package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
)

// Broadcaster pushes ranking changes to connected clients
type Broadcaster interface {
	SubscriberCount(rankingType string) int
	BroadcastRankingUpdate(rankingType string, entries []domain.RankedEntry, totalPlayers int64)
}

// LeaderboardService maintains the ranking projection and answers ranking queries
type LeaderboardService struct {
	rankings    RankingStore
	archive     RankingArchive
	config      *config.LeaderboardConfig
	metrics     *metrics.Recorder
	logger      *slog.Logger
	clock       Clock
	broadcaster Broadcaster
}

// NewLeaderboardService creates a new leaderboard service. archive may be nil.
func NewLeaderboardService(
	rankings RankingStore,
	archive RankingArchive,
	cfg *config.LeaderboardConfig,
	m *metrics.Recorder,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		rankings: rankings,
		archive:  archive,
		config:   cfg,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
	}
}

// SetBroadcaster sets the push channel for ranking updates
func (s *LeaderboardService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetClock overrides the time source
func (s *LeaderboardService) SetClock(clock Clock) {
	s.clock = clock
}

// ProjectRanking upserts a player's entry. Repeating it with the same values is a no-op
// and concurrent projections resolve as last writer wins.
func (s *LeaderboardService) ProjectRanking(ctx context.Context, rankingType, playerID, displayName string, score int64) error {
	if !domain.ValidRankingType(rankingType) {
		return fmt.Errorf("%w: invalid ranking type %q", domain.ErrValidation, rankingType)
	}
	if playerID == "" {
		return fmt.Errorf("%w: player id is required", domain.ErrValidation)
	}
	if displayName == "" {
		displayName = playerID
	}

	entry := domain.RankingEntry{
		PlayerID:    playerID,
		DisplayName: displayName,
		Score:       score,
		UpdatedAt:   s.clock().UTC(),
	}

	if err := s.rankings.SetEntry(ctx, rankingType, entry); err != nil {
		return fmt.Errorf("setting ranking entry: %w", err)
	}
	if s.archive != nil {
		if err := s.archive.UpsertRanking(ctx, rankingType, entry); err != nil {
			return fmt.Errorf("archiving ranking entry: %w", err)
		}
	}
	s.metrics.RankingProjected(rankingType)

	s.broadcastTop(ctx, rankingType)
	return nil
}

// broadcastTop pushes the head of a ranking to its subscribers, if any
func (s *LeaderboardService) broadcastTop(ctx context.Context, rankingType string) {
	if s.broadcaster == nil || s.broadcaster.SubscriberCount(rankingType) == 0 {
		return
	}

	entries, err := s.rankings.TopN(ctx, rankingType, s.config.BroadcastTop)
	if err != nil {
		s.logger.Warn("failed to load ranking for broadcast", "type", rankingType, "error", err)
		return
	}
	total, err := s.rankings.Count(ctx, rankingType)
	if err != nil {
		s.logger.Warn("failed to count ranking for broadcast", "type", rankingType, "error", err)
		return
	}
	s.broadcaster.BroadcastRankingUpdate(rankingType, entries, total)
}

// QueryTopN returns the n best entries of a ranking type, score descending.
// n falls back to the default limit when not positive and is capped by the max limit.
func (s *LeaderboardService) QueryTopN(ctx context.Context, rankingType string, n int) ([]domain.RankedEntry, error) {
	if !domain.ValidRankingType(rankingType) {
		return nil, fmt.Errorf("%w: invalid ranking type %q", domain.ErrValidation, rankingType)
	}

	// Validate limit
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	entries, err := s.rankings.TopN(ctx, rankingType, n)
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}
	return entries, nil
}

// QueryRank returns 1 + the number of players with a strictly greater score.
// found is false when the player has no entry in the ranking.
func (s *LeaderboardService) QueryRank(ctx context.Context, rankingType, playerID string) (int64, bool, error) {
	if !domain.ValidRankingType(rankingType) {
		return 0, false, fmt.Errorf("%w: invalid ranking type %q", domain.ErrValidation, rankingType)
	}

	rank, err := s.rankings.Rank(ctx, rankingType, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrRankingNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getting rank: %w", err)
	}
	return rank, true, nil
}

// GetCount returns the number of players in a ranking type
func (s *LeaderboardService) GetCount(ctx context.Context, rankingType string) (int64, error) {
	return s.rankings.Count(ctx, rankingType)
}

// HandleSessionRecorded projects the session owner's new total into the global ranking
func (s *LeaderboardService) HandleSessionRecorded(ctx context.Context, evt domain.SessionRecorded) error {
	agg := evt.Player
	return s.ProjectRanking(ctx, domain.RankingGlobal, agg.PlayerID, agg.DisplayName, agg.TotalScore)
}
