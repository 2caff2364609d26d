package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
)

// AchievementRule grants ID when Met holds for an aggregate
type AchievementRule struct {
	ID  string
	Met func(agg domain.PlayerAggregate) bool
}

// DefaultAchievementRules are evaluated in order.
// The games-played rules match exact counts, so they fire only on the session
// that reaches the count.
var DefaultAchievementRules = []AchievementRule{
	{ID: "first_10_games", Met: func(agg domain.PlayerAggregate) bool { return agg.GamesPlayed == 10 }},
	{ID: "century_player", Met: func(agg domain.PlayerAggregate) bool { return agg.GamesPlayed == 100 }},
	{ID: "score_master", Met: func(agg domain.PlayerAggregate) bool { return agg.TotalScore >= 10000 }},
}

// AchievementEvaluator grants achievements from aggregate snapshots
type AchievementEvaluator struct {
	players PlayerStore
	rules   []AchievementRule
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewAchievementEvaluator creates an evaluator with the default rules
func NewAchievementEvaluator(players PlayerStore, m *metrics.Recorder, logger *slog.Logger) *AchievementEvaluator {
	return &AchievementEvaluator{
		players: players,
		rules:   DefaultAchievementRules,
		metrics: m,
		logger:  logger,
	}
}

// Evaluate returns the ids of every rule satisfied by agg, in rule order
func (e *AchievementEvaluator) Evaluate(agg domain.PlayerAggregate) []string {
	var ids []string
	for _, rule := range e.rules {
		if rule.Met(agg) {
			ids = append(ids, rule.ID)
		}
	}
	return ids
}

// Apply adds the satisfied achievements to the player and returns those that were new
func (e *AchievementEvaluator) Apply(ctx context.Context, agg domain.PlayerAggregate) ([]string, error) {
	ids := e.Evaluate(agg)
	if len(ids) == 0 {
		return nil, nil
	}

	added, err := e.players.AddAchievements(ctx, agg.PlayerID, ids)
	if err != nil {
		return nil, fmt.Errorf("adding achievements: %w", err)
	}
	for _, id := range added {
		e.metrics.AchievementGranted(id)
		e.logger.Info("achievement granted", "player_id", agg.PlayerID, "achievement", id)
	}
	return added, nil
}

// HandleSessionRecorded evaluates the aggregate carried by the event
func (e *AchievementEvaluator) HandleSessionRecorded(ctx context.Context, evt domain.SessionRecorded) error {
	_, err := e.Apply(ctx, evt.Player)
	return err
}
