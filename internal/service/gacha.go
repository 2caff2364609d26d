package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
	"github.com/google/uuid"
)

// Draw maps a uniform sample in [0,1) to a rarity: 70% common, 25% rare, 5% legendary.
func Draw(r float64) domain.Rarity {
	switch {
	case r < 0.70:
		return domain.RarityCommon
	case r < 0.95:
		return domain.RarityRare
	default:
		return domain.RarityLegendary
	}
}

// GachaEngine spends currency on random cosmetic rewards
type GachaEngine struct {
	players PlayerStore
	cost    int64
	random  func() float64
	newID   func() string
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewGachaEngine creates an engine charging cost per pull
func NewGachaEngine(players PlayerStore, cost int64, m *metrics.Recorder, logger *slog.Logger) *GachaEngine {
	return &GachaEngine{
		players: players,
		cost:    cost,
		random:  rand.Float64,
		newID:   uuid.NewString,
		metrics: m,
		logger:  logger,
	}
}

// SetRandom overrides the uniform random source
func (g *GachaEngine) SetRandom(random func() float64) {
	g.random = random
}

// Cost returns the price of one pull
func (g *GachaEngine) Cost() int64 {
	return g.cost
}

// Pull debits one pull's cost and grants the drawn reward atomically.
// The balance never goes negative: a pull that cannot be paid grants nothing.
func (g *GachaEngine) Pull(ctx context.Context, playerID string) (domain.Reward, error) {
	if playerID == "" {
		return domain.Reward{}, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	rarity := Draw(g.random())
	reward := domain.Reward{
		ID:       fmt.Sprintf("%s_%s_%s", domain.RewardCategorySkin, rarity, g.newID()),
		Category: domain.RewardCategorySkin,
		Rarity:   rarity,
	}

	balance, err := g.players.DebitAndGrant(ctx, playerID, g.cost, reward)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			g.metrics.InsufficientFunds()
		}
		return domain.Reward{}, fmt.Errorf("pulling reward: %w", err)
	}

	g.metrics.GachaPull(string(rarity))
	g.logger.Debug("gacha pull",
		"player_id", playerID,
		"reward_id", reward.ID,
		"rarity", rarity,
		"balance", balance,
	)
	return reward, nil
}
