package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/biohunter/internal/domain"
)

// PlayerService provisions players and manages their wallet
type PlayerService struct {
	players PlayerStore
	logger  *slog.Logger
}

// NewPlayerService creates a new player service
func NewPlayerService(players PlayerStore, logger *slog.Logger) *PlayerService {
	return &PlayerService{players: players, logger: logger}
}

// Provision creates a player ahead of their first session. An existing player is
// returned untouched; created reports which case applied.
func (s *PlayerService) Provision(ctx context.Context, playerID string, req domain.ProvisionRequest) (*domain.Player, bool, error) {
	if playerID == "" {
		return nil, false, fmt.Errorf("%w: player id is required", domain.ErrValidation)
	}
	if req.CurrencyBalance < 0 {
		return nil, false, fmt.Errorf("%w: currencyBalance must not be negative", domain.ErrValidation)
	}
	if req.DisplayName == "" {
		req.DisplayName = playerID
	}

	player, created, err := s.players.ProvisionPlayer(ctx, playerID, req)
	if err != nil {
		return nil, false, fmt.Errorf("provisioning player: %w", err)
	}
	if created {
		s.logger.Info("player provisioned", "player_id", playerID, "balance", player.CurrencyBalance)
	}
	return player, created, nil
}

// Credit adds currency to a player's balance and returns the new balance
func (s *PlayerService) Credit(ctx context.Context, playerID string, amount int64) (int64, error) {
	if playerID == "" {
		return 0, fmt.Errorf("%w: player id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	balance, err := s.players.Credit(ctx, playerID, amount)
	if err != nil {
		return 0, fmt.Errorf("crediting player: %w", err)
	}
	return balance, nil
}

// Profile returns the full player record
func (s *PlayerService) Profile(ctx context.Context, playerID string) (*domain.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", domain.ErrValidation)
	}
	return s.players.GetPlayer(ctx, playerID)
}
