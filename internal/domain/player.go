package domain

import "time"

// Player is the authoritative per-player aggregate.
type Player struct {
	ID              string              `json:"userId"`
	DisplayName     string              `json:"displayName"`
	TotalScore      int64               `json:"totalScore"`
	GamesPlayed     int64               `json:"gamesPlayed"`
	CurrencyBalance int64               `json:"currencyBalance"`
	Rewards         map[string][]string `json:"rewards"`
	Achievements    []string            `json:"achievements"`
	LastPlayedAt    *time.Time          `json:"lastPlayedAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// PlayerAggregate is the score-related snapshot produced by a committed session.
type PlayerAggregate struct {
	PlayerID     string    `json:"player_id"`
	DisplayName  string    `json:"display_name"`
	TotalScore   int64     `json:"total_score"`
	GamesPlayed  int64     `json:"games_played"`
	LastPlayedAt time.Time `json:"last_played_at"`
}

// Aggregate returns the score snapshot of the player.
func (p *Player) Aggregate() PlayerAggregate {
	agg := PlayerAggregate{
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		TotalScore:  p.TotalScore,
		GamesPlayed: p.GamesPlayed,
	}
	if p.LastPlayedAt != nil {
		agg.LastPlayedAt = *p.LastPlayedAt
	}
	return agg
}

// ProvisionRequest creates a player ahead of their first session.
type ProvisionRequest struct {
	DisplayName     string `json:"displayName"`
	CurrencyBalance int64  `json:"currencyBalance"`
}
