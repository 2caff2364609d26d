package domain

import (
	"time"
)

// RankingGlobal is the ranking fed by every recorded session.
const RankingGlobal = "global"

// RankingEntry is a player's projected position source in one ranking type.
type RankingEntry struct {
	PlayerID    string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int64     `json:"score"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RankedEntry is a ranking entry together with its 1-based rank.
type RankedEntry struct {
	Rank int64 `json:"rank"`
	RankingEntry
}

// ValidRankingType reports whether a ranking type name is usable as a key.
func ValidRankingType(rankingType string) bool {
	if rankingType == "" || len(rankingType) > 64 {
		return false
	}
	for _, r := range rankingType {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
