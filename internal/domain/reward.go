package domain

// Rarity is the tier of a gacha reward
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// RewardCategorySkin is the only category the gacha pool currently grants.
const RewardCategorySkin = "skin"

// Reward is a value produced by a gacha pull.
type Reward struct {
	ID       string `json:"id"`
	Category string `json:"type"`
	Rarity   Rarity `json:"rarity"`
}
