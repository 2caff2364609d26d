package service

import (
	"context"
	"time"

	"github.com/biohunter/internal/domain"
)

// PlayerStore is the slice of the persistent store that owns player aggregates.
// Every method is a single atomic operation against the store.
type PlayerStore interface {
	// RecordSession inserts the session and applies its delta to the owner's aggregate
	// in one transaction, creating the player when absent. Replaying a session id
	// returns the current aggregate without applying the delta again.
	RecordSession(ctx context.Context, session domain.Session, displayName string) (domain.PlayerAggregate, error)
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	ProvisionPlayer(ctx context.Context, playerID string, req domain.ProvisionRequest) (*domain.Player, bool, error)
	Credit(ctx context.Context, playerID string, amount int64) (int64, error)
	// DebitAndGrant debits cost only when the balance covers it and records the reward
	// in the same transaction.
	DebitAndGrant(ctx context.Context, playerID string, cost int64, reward domain.Reward) (int64, error)
	// AddAchievements inserts achievement ids as set members and returns the ones that were new.
	AddAchievements(ctx context.Context, playerID string, achievementIDs []string) ([]string, error)
}

// DailyStore holds the daily question and answer records.
type DailyStore interface {
	DailyQuestionPool(ctx context.Context, tag string, limit int) ([]string, error)
	GetDailyQuestion(ctx context.Context, date string) (domain.DailyQuestion, bool, error)
	// CreateDailyQuestionIfAbsent stores q unless a question already exists for q.Date and
	// returns whichever question is stored for that date.
	CreateDailyQuestionIfAbsent(ctx context.Context, q domain.DailyQuestion) (domain.DailyQuestion, bool, error)
	HasAnswered(ctx context.Context, playerID, date string) (bool, error)
	RecordDailyAnswer(ctx context.Context, answer domain.DailyAnswer) (bool, error)
}

// RankingStore answers ranking queries.
type RankingStore interface {
	SetEntry(ctx context.Context, rankingType string, entry domain.RankingEntry) error
	TopN(ctx context.Context, rankingType string, n int) ([]domain.RankedEntry, error)
	// Rank returns 1 + the number of entries with a strictly greater score.
	Rank(ctx context.Context, rankingType, playerID string) (int64, error)
	Count(ctx context.Context, rankingType string) (int64, error)
}

// RankingArchive durably stores ranking entries so the ranking store can be rebuilt.
type RankingArchive interface {
	UpsertRanking(ctx context.Context, rankingType string, entry domain.RankingEntry) error
}

// Clock returns the current time.
type Clock func() time.Time
