package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/redis/go-redis/v9"
)

// typesKey holds the set of ranking types that have ever been written
const typesKey = "rankings:types"

// rankScript computes 1 + the number of members with a strictly greater score,
// or -1 when the member is absent. Ties share a rank.
var rankScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score then
	return -1
end
return redis.call('ZCOUNT', KEYS[1], '(' .. score, '+inf') + 1
`)

// entryMeta is the per-member payload kept beside the sorted set
type entryMeta struct {
	DisplayName string    `json:"displayName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RankingStore keeps rankings in Redis sorted sets
type RankingStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient dials Redis and verifies the connection
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRankingStore wraps a Redis client
func NewRankingStore(client *redis.Client, logger *slog.Logger) *RankingStore {
	return &RankingStore{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *RankingStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis is reachable
func (s *RankingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// scoresKey returns the sorted set key of a ranking type
func scoresKey(rankingType string) string {
	return fmt.Sprintf("ranking:%s", rankingType)
}

// entriesKey returns the hash key holding display names of a ranking type
func entriesKey(rankingType string) string {
	return fmt.Sprintf("ranking:%s:entries", rankingType)
}

// SetEntry upserts a player's score and display name. Last writer wins.
func (s *RankingStore) SetEntry(ctx context.Context, rankingType string, entry domain.RankingEntry) error {
	meta, err := json.Marshal(entryMeta{DisplayName: entry.DisplayName, UpdatedAt: entry.UpdatedAt})
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, scoresKey(rankingType), redis.Z{
			Score:  float64(entry.Score),
			Member: entry.PlayerID,
		})
		pipe.HSet(ctx, entriesKey(rankingType), entry.PlayerID, meta)
		pipe.SAdd(ctx, typesKey, rankingType)
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting ranking entry: %w", err)
	}
	return nil
}

// BatchSet writes many entries of one ranking type using pipelining
func (s *RankingStore) BatchSet(ctx context.Context, rankingType string, entries []domain.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, entry := range entries {
		meta, err := json.Marshal(entryMeta{DisplayName: entry.DisplayName, UpdatedAt: entry.UpdatedAt})
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		pipe.ZAdd(ctx, scoresKey(rankingType), redis.Z{
			Score:  float64(entry.Score),
			Member: entry.PlayerID,
		})
		pipe.HSet(ctx, entriesKey(rankingType), entry.PlayerID, meta)
	}
	pipe.SAdd(ctx, typesKey, rankingType)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting entries: %w", err)
	}
	return nil
}

// TopN returns the n highest entries, score descending. Rank is the 1-based position.
func (s *RankingStore) TopN(ctx context.Context, rankingType string, n int) ([]domain.RankedEntry, error) {
	if n <= 0 {
		return []domain.RankedEntry{}, nil
	}

	results, err := s.client.ZRevRangeWithScores(ctx, scoresKey(rankingType), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}
	if len(results) == 0 {
		return []domain.RankedEntry{}, nil
	}

	members := make([]string, len(results))
	for i, result := range results {
		members[i] = result.Member.(string)
	}
	metas, err := s.client.HMGet(ctx, entriesKey(rankingType), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting entry names: %w", err)
	}

	entries := make([]domain.RankedEntry, len(results))
	for i, result := range results {
		entry := domain.RankedEntry{
			Rank: int64(i + 1),
			RankingEntry: domain.RankingEntry{
				PlayerID:    members[i],
				DisplayName: members[i],
				Score:       int64(result.Score),
			},
		}
		if raw, ok := metas[i].(string); ok {
			var meta entryMeta
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				s.logger.Warn("corrupt ranking entry", "type", rankingType, "player_id", members[i], "error", err)
			} else {
				entry.DisplayName = meta.DisplayName
				entry.UpdatedAt = meta.UpdatedAt
			}
		}
		entries[i] = entry
	}
	return entries, nil
}

// Rank returns 1 + the number of players with a strictly greater score
func (s *RankingStore) Rank(ctx context.Context, rankingType, playerID string) (int64, error) {
	rank, err := rankScript.Run(ctx, s.client, []string{scoresKey(rankingType)}, playerID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrRankingNotFound
		}
		return 0, fmt.Errorf("getting rank: %w", err)
	}
	if rank < 0 {
		return 0, domain.ErrRankingNotFound
	}
	return rank, nil
}

// Count returns the number of players in a ranking type
func (s *RankingStore) Count(ctx context.Context, rankingType string) (int64, error) {
	count, err := s.client.ZCard(ctx, scoresKey(rankingType)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// Types returns every ranking type written so far
func (s *RankingStore) Types(ctx context.Context) ([]string, error) {
	types, err := s.client.SMembers(ctx, typesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing ranking types: %w", err)
	}
	return types, nil
}

// Exists checks if a ranking type has any entries in Redis
func (s *RankingStore) Exists(ctx context.Context, rankingType string) (bool, error) {
	exists, err := s.client.Exists(ctx, scoresKey(rankingType)).Result()
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists > 0, nil
}

// Reset clears a ranking type and forgets it
func (s *RankingStore) Reset(ctx context.Context, rankingType string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, scoresKey(rankingType))
	pipe.Del(ctx, entriesKey(rankingType))
	pipe.SRem(ctx, typesKey, rankingType)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resetting ranking: %w", err)
	}
	return nil
}
