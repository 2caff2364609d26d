package postgres

import (
	"context"
	"fmt"

	"github.com/biohunter/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UpsertRanking stores the latest projected entry for a player in a ranking type
func (r *Repository) UpsertRanking(ctx context.Context, rankingType string, entry domain.RankingEntry) error {
	return r.do(ctx, "upsert ranking", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO rankings (ranking_type, player_id, display_name, score, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ranking_type, player_id)
			DO UPDATE SET display_name = $3, score = $4, updated_at = $5
		`, rankingType, entry.PlayerID, entry.DisplayName, entry.Score, entry.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting ranking: %w", err)
		}
		return nil
	})
}

// ListRankingTypes returns every ranking type with at least one entry
func (r *Repository) ListRankingTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.do(ctx, "list ranking types", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT DISTINCT ranking_type FROM rankings ORDER BY ranking_type`)
		if err != nil {
			return fmt.Errorf("listing ranking types: %w", err)
		}
		types, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return types, err
}

// ListRankingEntries returns all entries of a ranking type (for rebuilding the cache)
func (r *Repository) ListRankingEntries(ctx context.Context, rankingType string) ([]domain.RankingEntry, error) {
	var entries []domain.RankingEntry
	err := r.do(ctx, "list ranking entries", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT player_id, display_name, score, updated_at
			FROM rankings
			WHERE ranking_type = $1
			ORDER BY score DESC, player_id DESC
		`, rankingType)
		if err != nil {
			return fmt.Errorf("listing ranking entries: %w", err)
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var e domain.RankingEntry
			if err := rows.Scan(&e.PlayerID, &e.DisplayName, &e.Score, &e.UpdatedAt); err != nil {
				return fmt.Errorf("scanning ranking entry: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}
