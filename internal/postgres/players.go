package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/biohunter/internal/domain"
	"github.com/jackc/pgx/v5"
)

// RecordSession inserts a session and applies its delta to the player aggregate in one transaction.
func (r *Repository) RecordSession(ctx context.Context, session domain.Session, displayName string) (domain.PlayerAggregate, error) {
	var metadataJSON []byte
	if session.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(session.Metadata)
		if err != nil {
			return domain.PlayerAggregate{}, fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	var agg domain.PlayerAggregate
	err := r.do(ctx, "record session", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				INSERT INTO players (id, display_name, created_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING
			`, session.PlayerID, displayName, session.SubmittedAt)
			if err != nil {
				return fmt.Errorf("ensuring player: %w", err)
			}

			tag, err := tx.Exec(ctx, `
				INSERT INTO sessions (id, player_id, score, metadata, submitted_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING
			`, session.ID, session.PlayerID, session.Score, metadataJSON, session.SubmittedAt)
			if err != nil {
				return fmt.Errorf("inserting session: %w", err)
			}

			var lastPlayed *time.Time
			agg.PlayerID = session.PlayerID
			if tag.RowsAffected() == 1 {
				err = tx.QueryRow(ctx, `
					UPDATE players
					SET total_score = total_score + $2,
						games_played = games_played + 1,
						last_played_at = $3
					WHERE id = $1
					RETURNING display_name, total_score, games_played, last_played_at
				`, session.PlayerID, session.Score, session.SubmittedAt).Scan(
					&agg.DisplayName, &agg.TotalScore, &agg.GamesPlayed, &lastPlayed,
				)
			} else {
				// replay of an already committed session
				err = tx.QueryRow(ctx, `
					SELECT display_name, total_score, games_played, last_played_at
					FROM players WHERE id = $1
				`, session.PlayerID).Scan(&agg.DisplayName, &agg.TotalScore, &agg.GamesPlayed, &lastPlayed)
			}
			if err != nil {
				return fmt.Errorf("updating aggregate: %w", err)
			}
			if lastPlayed != nil {
				agg.LastPlayedAt = *lastPlayed
			}
			return nil
		})
	})
	if err != nil {
		return domain.PlayerAggregate{}, err
	}
	return agg, nil
}

// GetPlayer loads a player with rewards and achievements
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var player *domain.Player
	err := r.do(ctx, "get player", func(ctx context.Context) error {
		p := domain.Player{
			Rewards:      make(map[string][]string),
			Achievements: []string{},
		}

		batch := &pgx.Batch{}
		batch.Queue(`
			SELECT id, display_name, total_score, games_played, currency_balance, last_played_at, created_at
			FROM players WHERE id = $1
		`, playerID)
		batch.Queue(`SELECT category, reward_id FROM player_rewards WHERE player_id = $1 ORDER BY granted_at, reward_id`, playerID)
		batch.Queue(`SELECT achievement_id FROM player_achievements WHERE player_id = $1 ORDER BY granted_at, achievement_id`, playerID)

		br := r.pool.SendBatch(ctx, batch)
		defer br.Close()

		err := br.QueryRow().Scan(
			&p.ID, &p.DisplayName, &p.TotalScore, &p.GamesPlayed, &p.CurrencyBalance, &p.LastPlayedAt, &p.CreatedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrPlayerNotFound
			}
			return fmt.Errorf("getting player: %w", err)
		}

		rows, err := br.Query()
		if err != nil {
			return fmt.Errorf("getting rewards: %w", err)
		}
		for rows.Next() {
			var category, rewardID string
			if err := rows.Scan(&category, &rewardID); err != nil {
				rows.Close()
				return fmt.Errorf("scanning reward: %w", err)
			}
			p.Rewards[category] = append(p.Rewards[category], rewardID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reading rewards: %w", err)
		}

		rows, err = br.Query()
		if err != nil {
			return fmt.Errorf("getting achievements: %w", err)
		}
		achievements, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("reading achievements: %w", err)
		}
		p.Achievements = append(p.Achievements, achievements...)

		player = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

// ProvisionPlayer creates a player if absent; the bool reports whether it was created
func (r *Repository) ProvisionPlayer(ctx context.Context, playerID string, req domain.ProvisionRequest) (*domain.Player, bool, error) {
	var created bool
	err := r.do(ctx, "provision player", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO players (id, display_name, currency_balance, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, playerID, req.DisplayName, req.CurrencyBalance, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("provisioning player: %w", err)
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	player, err := r.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, false, err
	}
	return player, created, nil
}

// Credit adds currency to a player's balance
func (r *Repository) Credit(ctx context.Context, playerID string, amount int64) (int64, error) {
	var balance int64
	err := r.do(ctx, "credit", func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx, `
			UPDATE players SET currency_balance = currency_balance + $2
			WHERE id = $1
			RETURNING currency_balance
		`, playerID, amount).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPlayerNotFound
		}
		return err
	})
	return balance, err
}

// DebitAndGrant records the reward and debits cost only when the balance covers it.
// The reward insert comes first so a replayed reward id never debits twice.
func (r *Repository) DebitAndGrant(ctx context.Context, playerID string, cost int64, reward domain.Reward) (int64, error) {
	var balance int64
	err := r.do(ctx, "debit and grant", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO player_rewards (reward_id, player_id, category, rarity, granted_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (reward_id) DO NOTHING
			`, reward.ID, playerID, reward.Category, string(reward.Rarity), time.Now().UTC())
			if err != nil {
				if isForeignKeyViolation(err) {
					return domain.ErrPlayerNotFound
				}
				return fmt.Errorf("granting reward: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return tx.QueryRow(ctx, `SELECT currency_balance FROM players WHERE id = $1`, playerID).Scan(&balance)
			}

			err = tx.QueryRow(ctx, `
				UPDATE players SET currency_balance = currency_balance - $2
				WHERE id = $1 AND currency_balance >= $2
				RETURNING currency_balance
			`, playerID, cost).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrInsufficientFunds
			}
			if err != nil {
				return fmt.Errorf("debiting balance: %w", err)
			}
			return nil
		})
	})
	return balance, err
}

// AddAchievements inserts achievements as set members and returns the newly granted ids
func (r *Repository) AddAchievements(ctx context.Context, playerID string, achievementIDs []string) ([]string, error) {
	if len(achievementIDs) == 0 {
		return nil, nil
	}

	var added []string
	err := r.do(ctx, "add achievements", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			INSERT INTO player_achievements (player_id, achievement_id, granted_at)
			SELECT $1, a, $3 FROM unnest($2::text[]) AS a
			ON CONFLICT (player_id, achievement_id) DO NOTHING
			RETURNING achievement_id
		`, playerID, achievementIDs, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("adding achievements: %w", err)
		}
		added, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrPlayerNotFound
			}
			return fmt.Errorf("adding achievements: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ListAggregates pages through player aggregates ordered by id, starting after afterID
func (r *Repository) ListAggregates(ctx context.Context, afterID string, limit int) ([]domain.PlayerAggregate, error) {
	var aggs []domain.PlayerAggregate
	err := r.do(ctx, "list aggregates", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, display_name, total_score, games_played, COALESCE(last_played_at, created_at)
			FROM players
			WHERE id > $1
			ORDER BY id
			LIMIT $2
		`, afterID, limit)
		if err != nil {
			return fmt.Errorf("listing aggregates: %w", err)
		}
		defer rows.Close()

		aggs = aggs[:0]
		for rows.Next() {
			var a domain.PlayerAggregate
			if err := rows.Scan(&a.PlayerID, &a.DisplayName, &a.TotalScore, &a.GamesPlayed, &a.LastPlayedAt); err != nil {
				return fmt.Errorf("scanning aggregate: %w", err)
			}
			aggs = append(aggs, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return aggs, nil
}
