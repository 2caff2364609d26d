package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/biohunter/internal/domain"
)

// DeleteSessionsBefore deletes at most limit sessions submitted before cutoff
func (r *Repository) DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var deleted int64
	err := r.do(ctx, "delete sessions", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM sessions
			WHERE id IN (
				SELECT id FROM sessions
				WHERE submitted_at < $1
				ORDER BY submitted_at
				LIMIT $2
			)
		`, cutoff, limit)
		if err != nil {
			return fmt.Errorf("deleting sessions: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

// ListSessions returns a player's sessions, newest first
func (r *Repository) ListSessions(ctx context.Context, playerID string, limit int) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.do(ctx, "list sessions", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, player_id, score, metadata, submitted_at
			FROM sessions
			WHERE player_id = $1
			ORDER BY submitted_at DESC
			LIMIT $2
		`, playerID, limit)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		defer rows.Close()

		sessions = sessions[:0]
		for rows.Next() {
			var s domain.Session
			if err := rows.Scan(&s.ID, &s.PlayerID, &s.Score, &s.Metadata, &s.SubmittedAt); err != nil {
				return fmt.Errorf("scanning session: %w", err)
			}
			sessions = append(sessions, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
