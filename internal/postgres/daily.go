package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/biohunter/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DailyQuestionPool returns question ids carrying the given tag
func (r *Repository) DailyQuestionPool(ctx context.Context, tag string, limit int) ([]string, error) {
	var ids []string
	err := r.do(ctx, "daily question pool", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT id FROM questions WHERE tag = $1 ORDER BY id LIMIT $2`, tag, limit)
		if err != nil {
			return fmt.Errorf("listing questions: %w", err)
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scanning questions: %w", err)
		}
		return nil
	})
	return ids, err
}

// AddQuestion upserts a question into the pool
func (r *Repository) AddQuestion(ctx context.Context, id, tag, prompt string) error {
	return r.do(ctx, "add question", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO questions (id, tag, prompt) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET tag = EXCLUDED.tag, prompt = EXCLUDED.prompt
		`, id, tag, prompt)
		if err != nil {
			return fmt.Errorf("adding question: %w", err)
		}
		return nil
	})
}

// GetDailyQuestion returns the question stored for date, if any
func (r *Repository) GetDailyQuestion(ctx context.Context, date string) (domain.DailyQuestion, bool, error) {
	var q domain.DailyQuestion
	var found bool
	err := r.do(ctx, "get daily question", func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx, `
			SELECT date, question_id, created_at FROM daily_questions WHERE date = $1
		`, date).Scan(&q.Date, &q.QuestionID, &q.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting daily question: %w", err)
		}
		found = true
		return nil
	})
	return q, found, err
}

// CreateDailyQuestionIfAbsent inserts q unless its date is taken, then reads back the stored row
func (r *Repository) CreateDailyQuestionIfAbsent(ctx context.Context, q domain.DailyQuestion) (domain.DailyQuestion, bool, error) {
	var stored domain.DailyQuestion
	var created bool
	err := r.do(ctx, "create daily question", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO daily_questions (date, question_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (date) DO NOTHING
		`, q.Date, q.QuestionID, q.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating daily question: %w", err)
		}
		created = tag.RowsAffected() == 1

		err = r.pool.QueryRow(ctx, `
			SELECT date, question_id, created_at FROM daily_questions WHERE date = $1
		`, q.Date).Scan(&stored.Date, &stored.QuestionID, &stored.CreatedAt)
		if err != nil {
			return fmt.Errorf("reading daily question: %w", err)
		}
		return nil
	})
	return stored, created, err
}

// HasAnswered reports whether a player answered the question of date
func (r *Repository) HasAnswered(ctx context.Context, playerID, date string) (bool, error) {
	var exists bool
	err := r.do(ctx, "has answered", func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM daily_answers WHERE player_id = $1 AND date = $2)
		`, playerID, date).Scan(&exists)
	})
	return exists, err
}

// RecordDailyAnswer stores an answer marker; the bool reports whether it was new
func (r *Repository) RecordDailyAnswer(ctx context.Context, answer domain.DailyAnswer) (bool, error) {
	var created bool
	err := r.do(ctx, "record daily answer", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO daily_answers (player_id, date, answered_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (player_id, date) DO NOTHING
		`, answer.PlayerID, answer.Date, answer.AnsweredAt)
		if err != nil {
			return fmt.Errorf("recording daily answer: %w", err)
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	return created, err
}
