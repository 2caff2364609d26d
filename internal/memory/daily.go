package memory

import (
	"context"
	"sort"

	"github.com/biohunter/internal/domain"
)

// AddQuestion upserts a question into the pool
func (s *Store) AddQuestion(ctx context.Context, id, tag, prompt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions[id] = question{id: id, tag: tag, prompt: prompt}
	return nil
}

// DailyQuestionPool returns question ids carrying the given tag, ordered by id
func (s *Store) DailyQuestionPool(ctx context.Context, tag string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, q := range s.questions {
		if q.tag == tag {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// GetDailyQuestion returns the question stored for date, if any
func (s *Store) GetDailyQuestion(ctx context.Context, date string) (domain.DailyQuestion, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.DailyQuestion{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.daily[date]
	return q, ok, nil
}

// CreateDailyQuestionIfAbsent stores q unless its date is taken and returns the stored question
func (s *Store) CreateDailyQuestionIfAbsent(ctx context.Context, q domain.DailyQuestion) (domain.DailyQuestion, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.DailyQuestion{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.daily[q.Date]; ok {
		return existing, false, nil
	}
	s.daily[q.Date] = q
	return q, true, nil
}

// HasAnswered reports whether a player answered the question of date
func (s *Store) HasAnswered(ctx context.Context, playerID, date string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.answers[answerKey(playerID, date)]
	return ok, nil
}

// RecordDailyAnswer stores an answer marker; the bool reports whether it was new
func (s *Store) RecordDailyAnswer(ctx context.Context, answer domain.DailyAnswer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey(answer.PlayerID, answer.Date)
	if _, ok := s.answers[key]; ok {
		return false, nil
	}
	s.answers[key] = answer
	return true, nil
}

func answerKey(playerID, date string) string {
	return playerID + "|" + date
}
