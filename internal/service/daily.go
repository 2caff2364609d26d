package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"golang.org/x/sync/singleflight"
)

// createTimeout bounds the shared creation of a day's question
const createTimeout = 10 * time.Second

// DailyQuestionService hands out one shared question per UTC day
type DailyQuestionService struct {
	store  DailyStore
	config *config.DailyConfig
	logger *slog.Logger
	clock  Clock
	pick   func(n int) int
	sf     singleflight.Group
}

// NewDailyQuestionService creates a new daily question service
func NewDailyQuestionService(store DailyStore, cfg *config.DailyConfig, logger *slog.Logger) *DailyQuestionService {
	return &DailyQuestionService{
		store:  store,
		config: cfg,
		logger: logger,
		clock:  time.Now,
		pick:   rand.IntN,
	}
}

// SetClock overrides the time source
func (s *DailyQuestionService) SetClock(clock Clock) {
	s.clock = clock
}

// SetPicker overrides the index chooser used to select from the pool
func (s *DailyQuestionService) SetPicker(pick func(n int) int) {
	s.pick = pick
}

// Today returns the current UTC date key
func (s *DailyQuestionService) Today() string {
	return domain.DateOf(s.clock())
}

// GetOrCreateToday returns today's question, creating it on first request.
// Concurrent first requests all observe the same stored question: in-process
// callers share one creation, and across processes the store keeps the first insert.
func (s *DailyQuestionService) GetOrCreateToday(ctx context.Context) (domain.DailyQuestion, error) {
	date := s.Today()

	q, found, err := s.store.GetDailyQuestion(ctx, date)
	if err != nil {
		return domain.DailyQuestion{}, fmt.Errorf("getting daily question: %w", err)
	}
	if found {
		return q, nil
	}

	// the creation is shared by every waiter, so it must outlive any one caller
	ch := s.sf.DoChan(date, func() (interface{}, error) {
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return s.create(createCtx, date)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.DailyQuestion{}, res.Err
		}
		return res.Val.(domain.DailyQuestion), nil
	case <-ctx.Done():
		return domain.DailyQuestion{}, ctx.Err()
	}
}

func (s *DailyQuestionService) create(ctx context.Context, date string) (domain.DailyQuestion, error) {
	pool, err := s.store.DailyQuestionPool(ctx, s.config.PoolTag, s.config.PoolLimit)
	if err != nil {
		return domain.DailyQuestion{}, fmt.Errorf("loading question pool: %w", err)
	}
	if len(pool) == 0 {
		return domain.DailyQuestion{}, domain.ErrNoDailyQuestion
	}

	candidate := domain.DailyQuestion{
		Date:       date,
		QuestionID: pool[s.pick(len(pool))],
		CreatedAt:  s.clock().UTC(),
	}
	stored, created, err := s.store.CreateDailyQuestionIfAbsent(ctx, candidate)
	if err != nil {
		return domain.DailyQuestion{}, fmt.Errorf("creating daily question: %w", err)
	}
	if created {
		s.logger.Info("daily question selected", "date", date, "question_id", stored.QuestionID)
	}
	return stored, nil
}

// HasAnswered reports whether a player answered the question of date
func (s *DailyQuestionService) HasAnswered(ctx context.Context, playerID, date string) (bool, error) {
	if playerID == "" {
		return false, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	answered, err := s.store.HasAnswered(ctx, playerID, date)
	if err != nil {
		return false, fmt.Errorf("checking answer: %w", err)
	}
	return answered, nil
}

// RecordAnswer marks that a player answered today's question.
// The bool is false when the answer had already been recorded.
func (s *DailyQuestionService) RecordAnswer(ctx context.Context, playerID string) (domain.DailyAnswer, bool, error) {
	if playerID == "" {
		return domain.DailyAnswer{}, false, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	q, err := s.GetOrCreateToday(ctx)
	if err != nil {
		return domain.DailyAnswer{}, false, err
	}

	answer := domain.DailyAnswer{
		PlayerID:   playerID,
		Date:       q.Date,
		AnsweredAt: s.clock().UTC(),
	}
	created, err := s.store.RecordDailyAnswer(ctx, answer)
	if err != nil {
		return domain.DailyAnswer{}, false, fmt.Errorf("recording answer: %w", err)
	}
	return answer, created, nil
}
