package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/events"
	"github.com/biohunter/internal/metrics"
	"github.com/google/uuid"
)

// ScoreRecorder persists finished quiz sessions and announces them
type ScoreRecorder struct {
	players   PlayerStore
	publisher events.Publisher
	metrics   *metrics.Recorder
	logger    *slog.Logger
	clock     Clock
	newID     func() string
}

// NewScoreRecorder creates a new score recorder
func NewScoreRecorder(players PlayerStore, publisher events.Publisher, m *metrics.Recorder, logger *slog.Logger) *ScoreRecorder {
	return &ScoreRecorder{
		players:   players,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

// SetClock overrides the time source
func (r *ScoreRecorder) SetClock(clock Clock) {
	r.clock = clock
}

// RecordScore stores a session and applies it to the player's aggregate in one
// atomic step, then publishes SessionRecorded. A publish failure does not fail
// the call: the session is committed and the rankings are reconciled later.
func (r *ScoreRecorder) RecordScore(ctx context.Context, playerID string, score int64, metadata map[string]interface{}) (string, error) {
	if playerID == "" {
		return "", fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if score <= 0 {
		return "", fmt.Errorf("%w: score must be positive", domain.ErrValidation)
	}

	session := domain.Session{
		ID:          r.newID(),
		PlayerID:    playerID,
		Score:       score,
		SubmittedAt: r.clock().UTC(),
		Metadata:    metadata,
	}

	agg, err := r.players.RecordSession(ctx, session, displayNameFrom(playerID, metadata))
	if err != nil {
		return "", fmt.Errorf("recording session: %w", err)
	}
	r.metrics.SessionRecorded()

	evt := domain.SessionRecorded{
		Session:    session,
		Player:     agg,
		RecordedAt: r.clock().UTC(),
	}
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.metrics.PublishFailed()
		r.logger.Error("failed to publish session event",
			"session_id", session.ID,
			"player_id", playerID,
			"error", err,
		)
	}

	return session.ID, nil
}

// displayNameFrom picks the name used when the session creates the player
func displayNameFrom(playerID string, metadata map[string]interface{}) string {
	if name, ok := metadata["displayName"].(string); ok && name != "" {
		return name
	}
	return playerID
}
