package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/metrics"
)

// SessionPurger deletes old sessions in bounded batches
type SessionPurger interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// RetentionCleaner deletes sessions older than the retention window.
// Player aggregates are not touched: they already include every purged session.
type RetentionCleaner struct {
	periodic
	store   SessionPurger
	config  *config.RetentionConfig
	metrics *metrics.Recorder
	logger  *slog.Logger
	clock   func() time.Time
}

// NewRetentionCleaner creates a new retention cleaner
func NewRetentionCleaner(store SessionPurger, cfg *config.RetentionConfig, m *metrics.Recorder, logger *slog.Logger) *RetentionCleaner {
	c := &RetentionCleaner{
		store:   store,
		config:  cfg,
		metrics: m,
		logger:  logger,
		clock:   time.Now,
	}
	c.periodic = periodic{
		name:     "retention cleaner",
		interval: cfg.Interval,
		tick:     c.cleanupCycle,
		logger:   logger,
	}
	return c
}

// SetClock overrides the time source
func (c *RetentionCleaner) SetClock(clock func() time.Time) {
	c.clock = clock
}

func (c *RetentionCleaner) cleanupCycle(ctx context.Context) {
	if _, err := c.RunOnce(ctx); err != nil {
		// the next tick retries
		c.logger.Error("retention cleanup failed", "error", err)
	}
}

// RunOnce deletes every session older than the window, one batch at a time,
// and returns how many were deleted.
func (c *RetentionCleaner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := c.clock().UTC().Add(-c.config.Window)
	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var total int64
	for {
		deleted, err := c.store.DeleteSessionsBefore(ctx, cutoff, batchSize)
		total += deleted
		c.metrics.SessionsPurged(deleted)
		if err != nil {
			return total, fmt.Errorf("deleting sessions before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if deleted < int64(batchSize) {
			break
		}
	}

	c.logger.Info("retention cleanup completed", "deleted", total, "cutoff", cutoff)
	return total, nil
}
