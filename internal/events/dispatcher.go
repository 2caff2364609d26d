// Package events delivers SessionRecorded events to projection handlers.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
	"github.com/cenkalti/backoff/v4"
)

// Handler reacts to one committed session. Handlers must be idempotent:
// an event may be delivered more than once.
type Handler func(ctx context.Context, evt domain.SessionRecorded) error

// Publisher hands events to the delivery mechanism
type Publisher interface {
	Publish(ctx context.Context, evt domain.SessionRecorded) error
}

type namedHandler struct {
	name string
	fn   Handler
}

// Dispatcher fans an event out to every subscribed handler
type Dispatcher struct {
	retries   int
	timeout   time.Duration
	retryBase time.Duration
	metrics   *metrics.Recorder
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers []namedHandler
}

// NewDispatcher creates a dispatcher retrying each handler up to retries times
func NewDispatcher(retries int, timeout time.Duration, m *metrics.Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		retries:   retries,
		timeout:   timeout,
		retryBase: 100 * time.Millisecond,
		metrics:   m,
		logger:    logger,
	}
}

// Subscribe registers a handler under a name used in logs and metrics
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, fn: h})
}

// Dispatch runs every handler. A failing handler does not stop the others;
// the failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.SessionRecorded) error {
	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := d.run(ctx, h, evt); err != nil {
			d.metrics.EventHandlerFailed(h.name)
			d.logger.Error("event handler failed",
				"handler", h.name,
				"session_id", evt.Session.ID,
				"player_id", evt.Session.PlayerID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) run(ctx context.Context, h namedHandler, evt domain.SessionRecorded) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.retryBase
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.retries)), ctx)

	return backoff.Retry(func() error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if d.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		}
		defer cancel()

		err := h.fn(attemptCtx, evt)
		if errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
