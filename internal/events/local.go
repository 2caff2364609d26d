package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/biohunter/internal/domain"
	"github.com/cespare/xxhash/v2"
)

// ErrBusClosed is returned when publishing after Stop
var ErrBusClosed = errors.New("event bus closed")

// LocalBus delivers events in-process through bounded queues drained by workers.
// Each worker owns one queue and a player's events always land on the same
// queue, so they are handled in publish order.
// With zero workers Publish dispatches synchronously.
type LocalBus struct {
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queues []chan domain.SessionRecorded
	wg     sync.WaitGroup
}

// NewLocalBus creates an in-process bus. queueSize is split across the workers.
func NewLocalBus(dispatcher *Dispatcher, workers, queueSize int, logger *slog.Logger) *LocalBus {
	if workers < 0 {
		workers = 0
	}
	perWorker := 0
	if workers > 0 && queueSize > 0 {
		perWorker = (queueSize + workers - 1) / workers
	}

	queues := make([]chan domain.SessionRecorded, workers)
	for i := range queues {
		queues[i] = make(chan domain.SessionRecorded, perWorker)
	}
	return &LocalBus{
		dispatcher: dispatcher,
		logger:     logger,
		queues:     queues,
	}
}

// Start launches one worker per queue
func (b *LocalBus) Start() {
	for _, queue := range b.queues {
		b.wg.Add(1)
		go func(queue <-chan domain.SessionRecorded) {
			defer b.wg.Done()
			for evt := range queue {
				// handler failures are logged and counted by the dispatcher
				_ = b.dispatcher.Dispatch(context.Background(), evt)
			}
		}(queue)
	}
	b.logger.Info("local event bus started", "workers", len(b.queues))
}

// Publish enqueues the event on its player's queue, blocking while that queue is full.
// Handler failures never surface here: the dispatcher has already logged and counted them.
func (b *LocalBus) Publish(ctx context.Context, evt domain.SessionRecorded) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	if len(b.queues) == 0 {
		_ = b.dispatcher.Dispatch(ctx, evt)
		return nil
	}

	select {
	case b.queues[b.shard(evt.Session.PlayerID)] <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) shard(playerID string) int {
	return int(xxhash.Sum64String(playerID) % uint64(len(b.queues)))
}

// Stop refuses new events and waits for queued ones to be handled
func (b *LocalBus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, queue := range b.queues {
		close(queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("local event bus stopped")
}
