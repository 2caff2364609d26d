package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent(id string) domain.SessionRecorded {
	return domain.SessionRecorded{
		Session: domain.Session{ID: id, PlayerID: "p1", Score: 10},
		Player:  domain.PlayerAggregate{PlayerID: "p1", TotalScore: 10, GamesPlayed: 1},
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	d := NewDispatcher(3, time.Second, nil, testLogger())
	d.retryBase = time.Millisecond

	var calls int32
	d.Subscribe("flaky", func(ctx context.Context, evt domain.SessionRecorded) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if err := d.Dispatch(context.Background(), sampleEvent("s1")); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestDispatchIsolatesFailingHandler(t *testing.T) {
	rec := metrics.NewRecorder()
	d := NewDispatcher(1, time.Second, rec, testLogger())
	d.retryBase = time.Millisecond

	var delivered int32
	d.Subscribe("broken", func(ctx context.Context, evt domain.SessionRecorded) error {
		return errors.New("always fails")
	})
	d.Subscribe("healthy", func(ctx context.Context, evt domain.SessionRecorded) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	err := d.Dispatch(context.Background(), sampleEvent("s1"))
	if err == nil {
		t.Fatalf("expected joined error from broken handler")
	}
	if atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("healthy handler should still run")
	}

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var failures float64
	for _, mf := range families {
		if mf.GetName() != "biohunter_event_handler_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			failures += m.GetCounter().GetValue()
		}
	}
	if failures != 1 {
		t.Fatalf("expected one recorded failure, got %v", failures)
	}
}

func TestLocalBusDeliversAllQueuedEventsOnStop(t *testing.T) {
	d := NewDispatcher(0, time.Second, nil, testLogger())

	var mu sync.Mutex
	seen := map[string]bool{}
	d.Subscribe("collect", func(ctx context.Context, evt domain.SessionRecorded) error {
		mu.Lock()
		seen[evt.Session.ID] = true
		mu.Unlock()
		return nil
	})

	bus := NewLocalBus(d, 2, 16, testLogger())
	bus.Start()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := bus.Publish(context.Background(), sampleEvent(id)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	bus.Stop()

	if len(seen) != 4 {
		t.Fatalf("expected 4 delivered events, got %d", len(seen))
	}
	if err := bus.Publish(context.Background(), sampleEvent("late")); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestLocalBusSynchronousWithoutWorkers(t *testing.T) {
	d := NewDispatcher(0, time.Second, nil, testLogger())
	var delivered int32
	d.Subscribe("count", func(ctx context.Context, evt domain.SessionRecorded) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	bus := NewLocalBus(d, 0, 0, testLogger())
	bus.Start()
	defer bus.Stop()

	if err := bus.Publish(context.Background(), sampleEvent("s1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("expected synchronous delivery")
	}
}

func TestLocalBusKeepsPerPlayerOrder(t *testing.T) {
	d := NewDispatcher(0, time.Second, nil, testLogger())

	var mu sync.Mutex
	latest := map[string]int64{}
	d.Subscribe("project", func(ctx context.Context, evt domain.SessionRecorded) error {
		// the first session of a player is slow to project
		if evt.Player.GamesPlayed == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		latest[evt.Player.PlayerID] = evt.Player.TotalScore
		mu.Unlock()
		return nil
	})

	bus := NewLocalBus(d, 4, 64, testLogger())
	bus.Start()

	for _, player := range []string{"p1", "p2", "p3"} {
		first := domain.SessionRecorded{
			Session: domain.Session{ID: player + "-s1", PlayerID: player, Score: 500},
			Player:  domain.PlayerAggregate{PlayerID: player, TotalScore: 500, GamesPlayed: 1},
		}
		second := domain.SessionRecorded{
			Session: domain.Session{ID: player + "-s2", PlayerID: player, Score: 1200},
			Player:  domain.PlayerAggregate{PlayerID: player, TotalScore: 1700, GamesPlayed: 2},
		}
		for _, evt := range []domain.SessionRecorded{first, second} {
			if err := bus.Publish(context.Background(), evt); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}
	bus.Stop()

	for _, player := range []string{"p1", "p2", "p3"} {
		if latest[player] != 1700 {
			t.Fatalf("expected %s projected at its latest total 1700, got %d", player, latest[player])
		}
	}
}

func TestLocalBusSynchronousHidesHandlerFailures(t *testing.T) {
	d := NewDispatcher(0, time.Second, nil, testLogger())
	d.Subscribe("broken", func(ctx context.Context, evt domain.SessionRecorded) error {
		return errors.New("always fails")
	})

	bus := NewLocalBus(d, 0, 0, testLogger())
	bus.Start()
	defer bus.Stop()

	if err := bus.Publish(context.Background(), sampleEvent("s1")); err != nil {
		t.Fatalf("handler failure must not surface as a publish error, got %v", err)
	}
}
