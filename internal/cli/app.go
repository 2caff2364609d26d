package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/events"
	"github.com/biohunter/internal/handler"
	"github.com/biohunter/internal/kafka"
	"github.com/biohunter/internal/memory"
	"github.com/biohunter/internal/metrics"
	"github.com/biohunter/internal/postgres"
	"github.com/biohunter/internal/redis"
	"github.com/biohunter/internal/service"
	"github.com/biohunter/internal/worker"
)

// persistentStore is everything the services and workers need from the system of record
type persistentStore interface {
	service.PlayerStore
	service.DailyStore
	service.RankingArchive
	worker.RankingSource
	worker.SessionPurger
	AddQuestion(ctx context.Context, id, tag, prompt string) error
	Ping(ctx context.Context) error
}

// rankingCache is the query side of the ranking projection
type rankingCache interface {
	service.RankingStore
	worker.RankingCache
}

// stores holds the backing stores selected by store.driver
type stores struct {
	persistent persistentStore
	rankings   rankingCache
	pingers    map[string]interface{ Ping(context.Context) error }
	closers    []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{pingers: make(map[string]interface{ Ping(context.Context) error })}

	if cfg.Store.Driver == config.StoreDriverMemory {
		store := memory.NewStore()
		s.persistent = store
		s.rankings = memory.NewRankingStore()
		if err := seedQuestions(ctx, store, cfg.Daily.PoolTag); err != nil {
			return nil, err
		}
		logger.Info("using in-memory store")
		return s, nil
	}

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, &cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	s.closers = append(s.closers, repo.Close)
	s.persistent = repo
	s.pingers["postgres"] = repo

	if err := repo.RunMigrations(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	client, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	rankings := redis.NewRankingStore(client, logger)
	s.closers = append(s.closers, func() { _ = rankings.Close() })
	s.rankings = rankings
	s.pingers["redis"] = rankings

	return s, nil
}

// eventBus is the SessionRecorded channel selected by events.driver
type eventBus struct {
	publisher events.Publisher
	start     func() error
	stop      func()
}

func openEventBus(cfg *config.Config, dispatcher *events.Dispatcher, logger *slog.Logger) (*eventBus, error) {
	if cfg.Events.Driver == config.EventsDriverLocal {
		bus := events.NewLocalBus(dispatcher, cfg.Events.Workers, cfg.Events.QueueSize, logger)
		return &eventBus{
			publisher: bus,
			start: func() error {
				bus.Start()
				return nil
			},
			stop: bus.Stop,
		}, nil
	}

	logger.Info("initializing Kafka event bus", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka publisher: %w", err)
	}
	consumer, err := kafka.NewConsumer(&cfg.Kafka, dispatcher, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("creating Kafka consumer: %w", err)
	}

	return &eventBus{
		publisher: publisher,
		start:     consumer.Start,
		stop: func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close Kafka publisher", "error", err)
			}
			if err := consumer.Stop(); err != nil {
				logger.Error("failed to stop Kafka consumer", "error", err)
			}
		},
	}, nil
}

// application is the fully wired backend
type application struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Recorder
	stores     *stores
	bus        *eventBus
	services   handler.Services
	syncWorker *worker.SyncWorker
	retention  *worker.RetentionCleaner
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	m := metrics.NewRecorder()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := events.NewDispatcher(cfg.Events.HandlerRetries, cfg.Events.HandlerTimeout, m, logger)
	bus, err := openEventBus(cfg, dispatcher, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	leaderboard := service.NewLeaderboardService(st.rankings, st.persistent, &cfg.Leaderboard, m, logger)
	achievements := service.NewAchievementEvaluator(st.persistent, m, logger)
	dispatcher.Subscribe("leaderboard", leaderboard.HandleSessionRecorded)
	dispatcher.Subscribe("achievements", achievements.HandleSessionRecorded)

	svc := handler.Services{
		Recorder:    service.NewScoreRecorder(st.persistent, bus.publisher, m, logger),
		Leaderboard: leaderboard,
		Gacha:       service.NewGachaEngine(st.persistent, cfg.Gacha.Cost, m, logger),
		Daily:       service.NewDailyQuestionService(st.persistent, &cfg.Daily, logger),
		Players:     service.NewPlayerService(st.persistent, logger),
	}

	return &application{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		stores:     st,
		bus:        bus,
		services:   svc,
		syncWorker: worker.NewSyncWorker(st.persistent, st.rankings, leaderboard, &cfg.Sync, logger),
		retention:  worker.NewRetentionCleaner(st.persistent, &cfg.Retention, m, logger),
	}, nil
}

func (a *application) Close() {
	a.bus.stop()
	a.stores.Close()
}

// sampleQuestions seeds the in-memory driver so the daily question works out of the box
var sampleQuestions = []struct {
	id     string
	prompt string
}{
	{"q-tardigrade", "Which micro-animal survives the vacuum of space?"},
	{"q-diatom", "What are diatom cell walls made of?"},
	{"q-paramecium", "How does a paramecium move?"},
	{"q-volvox", "What shape do volvox colonies form?"},
	{"q-rotifer", "Which organ gives rotifers their name?"},
}

func seedQuestions(ctx context.Context, store persistentStore, tag string) error {
	for _, q := range sampleQuestions {
		if err := store.AddQuestion(ctx, q.id, tag, q.prompt); err != nil {
			return fmt.Errorf("seeding question %s: %w", q.id, err)
		}
	}
	return nil
}
