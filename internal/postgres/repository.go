package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	timeout   time.Duration
	retries   int
	retryBase time.Duration
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, storeCfg *config.StoreConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewWithPool(pool, storeCfg, logger), nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool *pgxpool.Pool, storeCfg *config.StoreConfig, logger *slog.Logger) *Repository {
	return &Repository{
		pool:      pool,
		logger:    logger,
		timeout:   storeCfg.OperationTimeout,
		retries:   storeCfg.MaxRetries,
		retryBase: storeCfg.RetryInitialInterval,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(128) PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			total_score BIGINT NOT NULL DEFAULT 0 CHECK (total_score >= 0),
			games_played BIGINT NOT NULL DEFAULT 0 CHECK (games_played >= 0),
			currency_balance BIGINT NOT NULL DEFAULT 0 CHECK (currency_balance >= 0),
			last_played_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(128) NOT NULL REFERENCES players(id),
			score BIGINT NOT NULL CHECK (score > 0),
			metadata JSONB,
			submitted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_rewards (
			reward_id VARCHAR(128) PRIMARY KEY,
			player_id VARCHAR(128) NOT NULL REFERENCES players(id),
			category VARCHAR(32) NOT NULL,
			rarity VARCHAR(16) NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_achievements (
			player_id VARCHAR(128) NOT NULL REFERENCES players(id),
			achievement_id VARCHAR(64) NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (player_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rankings (
			ranking_type VARCHAR(64) NOT NULL,
			player_id VARCHAR(128) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			score BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (ranking_type, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id VARCHAR(64) PRIMARY KEY,
			tag VARCHAR(32) NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS daily_questions (
			date VARCHAR(10) PRIMARY KEY,
			question_id VARCHAR(64) NOT NULL REFERENCES questions(id),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_answers (
			player_id VARCHAR(128) NOT NULL,
			date VARCHAR(10) NOT NULL,
			answered_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (player_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_submitted_at ON sessions(submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id, submitted_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_player_rewards_player ON player_rewards(player_id, category)`,
		`CREATE INDEX IF NOT EXISTS idx_rankings_score ON rankings(ranking_type, score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_tag ON questions(tag)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// do runs fn with a per-attempt timeout, retrying transient failures with exponential backoff.
// Exhausted retries are reported as domain.ErrStoreUnavailable.
func (r *Repository) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.retryBase
	eb.MaxInterval = 20 * r.retryBase
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.retries)), ctx)

	attempt := 0
	var lastErr error
	err := backoff.Retry(func() error {
		attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && isTransient(err) {
			lastErr = err
			r.logger.Warn("transient store error", "operation", op, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err == nil {
		return nil
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return err
}

// isTransient reports whether err is worth retrying against the database.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01",                   // deadlock_detected
			"57P01",                   // admin_shutdown
			"08000", "08003", "08006": // connection exceptions
			return true
		}
		return false
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// isForeignKeyViolation reports a missing referenced row
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
