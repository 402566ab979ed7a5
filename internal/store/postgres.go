package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/nimbus/internal/weather"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PoolConfig holds connection pool settings for OpenPostgres.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens a pooled connection and pings it with a timeout so a bad
// DSN fails at startup instead of on the first request.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// PostgresStore persists entries in the weather_cache table. Each operation is a
// single statement, so Postgres provides the atomicity.
type PostgresStore struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB, logger logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

type cacheRow struct {
	ID        uuid.UUID `db:"id"`
	Category  string    `db:"category"`
	CacheKey  string    `db:"cache_key"`
	Payload   []byte    `db:"payload"`
	FetchedAt int64     `db:"fetched_at"`
}

const (
	insertEntrySQL = `INSERT INTO weather_cache (id, category, cache_key, payload, fetched_at) VALUES ($1, $2, $3, $4, $5)`

	selectLatestSQL = `SELECT id, category, cache_key, payload, fetched_at FROM weather_cache
		WHERE category = $1 AND cache_key = $2
		ORDER BY fetched_at DESC, seq DESC
		LIMIT 1`

	purgeExpiredSQL = `DELETE FROM weather_cache WHERE category = $1 AND cache_key = $2 AND fetched_at <= $3`
)

// Write inserts a new row; the newest fetched_at (then the newest row) is the latest.
func (s *PostgresStore) Write(ctx context.Context, entry weather.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, insertEntrySQL,
		entry.ID,
		string(entry.Category),
		entry.Key,
		entry.Payload,
		entry.FetchedAtMillis(),
	)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"category": entry.Category, "key": entry.Key}).WithError(err).Error("db: failed to insert cache entry")
		}
		return fmt.Errorf("postgres store: write: %w", err)
	}
	return nil
}

// ReadLatest selects the newest row for (category, key).
func (s *PostgresStore) ReadLatest(ctx context.Context, category weather.Category, key string) (weather.CacheEntry, bool, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row, selectLatestSQL, string(category), key)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.CacheEntry{}, false, nil
	}
	if err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("postgres store: read: %w", err)
	}
	return weather.CacheEntry{
		ID:        row.ID,
		Category:  weather.Category(row.Category),
		Key:       row.CacheKey,
		Payload:   row.Payload,
		FetchedAt: weather.FromMillis(row.FetchedAt),
	}, true, nil
}

// PurgeExpired deletes rows at or before the expiry cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, category weather.Category, key string, now time.Time) (int, error) {
	cutoff := weather.ExpiryCutoff(category, now).UnixMilli()
	res, err := s.db.ExecContext(ctx, purgeExpiredSQL, string(category), key, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres store: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres store: purge rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
