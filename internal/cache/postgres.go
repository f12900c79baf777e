package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citeright/citeright/internal/compose"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS answer_cache (
	query      TEXT PRIMARY KEY,
	answer     TEXT NOT NULL,
	citations  JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresCache implements Cache backed by a PostgreSQL table. Each Set is a
// single upsert, so replacement is atomic per key.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache connects to PostgreSQL and ensures the cache table exists.
func NewPostgresCache(ctx context.Context, databaseURL string) (*PostgresCache, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createCacheTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &PostgresCache{pool: pool}, nil
}

// Close closes the connection pool.
func (c *PostgresCache) Close() {
	c.pool.Close()
}

// Get returns the cached entry for query, or (nil, nil) on a miss.
func (c *PostgresCache) Get(ctx context.Context, query string) (*Entry, error) {
	var (
		entry         Entry
		citationsJSON []byte
	)

	err := c.pool.QueryRow(ctx,
		`SELECT answer, citations, created_at FROM answer_cache WHERE query = $1`,
		query,
	).Scan(&entry.Answer, &citationsJSON, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal(citationsJSON, &entry.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}

	return &entry, nil
}

// Set stores an entry for query, overwriting any existing one.
func (c *PostgresCache) Set(ctx context.Context, query, answer string, citations []compose.Citation) error {
	if citations == nil {
		citations = []compose.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO answer_cache (query, answer, citations, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (query) DO UPDATE
		SET answer = EXCLUDED.answer, citations = EXCLUDED.citations, created_at = EXCLUDED.created_at`,
		query, answer, citationsJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every cached entry.
func (c *PostgresCache) ClearAll(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM answer_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Ensure PostgresCache implements Cache.
var _ Cache = (*PostgresCache)(nil)
