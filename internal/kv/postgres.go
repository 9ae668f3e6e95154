package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// PostgresConfig holds connection settings for the Postgres backend
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Store over a single kv_entries table.
// Hash fields live in a JSONB column; TTL is enforced at read time.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool, verifies it and ensures the schema
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStoreFromDB(db, logger)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.Info("postgres kv store ready")
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing pool without touching the schema
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// InitSchema creates the kv_entries table when missing
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_entries (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			value TEXT,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_kv_entries_expires_at ON kv_entries(expires_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize kv schema: %w", err)
	}
	return nil
}

// Get returns the string value stored at key
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`
	var value sql.NullString
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("postgres: get %q: %w", key, err)
	}
	if !value.Valid {
		return "", ErrNotFound
	}
	return value.String, nil
}

// Set stores value at key with an optional TTL
func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	query := `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("postgres: set %q: %w", key, err)
	}
	return nil
}

// HSetFields merges fields into the hash stored at key
func (s *PostgresStore) HSetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("postgres: encode fields for %q: %w", key, err)
	}
	query := `
		INSERT INTO kv_entries (key, fields)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (key) DO UPDATE SET fields = kv_entries.fields || EXCLUDED.fields
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(payload)); err != nil {
		return fmt.Errorf("postgres: hset %q: %w", key, err)
	}
	return nil
}

// HGetAll returns all hash fields at key
func (s *PostgresStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	query := `
		SELECT fields FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("postgres: hgetall %q: %w", key, err)
	}
	fields := make(map[string]string)
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("postgres: decode fields for %q: %w", key, err)
	}
	return fields, nil
}

// Scan pages through keys matching a glob pattern ordered by row id.
// The cursor is the last row id seen.
func (s *PostgresStore) Scan(ctx context.Context, cursor uint64, pattern string, pageSize int64) (uint64, []string, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	query := `
		SELECT id, key FROM kv_entries
		WHERE id > $1 AND key LIKE $2 ESCAPE '\'
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY id
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, int64(cursor), globToLike(pattern), pageSize)
	if err != nil {
		return 0, nil, fmt.Errorf("postgres: scan %q: %w", pattern, err)
	}
	defer rows.Close()

	var (
		keys   []string
		lastID int64
	)
	for rows.Next() {
		var key string
		if err := rows.Scan(&lastID, &key); err != nil {
			return 0, nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("postgres: scan rows: %w", err)
	}

	if int64(len(keys)) < pageSize {
		return 0, keys, nil
	}
	return uint64(lastID), keys, nil
}

// Ping checks connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.logger.Info("closing database connection")
	return s.db.Close()
}

// globToLike converts a Redis-style glob (* and ?) into a LIKE pattern
func globToLike(pattern string) string {
	if pattern == "" {
		return "%"
	}
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '\\', '%', '_':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '*':
			b.WriteRune('%')
		case '?':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
