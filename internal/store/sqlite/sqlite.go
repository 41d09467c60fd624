// Copyright BedrockGate Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package sqlite implements the store contract on a single SQLite file via
// the cgo-free modernc driver. Suitable for single-node production use.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/bedrockgate/bedrockgate/internal/json"
	"github.com/bedrockgate/bedrockgate/internal/store"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database at path and ensures the
// schema exists.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}

	// busy_timeout keeps concurrent writers queued instead of failing;
	// WAL lets reads proceed alongside them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		api_key TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL,
		rate_limit INTEGER,
		service_tier TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id);

	CREATE TABLE IF NOT EXISTS usage_records (
		api_key TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		request_id TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cache_read_tokens INTEGER NOT NULL,
		cache_write_tokens INTEGER NOT NULL,
		success INTEGER NOT NULL,
		error_message TEXT,
		PRIMARY KEY (api_key, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_records_request_id ON usage_records(request_id);

	CREATE TABLE IF NOT EXISTS model_mappings (
		anthropic_id TEXT PRIMARY KEY,
		bedrock_id TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) GetAPIKey(ctx context.Context, key string) (*store.APIKey, error) {
	query := `
		SELECT api_key, user_id, name, is_active, rate_limit, service_tier, metadata, created_at
		FROM api_keys WHERE api_key = ?
	`
	rec := &store.APIKey{}
	var (
		isActive  int
		rateLimit sql.NullInt64
		tier      sql.NullString
		metadata  string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.UserID, &rec.Name, &isActive, &rateLimit, &tier, &metadata, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	rec.IsActive = isActive != 0
	if rateLimit.Valid {
		limit := int(rateLimit.Int64)
		rec.RateLimit = &limit
	}
	if tier.Valid {
		rec.ServiceTier = &tier.String
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode api key metadata: %w", err)
		}
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return rec, nil
}

func (s *Store) PutAPIKey(ctx context.Context, rec *store.APIKey) error {
	if rec == nil || rec.Key == "" {
		return errors.New("api key record must have a key")
	}

	metadata := []byte("{}")
	if len(rec.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("failed to encode api key metadata: %w", err)
		}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var rateLimit sql.NullInt64
	if rec.RateLimit != nil {
		rateLimit = sql.NullInt64{Int64: int64(*rec.RateLimit), Valid: true}
	}
	var tier sql.NullString
	if rec.ServiceTier != nil {
		tier = sql.NullString{String: *rec.ServiceTier, Valid: true}
	}

	query := `
		INSERT INTO api_keys (api_key, user_id, name, is_active, rate_limit, service_tier, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_key) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			is_active = excluded.is_active,
			rate_limit = excluded.rate_limit,
			service_tier = excluded.service_tier,
			metadata = excluded.metadata
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Key, rec.UserID, rec.Name, boolToInt(rec.IsActive), rateLimit, tier, string(metadata), createdAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put api key: %w", err)
	}
	return nil
}

func (s *Store) InsertUsage(ctx context.Context, rec *store.UsageRecord) error {
	if rec == nil {
		return errors.New("usage record must not be nil")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `
		INSERT INTO usage_records (
			api_key, timestamp, request_id, model, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.APIKey, ts.UnixNano(), rec.RequestID, rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.CacheReadTokens, rec.CacheWriteTokens, boolToInt(rec.Success), rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

func (s *Store) GetModelMapping(ctx context.Context, anthropicID string) (string, error) {
	var bedrockID string
	err := s.db.QueryRowContext(ctx,
		`SELECT bedrock_id FROM model_mappings WHERE anthropic_id = ?`, anthropicID).Scan(&bedrockID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get model mapping: %w", err)
	}
	return bedrockID, nil
}

func (s *Store) ListModelMappings(ctx context.Context) ([]store.ModelMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT anthropic_id, bedrock_id FROM model_mappings ORDER BY anthropic_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model mappings: %w", err)
	}
	defer rows.Close()

	var out []store.ModelMapping
	for rows.Next() {
		var m store.ModelMapping
		if err := rows.Scan(&m.AnthropicID, &m.BedrockID); err != nil {
			return nil, fmt.Errorf("failed to scan model mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list model mappings: %w", err)
	}
	return out, nil
}

func (s *Store) PutModelMapping(ctx context.Context, m store.ModelMapping) error {
	if m.AnthropicID == "" {
		return errors.New("model mapping must have an anthropic id")
	}
	query := `
		INSERT INTO model_mappings (anthropic_id, bedrock_id) VALUES (?, ?)
		ON CONFLICT(anthropic_id) DO UPDATE SET bedrock_id = excluded.bedrock_id
	`
	if _, err := s.db.ExecContext(ctx, query, m.AnthropicID, m.BedrockID); err != nil {
		return fmt.Errorf("failed to put model mapping: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*Store)(nil)
