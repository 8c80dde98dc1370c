package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipbind/internal/models"
)

const bindingSchema = `
CREATE TABLE IF NOT EXISTS content_video_bindings (
    content_id  BIGINT PRIMARY KEY,
    provider    TEXT NOT NULL,
    playback_id TEXT NOT NULL,
    asset_id    TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
)`

type postgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig tunes the connection pool behind the Postgres repository.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// binding schema.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, bindingSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply binding schema: %w", err)
	}
	return &postgresRepository{pool: pool}, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) InsertBindingIfAbsent(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, bool, error) {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
INSERT INTO content_video_bindings (content_id, provider, playback_id, asset_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (content_id) DO NOTHING`,
		binding.ContentID, binding.Provider, binding.PlaybackID, binding.AssetID, now)
	if err != nil {
		return models.ContentVideoBinding{}, false, fmt.Errorf("insert binding: %w", err)
	}

	stored, err := r.GetBinding(ctx, binding.ContentID)
	if err != nil {
		return models.ContentVideoBinding{}, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *postgresRepository) GetBinding(ctx context.Context, contentID int64) (models.ContentVideoBinding, error) {
	var binding models.ContentVideoBinding
	err := r.pool.QueryRow(ctx, `
SELECT content_id, provider, playback_id, asset_id, created_at, updated_at
FROM content_video_bindings
WHERE content_id = $1`, contentID).Scan(
		&binding.ContentID, &binding.Provider, &binding.PlaybackID,
		&binding.AssetID, &binding.CreatedAt, &binding.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContentVideoBinding{}, ErrBindingNotFound
	}
	if err != nil {
		return models.ContentVideoBinding{}, fmt.Errorf("select binding: %w", err)
	}
	return binding, nil
}

func (r *postgresRepository) ReplaceBinding(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `
INSERT INTO content_video_bindings (content_id, provider, playback_id, asset_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (content_id) DO UPDATE
SET provider = EXCLUDED.provider,
    playback_id = EXCLUDED.playback_id,
    asset_id = EXCLUDED.asset_id,
    updated_at = EXCLUDED.updated_at
RETURNING content_id, provider, playback_id, asset_id, created_at, updated_at`,
		binding.ContentID, binding.Provider, binding.PlaybackID, binding.AssetID, now).Scan(
		&binding.ContentID, &binding.Provider, &binding.PlaybackID,
		&binding.AssetID, &binding.CreatedAt, &binding.UpdatedAt)
	if err != nil {
		return models.ContentVideoBinding{}, fmt.Errorf("replace binding: %w", err)
	}
	return binding, nil
}

func (r *postgresRepository) DeleteBinding(ctx context.Context, contentID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM content_video_bindings WHERE content_id = $1`, contentID)
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (r *postgresRepository) ListBindings(ctx context.Context) ([]models.ContentVideoBinding, error) {
	rows, err := r.pool.Query(ctx, `
SELECT content_id, provider, playback_id, asset_id, created_at, updated_at
FROM content_video_bindings
ORDER BY content_id`)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []models.ContentVideoBinding
	for rows.Next() {
		var binding models.ContentVideoBinding
		if err := rows.Scan(
			&binding.ContentID, &binding.Provider, &binding.PlaybackID,
			&binding.AssetID, &binding.CreatedAt, &binding.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
