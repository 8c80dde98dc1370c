// Command migrate-json-to-postgres copies content-video bindings from the
// JSON datastore into Postgres and verifies the row count afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipbind/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/clipbind.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("CLIPBIND_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, CLIPBIND_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()

	source, err := storage.NewStorage(*jsonPath)
	if err != nil {
		logger.Error("failed to open JSON datastore", "error", err)
		os.Exit(1)
	}
	bindings, err := source.ListBindings(ctx)
	if err != nil {
		logger.Error("failed to read bindings", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded JSON datastore", "path", *jsonPath, "bindings", len(bindings))

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: dsn})
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close(context.Background())

	migrated := 0
	skipped := 0
	for _, binding := range bindings {
		_, created, err := repo.InsertBindingIfAbsent(ctx, binding)
		if err != nil {
			logger.Error("failed to migrate binding", "content_id", binding.ContentID, "error", err)
			os.Exit(1)
		}
		if created {
			migrated++
		} else {
			skipped++
		}
	}

	if err := verifyCount(ctx, dsn, len(bindings)); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "migrated", migrated, "skipped", skipped)
}

func verifyCount(ctx context.Context, dsn string, expected int) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	var actual int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM content_video_bindings").Scan(&actual); err != nil {
		return fmt.Errorf("count bindings: %w", err)
	}
	if actual < expected {
		return fmt.Errorf("expected at least %d bindings, found %d", expected, actual)
	}
	return nil
}
