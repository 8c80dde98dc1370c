// Command server starts the clipbind upload coordinator HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"clipbind/internal/api"
	"clipbind/internal/auth"
	"clipbind/internal/binding"
	"clipbind/internal/config"
	"clipbind/internal/observability/logging"
	"clipbind/internal/observability/metrics"
	"clipbind/internal/provider/mux"
	"clipbind/internal/server"
	"clipbind/internal/serverutil"
	"clipbind/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when opening the Postgres pool")
	providerBaseURL := flag.String("provider-base-url", "", "override for the media provider API endpoint")
	uploadsEnabled := flag.Bool("uploads-enabled", true, "enable the direct upload feature")
	guestAccess := flag.Bool("guest-access", false, "allow upload token issuance without an admin key")
	maxUploadBytes := flag.Int64("max-upload-bytes", 0, "size ceiling for declared upload sizes")
	corsOrigin := flag.String("cors-origin", "", "origin granted cross-origin and direct upload access")
	adminKeyHash := flag.String("admin-key-hash", "", "pbkdf2 hash guarding administrative binding routes")
	rateLimit := flag.Int("rate-limit", 0, "maximum API requests per client per window (0 disables)")
	rateWindow := flag.Duration("rate-window", 0, "window for counting API requests")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for shared rate limit counters")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for shared rate limit counters")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis rate limit operations")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime for issued upload tokens")
	tokenPurgeInterval := flag.Duration("token-purge-interval", 15*time.Minute, "interval between expired token sweeps")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Options{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPBIND_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPBIND_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	cfg := config.New()
	cfg.Enabled = resolveBool(*uploadsEnabled, "CLIPBIND_UPLOADS_ENABLED")
	cfg.GuestAccess = resolveBool(*guestAccess, "CLIPBIND_GUEST_ACCESS")
	cfg.CORSOrigin = firstNonEmpty(*corsOrigin, os.Getenv("CLIPBIND_CORS_ORIGIN"))
	cfg.AdminKeyHash = firstNonEmpty(*adminKeyHash, os.Getenv("CLIPBIND_ADMIN_KEY_HASH"))
	if limit := resolveInt64(*maxUploadBytes, "CLIPBIND_MAX_UPLOAD_BYTES"); limit > 0 {
		cfg.MaxUploadBytes = limit
	}

	creds := cfg.Credentials()
	if !creds.Configured() {
		logger.Warn("provider credentials not configured, uploads will be refused",
			"token_id_env", config.EnvTokenID,
			"token_secret_env", config.EnvTokenSecret)
	}
	client := mux.New(mux.Config{
		TokenID:     creds.TokenID,
		TokenSecret: creds.TokenSecret,
		BaseURL:     firstNonEmpty(*providerBaseURL, os.Getenv("CLIPBIND_PROVIDER_BASE_URL")),
		Logger:      logging.WithComponent(logger, "provider"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openRepository(ctx, repositoryConfig{
		Driver:          firstNonEmpty(*storageDriver, os.Getenv("CLIPBIND_STORAGE_DRIVER")),
		DataPath:        firstNonEmpty(*dataPath, os.Getenv("CLIPBIND_DATA")),
		PostgresDSN:     firstNonEmpty(*postgresDSN, os.Getenv("CLIPBIND_POSTGRES_DSN")),
		MaxConnections:  int32(resolveInt(*postgresMaxConns, "CLIPBIND_POSTGRES_MAX_CONNS")),
		MinConnections:  int32(resolveInt(*postgresMinConns, "CLIPBIND_POSTGRES_MIN_CONNS")),
		MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "CLIPBIND_POSTGRES_MAX_CONN_LIFETIME", 0),
		ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "CLIPBIND_POSTGRES_CONNECT_TIMEOUT", 0),
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	var tokenOpts []auth.TokenOption
	if ttl := resolveDuration(*tokenTTL, "CLIPBIND_TOKEN_TTL", 0); ttl > 0 {
		tokenOpts = append(tokenOpts, auth.WithTokenTTL(ttl))
	}
	tokens := auth.NewTokenManager(tokenOpts...)

	bindings, err := binding.NewManager(binding.Config{
		Repo:    store,
		Deleter: client,
		Tokens:  tokens,
		Logger:  logging.WithComponent(logger, "bindings"),
	})
	if err != nil {
		logger.Error("failed to configure binding manager", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(client, tokens, bindings, store, cfg)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.Metrics = recorder

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("CLIPBIND_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("CLIPBIND_TLS_KEY"))
	listenAddr := firstNonEmpty(*addr, os.Getenv("CLIPBIND_ADDR"), ":8080")

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS:  server.TLSConfig{CertFile: tlsCertPath, KeyFile: tlsKeyPath},
		RateLimit: server.RateLimitConfig{
			Limit:         resolveInt(*rateLimit, "CLIPBIND_RATE_LIMIT"),
			Window:        resolveDuration(*rateWindow, "CLIPBIND_RATE_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("CLIPBIND_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("CLIPBIND_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "CLIPBIND_RATE_REDIS_TIMEOUT", 0),
		},
		AllowedOrigin: cfg.CORSOrigin,
		Logger:        logger,
		Metrics:       recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("clipbind API listening", "addr", listenAddr)
		if tlsCertPath != "" && tlsKeyPath != "" {
			logger.Info("TLS enabled", "cert_file", tlsCertPath)
		}
		runOpts := []serverutil.Option{serverutil.WithShutdownTimeout(10 * time.Second)}
		if tlsCertPath != "" && tlsKeyPath != "" {
			runOpts = append(runOpts, serverutil.WithTLS(tlsCertPath, tlsKeyPath))
		}
		return serverutil.Run(groupCtx, srv.HTTPServer(), runOpts...)
	})
	group.Go(func() error {
		return tokens.PurgeLoop(groupCtx, *tokenPurgeInterval)
	})

	err = group.Wait()
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closeErr := store.Close(closeCtx); closeErr != nil {
		logger.Warn("failed to close datastore", "error", closeErr)
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type repositoryConfig struct {
	Driver          string
	DataPath        string
	PostgresDSN     string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

func openRepository(ctx context.Context, cfg repositoryConfig) (storage.Repository, error) {
	driver, err := resolveStorageDriver(cfg.Driver, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	switch driver {
	case "json":
		path := cfg.DataPath
		if path == "" {
			path = "data/clipbind.json"
		}
		return storage.NewStorage(path)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage selected without DSN")
		}
		return storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:             cfg.PostgresDSN,
			MaxConnections:  cfg.MaxConnections,
			MinConnections:  cfg.MinConnections,
			MaxConnLifetime: cfg.MaxConnLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func resolveStorageDriver(value, postgresDSN string) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(value))
	switch driver {
	case "":
		if strings.TrimSpace(postgresDSN) != "" {
			return "postgres", nil
		}
		return "json", nil
	case "json", "postgres":
		return driver, nil
	default:
		return "", fmt.Errorf("unknown storage driver %q", value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue != 0 {
		return flagValue
	}
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return flagValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return flagValue
	}
	return parsed
}

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue != 0 {
		return flagValue
	}
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return flagValue
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return flagValue
	}
	return parsed
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return flagValue
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return flagValue
	}
	return parsed
}
