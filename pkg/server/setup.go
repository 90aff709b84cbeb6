package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/geo"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/ingest"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/query"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server/monitor"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/badger"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/clickhouse"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/memory"
)

// Storage backends
const (
	BackendBadger     = "badger"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Config holds server configuration.
type Config struct {
	Port    string
	Env     string
	Debug   bool
	Backend string

	DataDir      string
	MaxStorageGB int64
	MaxMemoryMB  int64

	ClickHouse clickhouse.Config

	GeoToken string
	GeoCache string
	RedisURL string
	IPSalt   string

	IngestToken    string
	RetentionDays  int64
	AllowedOrigins []string

	// Warnings lists environment values that were ignored in favor of a
	// default. LoadConfig runs before the logger exists, so callers log
	// them with LogWarnings once it does.
	Warnings []EnvWarning
}

// EnvWarning describes an environment variable that could not be parsed.
type EnvWarning struct {
	Key     string
	Value   string
	Default int64
}

// LogWarnings logs every entry of Warnings.
func (c Config) LogWarnings(logger *zap.Logger) {
	for _, w := range c.Warnings {
		logger.Warn("Invalid integer in environment, using default",
			zap.String("key", w.Key), zap.String("value", w.Value), zap.Int64("default", w.Default))
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var warnings []EnvWarning
	envInt64 := func(key string, defaultValue int64) int64 {
		v, w := getEnvInt64(key, defaultValue)
		if w != nil {
			warnings = append(warnings, *w)
		}
		return v
	}

	cfg := Config{
		Port:         getEnv("PORT", config.DefaultPort),
		Env:          getEnv("ENV", "production"),
		Debug:        getEnv("DEBUG", "") != "",
		Backend:      strings.ToLower(getEnv("STORAGE_BACKEND", config.DefaultBackend)),
		DataDir:      getEnv("DATA_DIR", config.DefaultDataDir),
		MaxStorageGB: envInt64("BA_MAX_STORAGE_GB", config.DefaultMaxStorageGB),
		MaxMemoryMB:  envInt64("BA_MAX_MEMORY_MB", config.DefaultMaxMemoryMB),
		ClickHouse: clickhouse.Config{
			Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "better_analytics"),
			User:     getEnv("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
			TLS:      getEnv("CLICKHOUSE_TLS", "") != "",
		},
		GeoToken:       os.Getenv("GEO_TOKEN"),
		GeoCache:       strings.ToLower(getEnv("GEO_CACHE", "memory")),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		IPSalt:         os.Getenv("IP_SALT"),
		IngestToken:    os.Getenv("INGEST_TOKEN"),
		RetentionDays:  envInt64("RETENTION_DAYS", config.DefaultRetentionDays),
		AllowedOrigins: splitList(os.Getenv("CORS_ORIGINS")),
	}
	cfg.Warnings = warnings

	switch cfg.Backend {
	case BackendBadger:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return cfg, fmt.Errorf("failed to create data directory: %w", err)
		}
	case BackendClickHouse, BackendMemory:
	default:
		return cfg, fmt.Errorf("unknown STORAGE_BACKEND %q (want badger, clickhouse or memory)", cfg.Backend)
	}
	switch cfg.GeoCache {
	case "memory", "redis":
	default:
		return cfg, fmt.Errorf("unknown GEO_CACHE %q (want memory or redis)", cfg.GeoCache)
	}
	return cfg, nil
}

// Retention returns how long records are kept. Zero disables retention.
func (c Config) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// InitializeStorage opens the configured storage backend.
func InitializeStorage(ctx context.Context, cfg Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		logger.Warn("Using in-memory storage, records are lost on restart")
		return memory.New(), nil
	case BackendClickHouse:
		logger.Info("Connecting to ClickHouse",
			zap.String("addr", cfg.ClickHouse.Addr),
			zap.String("database", cfg.ClickHouse.Database))
		store, err := clickhouse.New(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		logger.Info("ClickHouse schema migrated")
		return store, nil
	default:
		logger.Info("Initializing BadgerDB storage",
			zap.String("data_dir", cfg.DataDir),
			zap.Int64("max_memory_mb", cfg.MaxMemoryMB))
		store, err := badger.New(badger.Config{
			Path:        cfg.DataDir,
			MaxMemoryMB: cfg.MaxMemoryMB,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// InitializeStorageMonitor returns a disk usage monitor for the badger data
// directory, or nil for backends that don't store locally.
func InitializeStorageMonitor(cfg Config) *monitor.StorageMonitor {
	if cfg.Backend != BackendBadger || cfg.MaxStorageGB <= 0 {
		return nil
	}
	return monitor.NewStorageMonitor(cfg.DataDir, cfg.MaxStorageGB<<30)
}

// InitializeGeo builds the geolocation lookup and its cache. The returned
// close function releases the cache.
func InitializeGeo(ctx context.Context, cfg Config, logger *zap.Logger) (geo.Lookup, func(), error) {
	if cfg.GeoToken == "" {
		logger.Info("GEO_TOKEN not set, geolocation disabled")
		return geo.Nop{}, func() {}, nil
	}

	var (
		cache   geo.Cache
		closeFn func()
	)
	switch cfg.GeoCache {
	case "redis":
		rc, err := geo.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		cache = rc
		closeFn = func() { _ = rc.Close() }
	default:
		mc, err := geo.NewMemoryCache(config.GeoCacheMaxEntries)
		if err != nil {
			return nil, nil, err
		}
		cache = mc
		closeFn = mc.Close
	}

	logger.Info("Geolocation enabled", zap.String("cache", cfg.GeoCache))
	return geo.NewIPInfo(geo.IPInfoConfig{
		Token:  cfg.GeoToken,
		Cache:  cache,
		Logger: logger.Named("geo"),
	}), closeFn, nil
}

// InitializeHandlers creates and configures all request handlers.
func InitializeHandlers(
	store storage.Storage,
	cfg Config,
	lookup geo.Lookup,
	storageMonitor *monitor.StorageMonitor,
	logger *zap.Logger,
) (*ingest.Handler, *query.Handler, *ingest.Hub) {
	hub := ingest.NewHub(logger.Named("realtime"))

	opts := ingest.Options{
		Token:  cfg.IngestToken,
		Geo:    lookup,
		Hub:    hub,
		Logger: logger.Named("ingest"),
	}
	if cfg.IPSalt != "" {
		opts.Anonymizer = geo.NewAnonymizer(cfg.IPSalt)
	} else {
		logger.Warn("IP_SALT not set, client IPs will not be stored")
	}
	if storageMonitor != nil {
		opts.Storage = storageMonitor
		logger.Info("Storage limit enforcement enabled", zap.Int64("max_storage_gb", cfg.MaxStorageGB))
	}
	if cfg.IngestToken == "" {
		logger.Warn("INGEST_TOKEN not set, ingestion is unauthenticated")
	}

	return ingest.NewHandler(store, opts), query.NewHandler(store, logger.Named("query")), hub
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default,
// with a warning when the variable is set but not an integer.
func getEnvInt64(key string, defaultValue int64) (int64, *EnvWarning) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue, &EnvWarning{Key: key, Value: val, Default: defaultValue}
	}
	return parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
