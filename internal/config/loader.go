package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "pharmacore.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PHARMACORE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PHARMACORE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PHARMACORE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PHARMACORE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PHARMACORE_PG_HEALTH_CHECK")
	setString(&cfg.TenantDB.AdminDSN, "PHARMACORE_TENANT_ADMIN_DSN")
	setString(&cfg.TenantDB.DatabasePrefix, "PHARMACORE_TENANT_DB_PREFIX")
	setInt32(&cfg.TenantDB.MaxConns, "PHARMACORE_TENANT_MAX_CONNS")
	setDuration(&cfg.TenantDB.ConnectTimeout, "PHARMACORE_TENANT_CONNECT_TIMEOUT")
	setString(&cfg.Upstream.BaseURL, "PHARMACORE_UPSTREAM_URL")
	setString(&cfg.Upstream.APIKey, "PHARMACORE_UPSTREAM_API_KEY")
	setDuration(&cfg.Upstream.Timeout, "PHARMACORE_UPSTREAM_TIMEOUT")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "PHARMACORE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PHARMACORE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "PHARMACORE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PHARMACORE_BREAKER_TIMEOUT")
	setInt(&cfg.Sync.BatchSize, "PHARMACORE_SYNC_BATCH_SIZE")
	setInt(&cfg.Sync.PageSize, "PHARMACORE_SYNC_PAGE_SIZE")
	setInt(&cfg.Sync.MaxParallelTenants, "PHARMACORE_SYNC_MAX_PARALLEL")
	setInt64(&cfg.Cache.MaxSizeMB, "PHARMACORE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "PHARMACORE_CACHE_TTL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.TenantDB.AdminDSN == "" {
		return errors.New("tenant_db.admin_dsn is required")
	}
	if cfg.TenantDB.DatabasePrefix == "" {
		return errors.New("tenant_db.database_prefix is required")
	}
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Sync.BatchSize < 1 {
		return errors.New("sync.batch_size must be >= 1")
	}
	if cfg.Sync.PageSize < 1 {
		return errors.New("sync.page_size must be >= 1")
	}
	if cfg.Sync.MaxParallelTenants < 1 {
		return errors.New("sync.max_parallel_tenants must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
