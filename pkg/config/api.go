package config

import (
	"fmt"
	"strings"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Archive counter backends.
const (
	CountersStore = "store"
	CountersRedis = "redis"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	LogLevel        string
	StoreDriver     string
	DatabaseURL     string
	MigrationsDir   string
	AutoMigrate     bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ArchiveCounters string
	RateLimitRead   int
	RateLimitWrite  int
	TicketProtocols string
	AutoMaxProcs    bool
}

// LoadAPIConfig loads ENV_FILE_PATH, then reads settings from the environment and the
// optional CONFIG_FILE.
func LoadAPIConfig() (APIConfig, error) {
	if err := LoadEnvFile(); err != nil {
		return APIConfig{}, err
	}
	src, err := NewSource(GetString("CONFIG_FILE", ""))
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Environment:     src.String("APP_ENV", "development"),
		Addr:            src.String("API_ADDR", ":4000"),
		LogLevel:        src.String("LOG_LEVEL", "INFO"),
		StoreDriver:     strings.ToLower(strings.TrimSpace(src.String("STORE_DRIVER", DriverMemory))),
		DatabaseURL:     src.String("DATABASE_URL", ""),
		MigrationsDir:   src.String("DB_MIGRATIONS_DIR", ""),
		AutoMigrate:     src.Bool("DB_AUTO_MIGRATE", true),
		RedisAddr:       src.String("REDIS_ADDR", ""),
		RedisPassword:   src.String("REDIS_PASSWORD", ""),
		RedisDB:         src.Int("REDIS_DB", 0),
		ArchiveCounters: strings.ToLower(strings.TrimSpace(src.String("ARCHIVE_COUNTERS", CountersStore))),
		RateLimitRead:   src.Int("RATE_LIMIT_READ", 600),
		RateLimitWrite:  src.Int("RATE_LIMIT_WRITE", 120),
		TicketProtocols: src.String("TICKET_PROTOCOLS", ""),
		AutoMaxProcs:    src.Bool("AUTO_MAX_PROCS", true),
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// Validate checks combinations the server cannot start with.
func (c APIConfig) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", DriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ArchiveCounters {
	case CountersStore:
	case CountersRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis archive counters")
		}
	default:
		return fmt.Errorf("unsupported ARCHIVE_COUNTERS %q", c.ArchiveCounters)
	}
	return nil
}
