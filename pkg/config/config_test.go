package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Setenv("ENV_FILE_PATH", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadAPIConfig()
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, CountersStore, cfg.ArchiveCounters)
	assert.True(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.MigrationsDir)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "deploydash.yaml")
	require.NoError(t, os.WriteFile(file, []byte("api_addr: \":8080\"\nrate_limit_read: 7\nticket_protocols: ok-jira=https://jira/browse/\n"), 0o600))
	t.Setenv("ENV_FILE_PATH", "")
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("RATE_LIMIT_READ", "9")

	cfg, err := LoadAPIConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 9, cfg.RateLimitRead)
	assert.Equal(t, "ok-jira=https://jira/browse/", cfg.TicketProtocols)
}

func TestEnvFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("DEPLOYDASH_TEST_ONLY=from-file\n"), 0o600))
	t.Setenv("ENV_FILE_PATH", file)
	t.Cleanup(func() { os.Unsetenv("DEPLOYDASH_TEST_ONLY") })

	require.NoError(t, LoadEnvFile())
	assert.Equal(t, "from-file", GetString("DEPLOYDASH_TEST_ONLY", ""))
}

func TestValidate(t *testing.T) {
	base := APIConfig{StoreDriver: DriverMemory, ArchiveCounters: CountersStore}
	require.NoError(t, base.Validate())

	pg := base
	pg.StoreDriver = DriverPostgres
	assert.Error(t, pg.Validate())
	pg.DatabaseURL = "postgres://localhost/deploydash"
	assert.NoError(t, pg.Validate())

	unknown := base
	unknown.StoreDriver = "sqlite"
	assert.Error(t, unknown.Validate())

	redisCounters := base
	redisCounters.ArchiveCounters = CountersRedis
	assert.Error(t, redisCounters.Validate())
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	t.Setenv("DB_AUTO_MIGRATE", "sometimes")
	assert.Equal(t, 3, GetInt("REDIS_DB", 3))
	assert.False(t, GetBool("DB_AUTO_MIGRATE", false))
}
