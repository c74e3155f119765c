package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 10000, cfg.Cache.Size)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 4, cfg.Sync.MaxConcurrency)
	assert.Equal(t, uint64(3), cfg.Sync.MaxWriteRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.RetryInitialInterval)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "fieldmesh", cfg.Logging.Prefix)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  dsn: postgres://app@db/fieldmesh
  query_timeout: 10s
cache:
  type: redis
  address: localhost:6379
sync:
  max_concurrency: 8
logging:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db/fieldmesh", cfg.Database.DSN)
	assert.Equal(t, 10*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "localhost:6379", cfg.Cache.Address)
	assert.Equal(t, 8, cfg.Sync.MaxConcurrency)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)

	// Unset keys keep their defaults
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, uint64(3), cfg.Sync.MaxWriteRetries)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FIELDMESH_DATABASE_DSN", "postgres://env@db/fieldmesh")
	t.Setenv("FIELDMESH_LOGGING_LEVEL", "WARN")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db/fieldmesh", cfg.Database.DSN)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
