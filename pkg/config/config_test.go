package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}, cfg.Pipeline.Backoff)
	assert.Equal(t, 500, cfg.Reindex.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Suggest.TTL)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
pipeline:
  batchSize: 10
  flushInterval: 500ms
elasticsearch:
  indexPrefix: custom-prefix
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.FlushInterval)
	assert.Equal(t, "custom-prefix", cfg.Elasticsearch.IndexPrefix)
	// Untouched sections keep their defaults.
	assert.Equal(t, 500, cfg.Reindex.PageSize)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("WS_SERVER_PORT", "7777")
	t.Setenv("WS_POSTGRES_HOST", "db.internal")
	t.Setenv("WS_ELASTICSEARCH_INDEX_PREFIX", "env-prefix")
	t.Setenv("WS_KAFKA_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "env-prefix", cfg.Elasticsearch.IndexPrefix)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "workspace",
		User:     "app",
		Password: "secret",
		SSLMode:  "disable",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=workspace")
	assert.Contains(t, dsn, "sslmode=disable")
}
