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

	assert.Equal(t, 1.5, cfg.Retriever.K1)
	assert.Equal(t, 0.75, cfg.Retriever.B)
	assert.Equal(t, 1, cfg.Retriever.DefaultTopK)
	assert.Equal(t, "chunk_by_title", cfg.Loader.ChunkType)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retriever.yaml")
	data := []byte(`
server:
  port: 9000
retriever:
  k1: 1.2
  b: 0.5
  defaultTopK: 3
  maxTopK: 10
loader:
  chunkType: chunk_by_paragraph
  httpTimeout: 5s
redis:
  enabled: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("BM25_SERVER_PORT", "9100")
	t.Setenv("BM25_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("BM25_KAFKA_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 1.2, cfg.Retriever.K1)
	assert.Equal(t, 0.5, cfg.Retriever.B)
	assert.Equal(t, 3, cfg.Retriever.DefaultTopK)
	assert.Equal(t, "chunk_by_paragraph", cfg.Loader.ChunkType)
	assert.Equal(t, 5*time.Second, cfg.Loader.HTTPTimeout)
	assert.Equal(t, 500, cfg.Loader.MaxCharacters)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retriever:\n  b: 1.5\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "retriever.b")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
