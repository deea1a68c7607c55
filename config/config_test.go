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
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8777", cfg.Server.Addr)
	assert.Equal(t, "conf/sqlite/knowledge_base.sqlite", cfg.Catalog.Path)
	assert.Equal(t, "knowledge_base", cfg.Elasticsearch.Index)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.HeartbeatInterval)
	assert.Equal(t, 300*time.Second, cfg.Pipeline.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.SandboxTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Milvus.Enabled)
	assert.Equal(t, 1024, cfg.LLM.EmbeddingDim)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9000"
milvus:
  enabled: false
elasticsearch:
  index: kb_test
pipeline:
  max_retries: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.False(t, cfg.Milvus.Enabled)
	assert.Equal(t, "kb_test", cfg.Elasticsearch.Index)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	// Unset keys keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TABULA_SERVER_ADDR", ":7001")
	t.Setenv("TABULA_REDIS_ADDR", "redis-host:6380")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, "redis-host:6380", cfg.Redis.Addr)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := Default()
	cfg.LLM.EmbeddingDim = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Addr = ""
	assert.Error(t, cfg.Validate())
}
