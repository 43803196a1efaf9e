package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data", cfg.Server.UploadDir)
	assert.Equal(t, "output", cfg.Export.Dir)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.DeepSeek.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.DeepSeek.Model)
	assert.Equal(t, 20, cfg.Pipeline.FlagChunkSize)
	assert.Equal(t, 40, cfg.Pipeline.AuditChunkSize)
	assert.Equal(t, 120, cfg.Pipeline.CallTimeoutSecs)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Pipeline.RequestsPerSec, 0.001)
	assert.Equal(t, 4, cfg.Pipeline.RequestBurst)
	assert.Equal(t, 8000, cfg.Pipeline.EntryTextMaxSize)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/triage
log:
  level: debug
  format: console
pipeline:
  flag_chunk_size: 5
  audit_chunk_size: 10
export:
  dir: /tmp/artifacts
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/triage", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Pipeline.FlagChunkSize)
	assert.Equal(t, 10, cfg.Pipeline.AuditChunkSize)
	assert.Equal(t, "/tmp/artifacts", cfg.Export.Dir)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, "deepseek-chat", cfg.DeepSeek.Model)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRIAGE_STORE_DRIVER", "postgres")
	t.Setenv("TRIAGE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("TRIAGE_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("TRIAGE_DEEPSEEK_KEY", "sk-ds-test")
	t.Setenv("TRIAGE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "sk-ds-test", cfg.DeepSeek.Key)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidate_MissingKeys(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic key")

	cfg.Anthropic.Key = "sk-ant-key"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek key")

	cfg.DeepSeek.Key = "sk-ds-key"
	assert.NoError(t, cfg.Validate())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
