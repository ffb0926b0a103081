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
	t.Setenv("OPSQUEUE_DATABASE__URL", "postgres://localhost:5432/opsqueue")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 25, cfg.Queue.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.ClaimTimeout)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10, cfg.Jobs.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.ClaimTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Delivery.Webhooks)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPSQUEUE_DATABASE__URL", "postgres://localhost:5432/opsqueue")
	t.Setenv("OPSQUEUE_SERVER__PORT", "9999")
	t.Setenv("OPSQUEUE_QUEUE__BATCH_SIZE", "50")
	t.Setenv("OPSQUEUE_QUEUE__CLAIM_TIMEOUT", "2m")
	t.Setenv("OPSQUEUE_LOG__FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Queue.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.Queue.ClaimTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
database:
  url: postgres://filehost:5432/opsqueue
queue:
  max_attempts: 5
delivery:
  webhooks:
    - work_type: whatsapp_message
      url: https://gateway.example.com/send
      rate_limit: 10
      timeout: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://filehost:5432/opsqueue", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)

	require.Len(t, cfg.Delivery.Webhooks, 1)
	hook := cfg.Delivery.Webhooks[0]
	assert.Equal(t, "whatsapp_message", hook.WorkType)
	assert.Equal(t, "https://gateway.example.com/send", hook.URL)
	assert.Equal(t, 10.0, hook.RateLimit)
	assert.Equal(t, 15*time.Second, hook.Timeout)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7000\"\n"), 0o600))

	t.Setenv("OPSQUEUE_DATABASE__URL", "postgres://localhost:5432/opsqueue")
	t.Setenv("OPSQUEUE_SERVER__PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Server.Port)
}

func TestLoadInvalidWebhook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
database:
  url: postgres://localhost:5432/opsqueue
delivery:
  webhooks:
    - work_type: whatsapp_message
      url: not-a-url
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
