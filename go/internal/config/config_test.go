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

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.Archive.DatabaseURL)

	pc := cfg.PollConfig()
	assert.Equal(t, time.Minute, pc.MinDuration)
	assert.Equal(t, 48*time.Hour, pc.MaxDuration)
	assert.Equal(t, time.Hour, pc.DefaultDuration)
	assert.Equal(t, time.Second, pc.TickInterval)
	assert.Equal(t, time.Hour, pc.RetentionPeriod)
	assert.Equal(t, 6, pc.CodeLength)
	assert.Equal(t, 3600, pc.ClampDuration(0))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livepoll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  allowed_origins: ["https://polls.example.com"]
poll:
  min_duration_sec: 30
  max_duration_sec: 600
  default_duration_sec: 120
  tick_interval_ms: 1000
  retention_sec: 60
  code_length: 8
nats:
  url: nats://file:4222
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("POLL_RETENTION_SEC", "300")
	t.Setenv("POLL_CODE_LENGTH", "not a number")
	t.Setenv("NATS_JETSTREAM", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30, cfg.Poll.MinDurationSec)
	assert.Equal(t, 600, cfg.Poll.MaxDurationSec)
	assert.Equal(t, 300, cfg.Poll.RetentionSec)
	assert.Equal(t, 8, cfg.Poll.CodeLength)
	assert.Equal(t, "nats://file:4222", cfg.NATS.URL)
	assert.Equal(t, "livepoll", cfg.NATS.SubjectPrefix)
	assert.True(t, cfg.NATS.JetStream)
	assert.Equal(t, 600, cfg.PollConfig().ClampDuration(10_000))
}

func TestLoad_RejectsBadConfig(t *testing.T) {
	tests := map[string]string{
		"POLL_MIN_DURATION_SEC":     "0",
		"POLL_MAX_DURATION_SEC":     "10",
		"POLL_DEFAULT_DURATION_SEC": "5",
		"POLL_TICK_INTERVAL_MS":     "-1",
		"POLL_CODE_LENGTH":          "2",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
