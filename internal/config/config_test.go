package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primegrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultReadHeaderTimeout, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Server.StaticDir)
	assert.Equal(t, DefaultStorageDir, cfg.Storage.Dir)
	assert.Equal(t, uint64(DefaultBatchSize), cfg.Coordinator.DefaultBatchSize)
	assert.Equal(t, DefaultClientTimeout, cfg.Coordinator.ClientTimeout)
	assert.Equal(t, DefaultEvictionInterval, cfg.Coordinator.EvictionInterval)
	assert.Equal(t, DefaultHistoryInterval, cfg.Coordinator.HistoryInterval)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.False(t, cfg.Tracing.Stdout)
	assert.Equal(t, DefaultUsersDir, cfg.Users.Dir)
	assert.Equal(t, DefaultCookieName, cfg.Session.CookieName)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  static_dir: ./web
storage:
  dir: /var/lib/primegrid
coordinator:
  default_batch_size: 5000
  client_timeout: 45s
  history_interval: 2m
logging:
  level: debug
  format: json
tracing:
  stdout: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "./web", cfg.Server.StaticDir)
	assert.Equal(t, "/var/lib/primegrid", cfg.Storage.Dir)
	assert.Equal(t, uint64(5000), cfg.Coordinator.DefaultBatchSize)
	assert.Equal(t, 45*time.Second, cfg.Coordinator.ClientTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Coordinator.HistoryInterval)
	assert.Equal(t, DefaultEvictionInterval, cfg.Coordinator.EvictionInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Tracing.Stdout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRIMEGRID_SERVER_ADDR", ":7000")
	t.Setenv("PRIMEGRID_STORAGE_DIR", "/tmp/pg")
	t.Setenv("PRIMEGRID_COORDINATOR_CLIENT_TIMEOUT", "30s")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":6000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/pg", cfg.Storage.Dir)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.ClientTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "batch size off the list", body: "coordinator:\n  default_batch_size: 123\n", want: ErrInvalidBatchSize},
		{name: "zero timeout", body: "coordinator:\n  client_timeout: 0s\n", want: ErrInvalidTimeout},
		{name: "zero interval", body: "coordinator:\n  eviction_interval: 0s\n", want: ErrInvalidInterval},
		{name: "log format", body: "logging:\n  format: xml\n", want: ErrInvalidLogFormat},
		{name: "empty addr", body: "server:\n  addr: \"\"\n", want: ErrMissingAddr},
		{name: "empty storage dir", body: "storage:\n  dir: \"\"\n", want: ErrMissingDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
