package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		PathEnv, "GATEWAY_URL", "GATEWAY_USERNAME", "GATEWAY_PASSWORD", "GATEWAY_DEVICES_URL",
		"GATEWAY_FORMAT", "GATEWAY_SNAPSHOT_FILE", "POLL_INTERVAL", "FETCH_TIMEOUT",
		"DATABASE_DRIVER", "DATABASE_URL", "PG_DSN", "HTTP_ADDR", "TIMEZONE", "LOG_LEVEL", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netpresence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
gateway:
  base_url: http://192.168.1.1
  username: admin
  password: secret
  format: json
poll:
  interval: 5m
database:
  driver: pgx
  dsn: postgres://localhost/netpresence
timezone: Europe/Berlin
logging:
  level: debug
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.1", cfg.Gateway.BaseURL)
	assert.Equal(t, "json", cfg.Gateway.Format)
	assert.Equal(t, "txt_Username", cfg.Gateway.UsernameField)
	assert.Equal(t, 5*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 60*time.Second, cfg.Poll.FetchTimeout)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway:\n  base_url: http://192.168.1.1\n")
	t.Setenv("GATEWAY_URL", "http://10.0.0.1")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("PG_DSN", "postgres://db/netpresence")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1", cfg.Gateway.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "postgres://db/netpresence", cfg.Database.DSN)
	assert.True(t, cfg.Logging.Debug)
}

func TestLoad_UsesPathEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway:\n  snapshot_file: testdata/page.html\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "testdata/page.html", cfg.Gateway.SnapshotFile)
}

func TestLoadFile_Validation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "timezone: Mars/Olympus\npoll:\n  interval: 0s\n")

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.base_url")
	assert.Contains(t, err.Error(), "poll.interval")
	assert.Contains(t, err.Error(), "timezone")
}

func TestLoadFile_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadFile_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(writeConfig(t, "gateway: [unterminated"))
	require.Error(t, err)
}
