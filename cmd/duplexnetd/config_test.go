package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duplexnetd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.WebSocket.Enabled)
	assert.Equal(t, ":8080", cfg.WebSocket.Addr)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.False(t, cfg.TCP.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
dev_logging = true
encoding = "utf8"

[websocket]
enabled = false

[tcp]
enabled = true
addr = ":9500"

[metrics]
addr = ":9200"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.DevLogging)
	assert.False(t, cfg.WebSocket.Enabled)
	assert.True(t, cfg.TCP.Enabled)
	assert.Equal(t, ":9500", cfg.TCP.Addr)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
}

func TestLoadConfigRejectsNoTransports(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[websocket]
enabled = false

[tcp]
enabled = false
`)

	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
