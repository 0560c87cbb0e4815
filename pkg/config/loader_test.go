package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load(testLogger(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Empty(t, cfg.Server.WSAddress)
	assert.Equal(t, 24*time.Hour, cfg.Server.Auth.TokenTTL)
	assert.Equal(t, 120*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, uint32(1<<20), cfg.Transport.MaxFrameSize)
	assert.Equal(t, 50, cfg.History.PageSize)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  address: ":7777"
  wsAddress: ":7778"
  connectionLimit: 100
  auth:
    jwtSecret: file-secret
    tokenTTL: 1h
history:
  pageSize: 10
ai:
  enabled: true
  apiKey: test-key
logLevel: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := config.Load(testLogger(), "config")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, ":7778", cfg.Server.WSAddress)
	assert.Equal(t, 100, cfg.Server.ConnectionLimit)
	assert.Equal(t, "file-secret", cfg.Server.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Server.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.History.PageSize)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, "test-key", cfg.AI.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unspecified keys keep their defaults.
	assert.Equal(t, 120*time.Second, cfg.Transport.ReadTimeout)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not a map"), 0o644))
	chdir(t, dir)

	_, err := config.Load(testLogger(), "config")
	assert.Error(t, err)
}
