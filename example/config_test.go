package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BIFROST_CONFIG", "")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "@every 10m", cfg.Session.SweepSchedule)
	assert.Equal(t, "sqlite", cfg.Backend.Driver)
	assert.Equal(t, "bifrost.db", cfg.Backend.Path)
	assert.Equal(t, "memory", cfg.Lock.Driver)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bifrost.yaml")
	err := os.WriteFile(path, []byte(`
addr: ":7000"
session:
  ttl: 2h
backend:
  driver: postgres
  dsn: postgres://localhost/sessions
lock:
  driver: redis
`), 0o600)
	require.NoError(t, err)

	t.Setenv("BIFROST_SESSION_TTL", "30m")

	cfg, err := loadConfig([]string{"--config", path, "--addr", ":9090"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr, "flag beats file")
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL, "env beats file")
	assert.Equal(t, "postgres", cfg.Backend.Driver)
	assert.Equal(t, "postgres://localhost/sessions", cfg.Backend.DSN)
	assert.Equal(t, "redis", cfg.Lock.Driver)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr, "default survives")
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bifrost.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr": ":6000"}`), 0o600))
	t.Setenv("BIFROST_CONFIG", path)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("BIFROST_CONFIG", "")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"BIFROST_BACKEND_DRIVER": "oracle"}},
		{name: "mysql without dsn", env: map[string]string{"BIFROST_BACKEND_DRIVER": "mysql"}},
		{name: "unknown lock", env: map[string]string{"BIFROST_LOCK_DRIVER": "zookeeper"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(nil)
			assert.Error(t, err)
		})
	}

	_, err := loadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
