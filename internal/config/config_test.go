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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "livehook.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Second, cfg.Hub.HeartbeatInterval)
	assert.Equal(t, 64, cfg.Hub.QueueSize)
	assert.Equal(t, "memory", cfg.Geo.CacheBackend)
	assert.Equal(t, 10, cfg.API.DefaultLimit)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livehook.yaml")
	yaml := `
server:
  port: 8081
hub:
  heartbeat_interval: 5s
geo:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("LIVEHOOK_DATABASE_PATH", "/tmp/hooks.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Hub.HeartbeatInterval)
	assert.False(t, cfg.Geo.Enabled)
	assert.Equal(t, "/tmp/hooks.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Geo.CacheBackend = "memcached"
	err = cfg.Validate()
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "geo.cache_backend")
}

func TestReplayURL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3000", cfg.ReplayURL())

	cfg.Server.Host = "::"
	assert.Equal(t, "http://[::1]:3000", cfg.ReplayURL())

	cfg.Server.Host = "10.1.2.3"
	assert.Equal(t, "http://10.1.2.3:3000", cfg.ReplayURL())

	cfg.Server.PublicURL = "https://hooks.example.com/"
	assert.Equal(t, "https://hooks.example.com", cfg.ReplayURL())
}
