package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mover/pkg/uring"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "/tmp/mover.sock", cfg.Socket.Path)
	assert.Equal(t, "memory", cfg.Backend.Type)
	assert.Equal(t, uint32(4096), cfg.Ring.Entries)
	assert.Equal(t, uring.SetupClamp, cfg.Ring.FlagBits)
	assert.Equal(t, 256, cfg.Buffers.Count)
	assert.Equal(t, 4096, cfg.Buffers.Size)
	assert.Equal(t, 10*time.Millisecond, cfg.Batch.Timeout())
	assert.Equal(t, 32, cfg.Server.MaxConnections)
	assert.False(t, cfg.Features.HugePages)
	assert.True(t, cfg.Features.ZeroCopySend)
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"

socket:
  path: "/run/mover/mover.sock"

backend:
  type: "badger"
  badger:
    path: "/var/lib/mover/db"

ring:
  entries: 2048
  flags: "clamp,sqpoll"

buffers:
  count: 64
  size: 8192
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "/run/mover/mover.sock", cfg.Socket.Path)
	assert.Equal(t, "badger", cfg.Backend.Type)
	assert.Equal(t, uint32(2048), cfg.Ring.Entries)
	assert.Equal(t, uring.SetupClamp|uring.SetupSQPoll, cfg.Ring.FlagBits)
	assert.Equal(t, 64, cfg.Buffers.Count)
	assert.Equal(t, 8192, cfg.Buffers.Size)

	// Unspecified sections fall back to defaults.
	assert.Equal(t, uint64(10), cfg.Batch.TimeoutMS)
	assert.Equal(t, 32, cfg.Server.MaxConnections)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MOVER_RING_ENTRIES", "512")
	t.Setenv("MOVER_SOCKET_PATH", "/tmp/mover-test.sock")
	t.Setenv("MOVER_FEATURES_ZERO_COPY_SEND", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint32(512), cfg.Ring.Entries)
	assert.Equal(t, "/tmp/mover-test.sock", cfg.Socket.Path)
	assert.False(t, cfg.Features.ZeroCopySend)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("MOVER_RING_ENTRIES", "1000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power of two")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestNewStore_Memory(t *testing.T) {
	s, err := NewStore(t.Context(), BackendConfig{Type: "memory"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(t.Context(), "id", []byte("data")))
	data, err := s.Get(t.Context(), "id")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestNewStore_Badger(t *testing.T) {
	s, err := NewStore(t.Context(), BackendConfig{
		Type:   "badger",
		Badger: map[string]any{"in_memory": true},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(t.Context(), "id", []byte("data")))
	data, err := s.Get(t.Context(), "id")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestNewStore_UnknownType(t *testing.T) {
	_, err := NewStore(t.Context(), BackendConfig{Type: "redis"})
	require.Error(t, err)
}
