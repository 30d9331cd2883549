package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 6, cfg.Runner.MaxIterations)
	assert.Equal(t, 10*time.Second, cfg.Tools.DefaultTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Tools.AbortGrace)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("should reject zero iterations", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Runner.MaxIterations = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject unknown session backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Session.Backend = "redis"
		assert.Error(t, cfg.Validate())
	})

	t.Run("should require db path for sqlite backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Session.Backend = "sqlite"
		assert.Error(t, cfg.Validate())

		cfg.Session.DBPath = "/tmp/sessions.db"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should reject unknown default provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers.Default = "bedrock"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults when file missing", func(t *testing.T) {
		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Runner.MaxIterations)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("should load overrides from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nagare.json")
		body := `{"runner": {"max_iterations": 3}, "session": {"backend": "sqlite", "db_path": "/tmp/s.db"}}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Runner.MaxIterations)
		assert.Equal(t, "sqlite", cfg.Session.Backend)
	})

	t.Run("should fail on invalid overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nagare.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"runner": {"max_iterations": -1}}`), 0600))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}
