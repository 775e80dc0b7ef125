package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "shadow.json", `{
  "storage": {"backend": "badger"},
  "checkpoint": {"policy": "approved"},
  "log_level": "debug"
}`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendBadger, cfg.Storage.Backend)
		assert.Equal(t, ".shadow", cfg.Storage.Dir)
		assert.Equal(t, PolicyApproved, cfg.Checkpoint.Policy)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "shadow.yaml", `
storage:
  dir: .vcs
snapshots:
  cache_size: 8
watch:
  debounce_ms: 50
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ".vcs", cfg.Storage.Dir)
		assert.Equal(t, 8, cfg.Snapshots.CacheSize)
		assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
		assert.Equal(t, filepath.Join("/ws", ".vcs", "working"), cfg.EngineRoot("/ws", "working"))
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"backend", `{"storage": {"backend": "sqlite"}}`},
			{"policy", `{"checkpoint": {"policy": "some"}}`},
			{"absolute dir", `{"storage": {"dir": "/var/shadow"}}`},
			{"cache", `{"snapshots": {"cache_size": 0}}`},
			{"syntax", `{"storage": `},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Load(writeFile(t, "shadow.json", tt.body))
				assert.Error(t, err)
			})
		}
	})
}
