package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Facts(t *testing.T) {
	t.Run("database, cache and app", func(t *testing.T) {
		t.Setenv("PTAGRAPH_DB", "/facts")
		t.Setenv("PTAGRAPH_CACHE", "/cache")
		t.Setenv("PTAGRAPH_APP", "luindex")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/facts", cfg.Facts.DBPath)
		assert.Equal(t, "/cache", cfg.Facts.CachePath)
		assert.Equal(t, "luindex", cfg.Facts.App)
	})

	t.Run("empty values leave the file untouched", func(t *testing.T) {
		clearEnv(t)

		cfg := &Config{Facts: FactsConfig{DBPath: "from-file", App: "pmd"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.Facts.DBPath)
		assert.Equal(t, "pmd", cfg.Facts.App)
	})

	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "ptagraph.yaml")
		cfg := DefaultConfig()
		cfg.Facts.App = "from-file"
		require.NoError(t, cfg.Save(path))

		t.Setenv("PTAGRAPH_APP", "from-env")
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", loaded.Facts.App)
	})
}

func TestEnvOverrides_Debug(t *testing.T) {
	tests := []struct {
		value string
		start bool
		want  bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"false", true, false},
		{"maybe", true, true},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("PTAGRAPH_DEBUG", tt.value)
			cfg := &Config{Logging: LoggingConfig{DebugMode: tt.start}}
			cfg.applyEnvOverrides()
			assert.Equal(t, tt.want, cfg.Logging.DebugMode)
		})
	}
}
