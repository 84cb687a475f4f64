package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
world_key = "shard-7"

[engine]
tick_period_ms = 1500
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shard-7", cfg.Server.WorldKey)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.TickPeriod())
	// untouched knobs keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Engine.IdleMin())
	assert.Equal(t, 4, cfg.Engine.StalenessMultiplier)
	assert.Equal(t, 64.0, cfg.Spatial.ChunkWidth)
	assert.Equal(t, ":8080", cfg.API.Bind)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
[server]
name = "from-env"
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("does-not-exist.toml")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero tick", "[engine]\ntick_period_ms = 0\n"},
		{"inverted idle window", "[engine]\nidle_min_ms = 5000\nidle_max_ms = 1000\n"},
		{"zero staleness", "[engine]\nstaleness_multiplier = 0\n"},
		{"negative leash", "[engine]\nmax_leash_distance = -1.0\n"},
		{"zero chunk", "[spatial]\nchunk_width = 0.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().validate())
}
