package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, script string) *Engine {
	t.Helper()
	dir := t.TempDir()
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "brain.lua"), []byte(script), 0o644))
	}
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestRunNpcBrainTarget(t *testing.T) {
	e := newEngine(t, `
function npc_brain(ctx)
  return { target_x = ctx.spawn_x + 10, target_y = ctx.spawn_y - 5 }
end
`)
	d, ok := e.RunNpcBrain(BrainContext{Sprite: "village_elder", SpawnX: 100, SpawnY: 200})
	require.True(t, ok)
	require.NotNil(t, d)
	assert.True(t, d.HasTarget)
	assert.Equal(t, 110.0, d.TargetX)
	assert.Equal(t, 195.0, d.TargetY)
	assert.Zero(t, d.IdleFor)
}

func TestRunNpcBrainIdle(t *testing.T) {
	e := newEngine(t, `
function npc_brain(ctx)
  return { idle_ms = 2500 }
end
`)
	d, ok := e.RunNpcBrain(BrainContext{Sprite: "village_elder"})
	require.True(t, ok)
	assert.False(t, d.HasTarget)
	assert.Equal(t, 2500*time.Millisecond, d.IdleFor)
}

func TestRunNpcBrainMissingFunction(t *testing.T) {
	e := newEngine(t, "")
	d, ok := e.RunNpcBrain(BrainContext{Sprite: "village_elder"})
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestRunNpcBrainErrorFallsBack(t *testing.T) {
	e := newEngine(t, `
function npc_brain(ctx)
  error("boom")
end
`)
	_, ok := e.RunNpcBrain(BrainContext{Sprite: "village_elder"})
	assert.False(t, ok)
}

func TestNewEngineMissingDirIsFine(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	require.NoError(t, err)
	e.Close()
}

func TestNewEngineBadScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644))
	_, err := NewEngine(dir, zap.NewNop())
	assert.Error(t, err)
}
