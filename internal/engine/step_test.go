package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernvale/server/internal/scripting"
	"github.com/fernvale/server/internal/world"
)

func testTunables() Tunables {
	return Tunables{
		TickPeriod:          time.Second,
		IdleMin:             2 * time.Second,
		IdleMax:             6 * time.Second,
		RespawnIdle:         1500 * time.Millisecond,
		StalenessMultiplier: 4,
		AggroStopDistance:   24,
		AggroDuration:       8 * time.Second,
	}
}

func testStepEnv(now time.Time) *stepEnv {
	return &stepEnv{
		now:           now,
		dt:            1.0,
		cfg:           testTunables(),
		rand:          func() float64 { return 0.5 },
		resolveTarget: func(string) (world.Vec2, bool) { return world.Vec2{}, false },
	}
}

func wanderer(now time.Time) world.NpcState {
	return world.NpcState{
		ID:           "n1",
		MapName:      "meadow",
		Sprite:       "forest_slime",
		Phase:        world.PhaseIdle,
		Pos:          world.Vec2{X: 100, Y: 100},
		Spawn:        world.Vec2{X: 100, Y: 100},
		Facing:       world.FacingSouth,
		Speed:        30,
		WanderRadius: 80,
	}
}

func TestStepIdleNoChangesSkipsWrite(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	idle := now.Add(3 * time.Second)
	n.IdleUntil = &idle

	_, write := stepNpc(&n, testStepEnv(now))
	assert.False(t, write, "an already-still idle NPC needs no write")
}

func TestStepIdleZerosVelocity(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	idle := now.Add(3 * time.Second)
	n.IdleUntil = &idle
	n.Vel = world.Vec2{X: 12, Y: 0}
	n.Phase = world.PhaseWander

	p, write := stepNpc(&n, testStepEnv(now))
	require.True(t, write)
	require.NotNil(t, p.Vel)
	assert.Equal(t, world.Vec2{}, *p.Vel)
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseIdle, *p.Phase)
	assert.Nil(t, p.Pos, "idle never moves")
}

func TestStepPicksWanderTargetInsideDisc(t *testing.T) {
	now := time.Now()
	n := wanderer(now)

	// rand 0.5 twice: angle = pi, distance = 40 -> target (60, 100).
	p, write := stepNpc(&n, testStepEnv(now))
	require.True(t, write)
	require.NotNil(t, p.Target)
	assert.InDelta(t, 60, p.Target.X, 1e-9)
	assert.InDelta(t, 100, p.Target.Y, 1e-9)
	assert.LessOrEqual(t, p.Target.Sub(n.Spawn).Len(), n.WanderRadius)

	// 40px away at 30 px/s over 1s: advance 30px west.
	require.NotNil(t, p.Pos)
	assert.InDelta(t, 70, p.Pos.X, 1e-9)
	require.NotNil(t, p.Vel)
	assert.InDelta(t, -30, p.Vel.X, 1e-9)
	require.NotNil(t, p.Facing)
	assert.Equal(t, world.FacingWest, *p.Facing)
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseWander, *p.Phase)
}

func TestStepSnapsToTargetAndIdles(t *testing.T) {
	// 30 px/s over a 1.5s tick covers 45px; 40px remain, so the NPC snaps
	// onto the target and starts an idle window instead of overshooting.
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 0, Y: 0}
	n.Spawn = world.Vec2{X: 0, Y: 0}
	n.Target = &world.Vec2{X: 40, Y: 0}
	n.Phase = world.PhaseWander

	env := testStepEnv(now)
	env.dt = 1.5

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Pos)
	assert.Equal(t, world.Vec2{X: 40, Y: 0}, *p.Pos)
	require.NotNil(t, p.Vel)
	assert.Equal(t, world.Vec2{}, *p.Vel)
	assert.True(t, p.ClearTarget)
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseIdle, *p.Phase)
	require.NotNil(t, p.IdleUntil)
	gap := p.IdleUntil.Sub(now)
	assert.GreaterOrEqual(t, gap, env.cfg.IdleMin)
	assert.LessOrEqual(t, gap, env.cfg.IdleMax)
}

func TestStepMonotonicApproach(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 0, Y: 0}
	n.Spawn = world.Vec2{X: 0, Y: 0}
	n.Target = &world.Vec2{X: 55, Y: 33}

	env := testStepEnv(now)
	prev := n.Target.Sub(n.Pos).Len()
	for i := 0; i < 10; i++ {
		p, write := stepNpc(&n, env)
		require.True(t, write)
		p.Apply(&n)
		if n.Target == nil {
			assert.Equal(t, world.Vec2{X: 55, Y: 33}, n.Pos, "arrival is exact")
			return
		}
		d := n.Target.Sub(n.Pos).Len()
		assert.Less(t, d, prev, "distance shrinks every tick")
		prev = d
	}
	t.Fatal("never arrived")
}

func TestStepChaseMovesTowardPlayer(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 0, Y: 0}
	until := now.Add(5 * time.Second)
	n.AggroTarget = "p1"
	n.AggroUntil = &until

	env := testStepEnv(now)
	env.resolveTarget = func(id string) (world.Vec2, bool) {
		require.Equal(t, "p1", id)
		return world.Vec2{X: 200, Y: 0}, true
	}

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Target)
	assert.Equal(t, world.Vec2{X: 200, Y: 0}, *p.Target, "chase target bypasses the wander radius")
	require.NotNil(t, p.Pos)
	assert.InDelta(t, 30, p.Pos.X, 1e-9)
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseChase, *p.Phase)
	require.NotNil(t, p.Facing)
	assert.Equal(t, world.FacingEast, *p.Facing)
	assert.False(t, p.ClearAggro)
}

func TestStepChaseWithinStopStands(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 0, Y: 0}
	n.Vel = world.Vec2{X: 30, Y: 0}
	n.Phase = world.PhaseWander
	n.Target = &world.Vec2{X: 50, Y: 0}
	until := now.Add(5 * time.Second)
	n.AggroTarget = "p1"
	n.AggroUntil = &until

	env := testStepEnv(now)
	env.resolveTarget = func(string) (world.Vec2, bool) {
		return world.Vec2{X: 0, Y: 10}, true
	}

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Vel)
	assert.Equal(t, world.Vec2{}, *p.Vel)
	assert.True(t, p.ClearTarget)
	require.NotNil(t, p.Facing)
	assert.Equal(t, world.FacingSouth, *p.Facing, "faces the player")
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseChase, *p.Phase)
	assert.Nil(t, p.Pos, "no movement inside the stop distance")

	// Already standing and facing: the second tick writes nothing.
	p.Apply(&n)
	_, write = stepNpc(&n, env)
	assert.False(t, write)
}

func TestStepChaseLeashClampsDestination(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 0, Y: 0}
	n.Spawn = world.Vec2{X: 0, Y: 0}
	until := now.Add(5 * time.Second)
	n.AggroTarget = "p1"
	n.AggroUntil = &until

	env := testStepEnv(now)
	env.cfg.MaxLeashDistance = 50
	env.resolveTarget = func(string) (world.Vec2, bool) {
		return world.Vec2{X: 200, Y: 0}, true
	}

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Target)
	assert.InDelta(t, 50, p.Target.X, 1e-9, "destination clamped to the leash circle")

	// Leash 0 keeps chases unbounded.
	env.cfg.MaxLeashDistance = 0
	n2 := wanderer(now)
	n2.Pos = world.Vec2{X: 0, Y: 0}
	n2.AggroTarget = "p1"
	n2.AggroUntil = &until
	p2, _ := stepNpc(&n2, env)
	require.NotNil(t, p2.Target)
	assert.InDelta(t, 200, p2.Target.X, 1e-9)
}

func TestStepExpiredAggroWandersSameTick(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	expired := now.Add(-time.Second)
	n.AggroTarget = "p1"
	n.AggroUntil = &expired

	p, write := stepNpc(&n, testStepEnv(now))
	require.True(t, write)
	assert.True(t, p.ClearAggro)
	require.NotNil(t, p.Target, "wanders on the same tick, not the next one")
	require.NotNil(t, p.Pos)
}

func TestStepUnresolvableAggroTargetDropsLock(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	until := now.Add(5 * time.Second)
	n.AggroTarget = "gone"
	n.AggroUntil = &until

	env := testStepEnv(now)
	env.resolveTarget = func(string) (world.Vec2, bool) { return world.Vec2{}, false }

	p, write := stepNpc(&n, env)
	require.True(t, write)
	assert.True(t, p.ClearAggro)
	assert.NotNil(t, p.Target)
}

func TestStepDefeatedPendingRespawnUntouched(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	defeated := now.Add(-10 * time.Second)
	respawn := now.Add(20 * time.Second)
	n.Phase = world.PhaseDefeated
	n.DefeatedAt = &defeated
	n.RespawnAt = &respawn

	_, write := stepNpc(&n, testStepEnv(now))
	assert.False(t, write)
}

func TestStepRespawnResets(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Pos = world.Vec2{X: 140, Y: 90}
	n.MaxHP = 40
	n.CurrentHP = 0
	n.Phase = world.PhaseDefeated
	defeated := now.Add(-30 * time.Second)
	respawn := now.Add(-time.Second)
	n.DefeatedAt = &defeated
	n.RespawnAt = &respawn
	n.AggroTarget = "p1"
	n.AggroUntil = &respawn

	env := testStepEnv(now)
	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Pos)
	assert.Equal(t, n.Spawn, *p.Pos)
	require.NotNil(t, p.HP)
	assert.Equal(t, 40, *p.HP)
	assert.True(t, p.ClearDefeat)
	assert.True(t, p.ClearAggro)
	assert.True(t, p.ClearTarget)
	require.NotNil(t, p.IdleUntil)
	assert.Equal(t, now.Add(env.cfg.RespawnIdle), *p.IdleUntil)
	require.NotNil(t, p.Phase)
	assert.Equal(t, world.PhaseIdle, *p.Phase)
}

func TestStepBrainIdleDecision(t *testing.T) {
	now := time.Now()
	n := wanderer(now)
	n.Vel = world.Vec2{X: 5, Y: 0}

	env := testStepEnv(now)
	env.brain = func(*world.NpcState) *scripting.BrainDecision {
		return &scripting.BrainDecision{IdleFor: 4 * time.Second}
	}

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.IdleUntil)
	assert.Equal(t, now.Add(4*time.Second), *p.IdleUntil)
	require.NotNil(t, p.Vel)
	assert.Equal(t, world.Vec2{}, *p.Vel)
	assert.Nil(t, p.Target)
}

func TestStepBrainTargetClampedToDisc(t *testing.T) {
	now := time.Now()
	n := wanderer(now)

	env := testStepEnv(now)
	env.brain = func(*world.NpcState) *scripting.BrainDecision {
		return &scripting.BrainDecision{HasTarget: true, TargetX: 1000, TargetY: 100}
	}

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Target)
	assert.InDelta(t, n.WanderRadius, p.Target.Sub(n.Spawn).Len(), 1e-9,
		"out-of-disc brain target gets pulled onto the disc edge")
}

func TestStepBrainNoOpinionFallsBack(t *testing.T) {
	now := time.Now()
	n := wanderer(now)

	env := testStepEnv(now)
	env.brain = func(*world.NpcState) *scripting.BrainDecision { return nil }

	p, write := stepNpc(&n, env)
	require.True(t, write)
	require.NotNil(t, p.Target, "built-in wander picks the target")
}

func TestClampToDisc(t *testing.T) {
	center := world.Vec2{X: 10, Y: 10}
	inside := world.Vec2{X: 12, Y: 12}
	assert.Equal(t, inside, clampToDisc(inside, center, 50))

	far := world.Vec2{X: 110, Y: 10}
	got := clampToDisc(far, center, 25)
	assert.InDelta(t, 35, got.X, 1e-9)
	assert.InDelta(t, 10, got.Y, 1e-9)
	assert.InDelta(t, 25, got.Sub(center).Len(), 1e-9)

	assert.Equal(t, center, clampToDisc(center, center, 25))
}

func TestIdleWindowBounds(t *testing.T) {
	env := testStepEnv(time.Now())
	for _, r := range []float64{0, 0.25, 0.999} {
		env.rand = func() float64 { return r }
		w := env.idleWindow()
		assert.GreaterOrEqual(t, w, env.cfg.IdleMin)
		assert.Less(t, float64(w), float64(env.cfg.IdleMax)+1)
	}
}

func TestStepWanderDistanceUniformBounds(t *testing.T) {
	now := time.Now()
	env := testStepEnv(now)
	for _, r := range []float64{0, 0.1, 0.9} {
		rv := r
		env.rand = func() float64 { return rv }
		n := wanderer(now)
		p, _ := stepNpc(&n, env)
		if p.Target != nil {
			d := p.Target.Sub(n.Spawn).Len()
			assert.LessOrEqual(t, d, n.WanderRadius+1e-9)
			assert.InDelta(t, rv*n.WanderRadius, d, 1e-9)
		} else {
			// A target within one tick of travel snaps immediately; the
			// landing spot is still the uniformly drawn distance out.
			require.NotNil(t, p.Pos)
			assert.InDelta(t, rv*n.WanderRadius, p.Pos.Sub(n.Spawn).Len(), 1e-9)
		}
	}
}
