package engine

import (
	"math"
	"time"

	"github.com/fernvale/server/internal/scripting"
	"github.com/fernvale/server/internal/world"
)

// snapEpsilon absorbs float error when deciding whether the remaining
// distance fits inside one tick of travel.
const snapEpsilon = 1e-9

// Tunables are the behavior knobs, converted from config at wiring time.
type Tunables struct {
	TickPeriod          time.Duration
	IdleMin             time.Duration
	IdleMax             time.Duration
	RespawnIdle         time.Duration
	StalenessMultiplier int
	AggroStopDistance   float64
	AggroDuration       time.Duration
	// MaxLeashDistance > 0 clamps chase destinations to a circle of that
	// radius around the spawn point; 0 means chases are unbounded.
	MaxLeashDistance float64
}

// stepEnv carries everything one NPC step may read. resolveTarget and
// brain are bound per NPC by the tick; rand is injected so tests are
// deterministic.
type stepEnv struct {
	now           time.Time
	dt            float64 // seconds per tick
	cfg           Tunables
	rand          func() float64
	resolveTarget func(profileID string) (world.Vec2, bool)
	brain         func(n *world.NpcState) *scripting.BrainDecision
}

func (env *stepEnv) idleWindow() time.Duration {
	spread := env.cfg.IdleMax - env.cfg.IdleMin
	if spread <= 0 {
		return env.cfg.IdleMin
	}
	return env.cfg.IdleMin + time.Duration(env.rand()*float64(spread))
}

// stepNpc advances one NPC by one tick and returns the resulting patch.
// The boolean reports whether anything needs writing; a false return means
// the row is skipped entirely. Branches are mutually exclusive and
// evaluated in priority order: defeated, chase, idle, wander.
func stepNpc(n *world.NpcState, env *stepEnv) (world.NpcPatch, bool) {
	now := env.now
	tick := now
	p := world.NpcPatch{ID: n.ID, TickedAt: &tick}

	// Defeated NPCs are untouched until their respawn time arrives.
	if n.RespawnAt != nil {
		if now.Before(*n.RespawnAt) {
			return world.NpcPatch{ID: n.ID}, false
		}
		respawn(n, &p, env)
		return p, true
	}

	if n.AggroTarget != "" && n.AggroUntil != nil && now.Before(*n.AggroUntil) {
		if target, ok := env.resolveTarget(n.AggroTarget); ok {
			return chase(n, target, &p, env)
		}
		// Target logged out or left the map: drop the lock and wander
		// this same tick.
		p.ClearAggro = true
		p.ClearTarget = true
	} else if n.AggroTarget != "" || n.AggroUntil != nil {
		// Lock expired: clear it and fall through, so the NPC resumes
		// wandering without waiting an extra tick.
		p.ClearAggro = true
		p.ClearTarget = true
	}

	if n.IdleUntil != nil && now.Before(*n.IdleUntil) {
		changed := p.ClearAggro
		if n.Vel != (world.Vec2{}) {
			p.Vel = &world.Vec2{}
			changed = true
		}
		if n.Phase != world.PhaseIdle {
			ph := world.PhaseIdle
			p.Phase = &ph
			changed = true
		}
		if !changed {
			return world.NpcPatch{ID: n.ID}, false
		}
		return p, true
	}

	target := n.Target
	if p.ClearTarget {
		target = nil
	}
	if target == nil {
		target = decideWanderTarget(n, &p, env)
		if target == nil {
			// Brain chose to idle instead.
			return p, true
		}
	}
	moveToward(n, *target, world.PhaseWander, true, &p, env)
	return p, true
}

// respawn resets a defeated NPC at its spawn point with full HP and a
// short post-respawn idle window.
func respawn(n *world.NpcState, p *world.NpcPatch, env *stepEnv) {
	pos := n.Spawn
	hp := n.MaxHP
	idle := env.now.Add(env.cfg.RespawnIdle)
	ph := world.PhaseIdle

	p.Pos = &pos
	p.Vel = &world.Vec2{}
	p.HP = &hp
	p.ClearDefeat = true
	p.ClearAggro = true
	p.ClearTarget = true
	p.IdleUntil = &idle
	p.Phase = &ph
}

// chase moves an NPC toward an aggro target. The destination bypasses the
// wander radius but honors the leash when one is configured; inside the
// stop distance the NPC stands still and faces the player.
func chase(n *world.NpcState, playerPos world.Vec2, p *world.NpcPatch, env *stepEnv) (world.NpcPatch, bool) {
	dest := playerPos
	if env.cfg.MaxLeashDistance > 0 {
		dest = clampToDisc(playerPos, n.Spawn, env.cfg.MaxLeashDistance)
	}

	delta := dest.Sub(n.Pos)
	if delta.Len() <= env.cfg.AggroStopDistance {
		changed := false
		if n.Vel != (world.Vec2{}) {
			p.Vel = &world.Vec2{}
			changed = true
		}
		face := playerPos.Sub(n.Pos)
		if f := world.FacingFromDelta(face.X, face.Y); (face != world.Vec2{}) && n.Facing != f {
			p.Facing = &f
			changed = true
		}
		if n.Target != nil {
			p.ClearTarget = true
			changed = true
		}
		if n.Phase != world.PhaseChase {
			ph := world.PhaseChase
			p.Phase = &ph
			changed = true
		}
		if !changed {
			return world.NpcPatch{ID: n.ID}, false
		}
		return *p, true
	}

	tgt := dest
	p.Target = &tgt
	moveToward(n, dest, world.PhaseChase, false, p, env)
	return *p, true
}

// decideWanderTarget picks the next wander destination, consulting the
// scripted brain when one is bound. Returns nil when the brain chose an
// idle window instead; the patch is already filled in that case.
func decideWanderTarget(n *world.NpcState, p *world.NpcPatch, env *stepEnv) *world.Vec2 {
	if env.brain != nil {
		if d := env.brain(n); d != nil {
			if d.IdleFor > 0 {
				idle := env.now.Add(d.IdleFor)
				ph := world.PhaseIdle
				p.IdleUntil = &idle
				p.Phase = &ph
				if n.Vel != (world.Vec2{}) {
					p.Vel = &world.Vec2{}
				}
				return nil
			}
			if d.HasTarget {
				t := clampToDisc(world.Vec2{X: d.TargetX, Y: d.TargetY}, n.Spawn, n.WanderRadius)
				p.Target = &t
				return &t
			}
		}
	}

	angle := env.rand() * 2 * math.Pi
	dist := env.rand() * n.WanderRadius
	t := world.Vec2{
		X: n.Spawn.X + math.Cos(angle)*dist,
		Y: n.Spawn.Y + math.Sin(angle)*dist,
	}
	p.Target = &t
	return &t
}

// moveToward integrates one tick of travel toward a destination. Within
// one tick's reach the NPC snaps onto the destination and stops; with
// idleOnArrive it also starts a fresh idle window.
func moveToward(n *world.NpcState, dest world.Vec2, phase world.Phase, idleOnArrive bool, p *world.NpcPatch, env *stepEnv) {
	delta := dest.Sub(n.Pos)
	remaining := delta.Len()
	travel := n.Speed * env.dt

	if remaining <= travel+snapEpsilon {
		pos := dest
		ph := world.PhaseIdle
		p.Pos = &pos
		p.Vel = &world.Vec2{}
		p.ClearTarget = true
		p.Target = nil
		p.Phase = &ph
		if idleOnArrive {
			idle := env.now.Add(env.idleWindow())
			p.IdleUntil = &idle
		}
		return
	}

	dir := delta.Scale(1 / remaining)
	pos := n.Pos.Add(dir.Scale(travel))
	vel := dir.Scale(n.Speed)
	f := world.FacingFromDelta(dir.X, dir.Y)
	ph := phase

	p.Pos = &pos
	p.Vel = &vel
	p.Facing = &f
	p.Phase = &ph
}

// clampToDisc pulls a point inside the circle (center, radius) along the
// ray from the center.
func clampToDisc(pt, center world.Vec2, radius float64) world.Vec2 {
	delta := pt.Sub(center)
	d := delta.Len()
	if d <= radius || d == 0 {
		return pt
	}
	return center.Add(delta.Scale(radius / d))
}
