package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/data"
	"github.com/fernvale/server/internal/world"
)

// Behavior fallbacks for NPC sprites whose definition carries no values.
const (
	fallbackSpeed        = 30.0 // px/s
	fallbackWanderRadius = 64.0 // px
	fallbackRespawnDelay = 30 * time.Second
)

// SyncReport counts what one SyncMap pass did.
type SyncReport struct {
	Created   int `json:"created"`
	Patched   int `json:"patched"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// SyncMap reconciles the NPC rows of one map against its placed objects:
// create rows for newly placed NPC objects, patch rows whose instance
// name or resolved behavior changed (never position or target), delete
// rows whose object is gone, then make sure the tick loop runs if any
// NPC remains. A second call with no object changes performs zero writes.
func (e *Engine) SyncMap(ctx context.Context, mapName string) (SyncReport, error) {
	var rep SyncReport

	objs, err := e.objects.ListObjects(ctx, mapName)
	if err != nil {
		return rep, fmt.Errorf("sync %s: list objects: %w", mapName, err)
	}
	overrides, err := e.objects.ListOverrides(ctx, mapName)
	if err != nil {
		return rep, fmt.Errorf("sync %s: list overrides: %w", mapName, err)
	}
	ovr := make(map[string]world.BehaviorOverride, len(overrides))
	for _, o := range overrides {
		ovr[o.InstanceName] = o
	}

	existing, err := e.store.ListNpcsOnMap(ctx, mapName)
	if err != nil {
		return rep, fmt.Errorf("sync %s: list npcs: %w", mapName, err)
	}
	byObject := make(map[string]*world.NpcState, len(existing))
	for i := range existing {
		byObject[existing[i].ObjectID] = &existing[i]
	}

	now := time.Now()
	desired := 0
	var patches []world.NpcPatch
	for _, obj := range objs {
		def := e.sprites.Get(obj.Sprite)
		if !def.IsNpc() {
			continue
		}
		desired++
		speed, wander := resolveBehavior(def, ovr, obj.InstanceName)

		cur, ok := byObject[obj.ID]
		if !ok {
			n := seedNpc(obj, def, speed, wander, now)
			if err := e.store.CreateNpc(ctx, n); err != nil {
				e.log.Warn("sync: create npc failed",
					zap.String("map", mapName),
					zap.String("object", obj.ID),
					zap.Error(err))
				continue
			}
			rep.Created++
			continue
		}
		delete(byObject, obj.ID)

		p := world.NpcPatch{ID: cur.ID}
		if cur.Name != obj.InstanceName {
			name := obj.InstanceName
			p.Name = &name
		}
		if cur.Speed != speed {
			p.Speed = &speed
		}
		if cur.WanderRadius != wander {
			p.WanderRadius = &wander
		}
		if p.IsZero() {
			rep.Unchanged++
		} else {
			patches = append(patches, p)
			rep.Patched++
		}
	}

	// Whatever is left has no backing object anymore.
	for _, orphan := range byObject {
		removed, err := e.store.DeleteNpc(ctx, orphan.ID)
		if err != nil {
			e.log.Warn("sync: delete npc failed",
				zap.String("npc", orphan.ID),
				zap.Error(err))
			continue
		}
		if removed {
			rep.Deleted++
		}
	}

	if len(patches) > 0 {
		if _, skipped, err := e.store.ApplyPatches(ctx, patches); err != nil {
			return rep, fmt.Errorf("sync %s: apply patches: %w", mapName, err)
		} else if len(skipped) > 0 {
			for _, serr := range skipped {
				e.log.Warn("sync: patch skipped", zap.Error(serr))
			}
		}
	}

	if desired > 0 {
		if _, err := e.EnsureRunning(ctx); err != nil {
			e.log.Warn("sync: ensure tick loop failed", zap.Error(err))
		}
	}

	e.log.Info("map synced",
		zap.String("map", mapName),
		zap.Int("created", rep.Created),
		zap.Int("patched", rep.Patched),
		zap.Int("deleted", rep.Deleted),
		zap.Int("unchanged", rep.Unchanged))
	return rep, nil
}

// resolveBehavior applies the precedence: instance override, then sprite
// definition, then hard-coded fallback.
func resolveBehavior(def *data.SpriteDef, ovr map[string]world.BehaviorOverride, instanceName string) (speed, wander float64) {
	speed = fallbackSpeed
	wander = fallbackWanderRadius
	if def.Speed > 0 {
		speed = def.Speed
	}
	if def.WanderRadius > 0 {
		wander = def.WanderRadius
	}
	if instanceName != "" {
		if o, ok := ovr[instanceName]; ok {
			if o.Speed != nil {
				speed = *o.Speed
			}
			if o.WanderRadius != nil {
				wander = *o.WanderRadius
			}
		}
	}
	return speed, wander
}

// seedNpc builds the initial row for a newly placed NPC object. The id is
// derived from the object id, so re-creating after a delete is stable and
// a double create collides instead of duplicating.
func seedNpc(obj world.PlacedObject, def *data.SpriteDef, speed, wander float64, now time.Time) *world.NpcState {
	idle := now
	return &world.NpcState{
		ID:           "npc:" + obj.ID,
		MapName:      obj.MapName,
		ObjectID:     obj.ID,
		Sprite:       obj.Sprite,
		Name:         obj.InstanceName,
		Phase:        world.PhaseIdle,
		Pos:          obj.Pos,
		Spawn:        obj.Pos,
		Facing:       world.FacingSouth,
		Speed:        speed,
		WanderRadius: wander,
		IdleUntil:    &idle, // immediately eligible to move
		CurrentHP:    def.MaxHP,
		MaxHP:        def.MaxHP,
		// TickedAt stays zero until the first tick touches the row, so a
		// dormant loop reads as stale and gets restarted.
	}
}
