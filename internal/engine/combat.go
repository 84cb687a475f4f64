package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fernvale/server/internal/world"
)

// ApplyHit is the combat collaborator's entry point. It touches only the
// combat lifecycle fields (HP, last hit, aggro lock, defeat timestamps);
// position and wander state stay owned by the tick. Returns the NPC state
// after the hit.
func (e *Engine) ApplyHit(ctx context.Context, npcID, attackerID string, damage int) (*world.NpcState, error) {
	if damage < 0 {
		return nil, fmt.Errorf("apply hit: damage must be >= 0, got %d", damage)
	}

	n, err := e.store.GetNpc(ctx, npcID)
	if err != nil {
		return nil, fmt.Errorf("apply hit: %w", err)
	}
	if n == nil {
		return nil, fmt.Errorf("apply hit %s: %w", npcID, world.ErrNotFound)
	}
	if n.MaxHP <= 0 {
		return nil, fmt.Errorf("apply hit %s: sprite %s is not attackable", npcID, n.Sprite)
	}
	if n.RespawnAt != nil {
		// Already defeated; nothing to do until respawn.
		return n, nil
	}

	now := time.Now()
	hp := n.CurrentHP - damage
	if hp < 0 {
		hp = 0
	}

	p := world.NpcPatch{ID: n.ID, HP: &hp, LastHitAt: &now}
	if hp > 0 {
		if attackerID != "" {
			p.Aggro = &world.AggroLock{
				TargetID: attackerID,
				Until:    now.Add(e.cfg.AggroDuration),
			}
		}
	} else {
		delay := fallbackRespawnDelay
		if def := e.sprites.Get(n.Sprite); def != nil && def.RespawnDelay > 0 {
			delay = time.Duration(def.RespawnDelay) * time.Second
		}
		ph := world.PhaseDefeated
		p.Phase = &ph
		p.Vel = &world.Vec2{}
		p.ClearTarget = true
		p.ClearAggro = true
		p.Defeat = &world.DefeatTimes{
			DefeatedAt: now,
			RespawnAt:  now.Add(delay),
		}
	}

	if _, skipped, err := e.store.ApplyPatches(ctx, []world.NpcPatch{p}); err != nil {
		return nil, fmt.Errorf("apply hit %s: %w", npcID, err)
	} else if len(skipped) > 0 {
		return nil, fmt.Errorf("apply hit %s: %w", npcID, skipped[0])
	}

	after := *n
	p.Apply(&after)
	return &after, nil
}
