// Package engine is the NPC behavior engine: a self-rescheduling tick
// loop that advances every NPC's wander/chase/idle/respawn state machine
// and persists the results as one transactional batch per tick.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/core/event"
	"github.com/fernvale/server/internal/data"
	"github.com/fernvale/server/internal/sched"
	"github.com/fernvale/server/internal/scripting"
	"github.com/fernvale/server/internal/world"
)

// tickTimeout bounds one tick's database work.
const tickTimeout = 30 * time.Second

type Engine struct {
	store   NpcStore
	players PlayerLocator
	objects ObjectSource
	sprites *data.SpriteTable
	scripts *scripting.Engine // nil disables scripted brains
	cfg     Tunables
	sched   *sched.Scheduler
	log     *zap.Logger

	pending  atomic.Bool  // a future tick is already scheduled
	lastTick atomic.Int64 // unix nanos of the last completed tick
	ensureMu sync.Mutex
}

func New(store NpcStore, players PlayerLocator, objects ObjectSource, sprites *data.SpriteTable, scripts *scripting.Engine, cfg Tunables, sch *sched.Scheduler, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		players: players,
		objects: objects,
		sprites: sprites,
		scripts: scripts,
		cfg:     cfg,
		sched:   sch,
		log:     log,
	}
}

// Tick runs one pass of the behavior loop: load every NPC, step each one,
// commit the patches as a batch, and reschedule. Never exposed to
// clients; the scheduler and EnsureRunning are the only callers.
//
// An empty NPC set lets the loop go dormant (no reschedule); sync restarts
// it when NPCs reappear. An error return also suppresses the reschedule,
// and the staleness watchdog recovers on the next EnsureRunning.
func (e *Engine) Tick(ctx context.Context) error {
	e.pending.Store(false)

	npcs, err := e.store.ListNpcs(ctx)
	if err != nil {
		return fmt.Errorf("tick: list npcs: %w", err)
	}
	if len(npcs) == 0 {
		e.log.Debug("tick: no npcs, loop dormant")
		return nil
	}

	now := time.Now()
	env := &stepEnv{
		now:  now,
		dt:   e.cfg.TickPeriod.Seconds(),
		cfg:  e.cfg,
		rand: rand.Float64,
	}

	patches := make([]world.NpcPatch, 0, len(npcs))
	for i := range npcs {
		n := &npcs[i]
		env.resolveTarget = e.locatorFor(ctx, n.MapName)
		env.brain = e.brainFor(n)
		if p, write := stepNpc(n, env); write {
			patches = append(patches, p)
		}
	}

	if len(patches) > 0 {
		applied, skipped, err := e.store.ApplyPatches(ctx, patches)
		if err != nil {
			return fmt.Errorf("tick: apply patches: %w", err)
		}
		for _, serr := range skipped {
			e.log.Warn("tick: patch skipped", zap.Error(serr))
		}
		e.log.Debug("tick complete",
			zap.Int("npcs", len(npcs)),
			zap.Int("applied", applied),
			zap.Int("skipped", len(skipped)))
	}

	e.lastTick.Store(now.UnixNano())
	e.scheduleNext()
	return nil
}

// EnsureRunning restarts the tick loop if it looks dead: no scheduled
// tick in this process and no row ticked within the staleness window.
// Idempotent and safe to call from any request handler; a false return
// means the loop was already healthy (or there is nothing to tick).
func (e *Engine) EnsureRunning(ctx context.Context) (bool, error) {
	e.ensureMu.Lock()
	defer e.ensureMu.Unlock()

	if e.pending.Load() {
		return false, nil
	}

	last, count, err := e.store.LatestTick(ctx)
	if err != nil {
		return false, fmt.Errorf("ensure running: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	stale := time.Duration(e.cfg.StalenessMultiplier) * e.cfg.TickPeriod
	if !last.IsZero() && time.Since(last) < stale {
		return false, nil
	}
	// Rows legitimately stop updating while every NPC idles; the
	// in-process tick time covers that case.
	if lt := e.lastTick.Load(); lt != 0 && time.Since(time.Unix(0, lt)) < stale {
		return false, nil
	}

	e.log.Info("tick loop stale, restarting",
		zap.Time("last_row_tick", last),
		zap.Int("npcs", count))
	if err := e.Tick(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListNpcsOnMap exposes the row listing for the HTTP surface.
func (e *Engine) ListNpcsOnMap(ctx context.Context, mapName string) ([]world.NpcState, error) {
	return e.store.ListNpcsOnMap(ctx, mapName)
}

// BindBus subscribes the lifecycle sync to map-editing events.
func (e *Engine) BindBus(b *event.Bus) {
	resync := func(mapName string) {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if _, err := e.SyncMap(ctx, mapName); err != nil {
			e.log.Error("map sync failed", zap.String("map", mapName), zap.Error(err))
		}
	}
	event.Subscribe(b, func(ev event.ObjectPlaced) { resync(ev.MapName) })
	event.Subscribe(b, func(ev event.ObjectRemoved) { resync(ev.MapName) })
	event.Subscribe(b, func(ev event.MapEdited) { resync(ev.MapName) })
}

// Stop cancels any scheduled tick. In-flight ticks finish on their own.
func (e *Engine) Stop() {
	e.sched.Stop()
}

func (e *Engine) scheduleNext() {
	if !e.pending.CompareAndSwap(false, true) {
		return
	}
	ok := e.sched.After(e.cfg.TickPeriod, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if err := e.Tick(ctx); err != nil {
			e.log.Error("npc tick failed", zap.Error(err))
		}
	})
	if !ok {
		e.pending.Store(false)
	}
}

func (e *Engine) locatorFor(ctx context.Context, mapName string) func(string) (world.Vec2, bool) {
	return func(profileID string) (world.Vec2, bool) {
		pos, ok, err := e.players.PlayerPosition(ctx, mapName, profileID)
		if err != nil {
			e.log.Warn("resolve aggro target failed",
				zap.String("map", mapName),
				zap.String("profile", profileID),
				zap.Error(err))
			return world.Vec2{}, false
		}
		return pos, ok
	}
}

func (e *Engine) brainFor(n *world.NpcState) func(*world.NpcState) *scripting.BrainDecision {
	if e.scripts == nil {
		return nil
	}
	def := e.sprites.Get(n.Sprite)
	if def == nil || def.Brain != data.BrainScripted {
		return nil
	}
	return func(n *world.NpcState) *scripting.BrainDecision {
		d, ok := e.scripts.RunNpcBrain(scripting.BrainContext{
			Sprite:       n.Sprite,
			Name:         n.Name,
			MapName:      n.MapName,
			X:            n.Pos.X,
			Y:            n.Pos.Y,
			SpawnX:       n.Spawn.X,
			SpawnY:       n.Spawn.Y,
			Speed:        n.Speed,
			WanderRadius: n.WanderRadius,
		})
		if !ok {
			return nil
		}
		return d
	}
}
