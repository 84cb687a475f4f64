// Package scripting hosts the Lua VM behind scripted NPC brains. Go keeps
// perception, clamping, and movement integration; Lua only answers "where
// should this NPC wander next, or how long should it idle".
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Calls are serialized with a mutex;
// overlapping ticks are rare but tolerated.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. A missing directory is not an error; the VM just has no
// brains defined and every sprite falls back to the built-in behavior.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// BrainContext holds pre-packed perception data for one NPC decision.
type BrainContext struct {
	Sprite       string
	Name         string
	MapName      string
	X, Y         float64
	SpawnX       float64
	SpawnY       float64
	Speed        float64
	WanderRadius float64
}

// BrainDecision is what a Lua brain may return: a wander destination, an
// idle duration, or both zero-valued (meaning "no opinion").
type BrainDecision struct {
	HasTarget bool
	TargetX   float64
	TargetY   float64
	IdleFor   time.Duration
}

// RunNpcBrain calls the Lua npc_brain(ctx) function. Returns (nil, false)
// when no such function is defined or the call fails, which sends the NPC
// to the built-in state machine.
func (e *Engine) RunNpcBrain(ctx BrainContext) (*BrainDecision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("npc_brain")
	if fn == lua.LNil {
		return nil, false
	}

	t := e.vm.NewTable()
	t.RawSetString("sprite", lua.LString(ctx.Sprite))
	t.RawSetString("name", lua.LString(ctx.Name))
	t.RawSetString("map", lua.LString(ctx.MapName))
	t.RawSetString("x", lua.LNumber(ctx.X))
	t.RawSetString("y", lua.LNumber(ctx.Y))
	t.RawSetString("spawn_x", lua.LNumber(ctx.SpawnX))
	t.RawSetString("spawn_y", lua.LNumber(ctx.SpawnY))
	t.RawSetString("speed", lua.LNumber(ctx.Speed))
	t.RawSetString("wander_radius", lua.LNumber(ctx.WanderRadius))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua npc_brain error", zap.Error(err), zap.String("sprite", ctx.Sprite))
		return nil, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, false
	}

	d := &BrainDecision{}
	if ms := lInt(rt, "idle_ms"); ms > 0 {
		d.IdleFor = time.Duration(ms) * time.Millisecond
	}
	tx := rt.RawGetString("target_x")
	ty := rt.RawGetString("target_y")
	if tx != lua.LNil && ty != lua.LNil {
		d.HasTarget = true
		d.TargetX = float64(lua.LVAsNumber(tx))
		d.TargetY = float64(lua.LVAsNumber(ty))
	}
	return d, true
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
