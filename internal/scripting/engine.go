package scripting

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/mlmath"
	"github.com/magiclantern/cubetest/internal/scene"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed builtin/*.lua
var builtin embed.FS

var ErrNoFunction = errors.New("lua function not found")

const (
	// DefaultCallTimeout bounds one behaviour call.
	DefaultCallTimeout = 100 * time.Millisecond

	// loadTimeout bounds executing one script file.
	loadTimeout = 2 * time.Second
)

// Engine wraps a single gopher-lua VM for actor behaviours.
// Single-goroutine access only (main loop).
type Engine struct {
	vm          *lua.LState
	dir         string
	callTimeout time.Duration
	log         *zap.Logger
}

// NewEngine creates a Lua engine, loads the built-in scripts, then every
// .lua file in dir. An empty dir loads the built-ins only.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, dir: dir, callTimeout: DefaultCallTimeout, log: log}
	if err := e.load(); err != nil {
		vm.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) load() error {
	if err := e.loadBuiltin(); err != nil {
		return fmt.Errorf("load builtin scripts: %w", err)
	}
	if e.dir == "" {
		return nil
	}
	if err := e.loadDir(e.dir); err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}
	return nil
}

func (e *Engine) loadBuiltin() error {
	entries, err := fs.ReadDir(builtin, "builtin")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := "builtin/" + entry.Name()
		src, err := builtin.ReadFile(name)
		if err != nil {
			return err
		}
		if err := e.bounded(loadTimeout, func() error { return e.vm.DoString(string(src)) }); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.bounded(loadTimeout, func() error { return e.vm.DoFile(path) }); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// SetCallTimeout sets how long one behaviour call may run before it is
// aborted with an error. Zero or less means unbounded.
func (e *Engine) SetCallTimeout(d time.Duration) { e.callTimeout = d }

// bounded runs fn with the VM cancelled after d.
func (e *Engine) bounded(d time.Duration, fn func() error) error {
	if d <= 0 {
		return fn()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()
	return fn()
}

// Reload re-executes every script so redefined functions take effect on the
// next tick. Globals a script no longer defines keep their old value.
func (e *Engine) Reload() error {
	if err := e.load(); err != nil {
		return err
	}
	e.log.Info("lua scripts reloaded", zap.String("dir", e.dir))
	return nil
}

// Has reports whether a global Lua function named fn exists.
func (e *Engine) Has(fn string) bool {
	_, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	return ok
}

// Behavior returns an actor behaviour that calls the Lua global fn each
// tick. The function is looked up on every call so reloads apply at once.
func (e *Engine) Behavior(fn string) scene.Behavior {
	return &luaBehavior{e: e, fn: fn}
}

type luaBehavior struct {
	e       *Engine
	fn      string
	elapsed float64
}

func (b *luaBehavior) Step(s *scene.ActorState, t system.Tick) error {
	vm := b.e.vm
	fn, ok := vm.GetGlobal(b.fn).(*lua.LFunction)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFunction, b.fn)
	}
	dt := t.Delta.Seconds()
	b.elapsed += dt

	st := vm.NewTable()
	st.RawSetString("tick", lua.LNumber(t.Number))
	st.RawSetString("dt", lua.LNumber(dt))
	st.RawSetString("elapsed", lua.LNumber(b.elapsed))
	st.RawSetString("position", vec3Table(vm, s.Position))
	st.RawSetString("scale", vec3Table(vm, s.Scale))
	spin := vec3Table(vm, s.Spin.Axis)
	spin.RawSetString("rate", lua.LNumber(s.Spin.Rate))
	st.RawSetString("spin", spin)

	err := b.e.bounded(b.e.callTimeout, func() error {
		return vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, st)
	})
	if err != nil {
		return fmt.Errorf("lua %s: %w", b.fn, err)
	}

	if tbl, ok := st.RawGetString("position").(*lua.LTable); ok {
		s.Position = readVec3(tbl)
	}
	if tbl, ok := st.RawGetString("scale").(*lua.LTable); ok {
		s.Scale = readVec3(tbl)
	}
	if tbl, ok := st.RawGetString("spin").(*lua.LTable); ok {
		s.Spin = scene.Spin{Axis: readVec3(tbl), Rate: lFloat(tbl, "rate")}
	}
	return nil
}

// --- Lua helpers ---

func vec3Table(vm *lua.LState, v mlmath.Vec3) *lua.LTable {
	t := vm.NewTable()
	t.RawSetString("x", lua.LNumber(v.X))
	t.RawSetString("y", lua.LNumber(v.Y))
	t.RawSetString("z", lua.LNumber(v.Z))
	return t
}

func readVec3(t *lua.LTable) mlmath.Vec3 {
	return mlmath.NewVec3(lFloat(t, "x"), lFloat(t, "y"), lFloat(t, "z"))
}

// lFloat reads a number field from a Lua table; non-numbers read as 0.
func lFloat(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
