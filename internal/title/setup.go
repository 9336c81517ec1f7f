package title

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/magiclantern/cubetest/internal/core/event"
	"github.com/magiclantern/cubetest/internal/data"
	"github.com/magiclantern/cubetest/internal/mlmath"
	"github.com/magiclantern/cubetest/internal/scene"
	"github.com/magiclantern/cubetest/internal/scripting"
	"go.uber.org/zap"
)

// SnapshotSource supplies previously saved actor properties.
type SnapshotSource interface {
	Latest(ctx context.Context, actor string) (map[string][]byte, error)
}

// Content is what Setup populates the title with.
type Content struct {
	Surface scene.Surface
	Group   *data.Group
	Scripts *scripting.Engine // nil: actors may not name a behaviour
	Restore SnapshotSource    // nil: workprint values only
}

// Setup runs the setup protocol: stage, set (made current), then for each
// actor its properties, its role attached to the current set, and its init.
// Finally the QUIT, script reload, resize and destroy callbacks are
// installed. The first failure aborts setup, destroys everything setup
// created and is returned.
func (t *Title) Setup(ctx context.Context, c Content) (err error) {
	if c.Group == nil {
		return fmt.Errorf("%w: no workprint group", scene.ErrBinding)
	}
	if _, err := t.InitStage(c.Surface); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	defer func() {
		if err != nil {
			n := t.Destroy()
			t.log.Warn("setup failed, rolled back", zap.Int("objects", n), zap.Error(err))
		}
	}()

	set, err := t.AddSet(c.Group.Set)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	t.SetCurrentSet(set)

	encoded, err := c.Group.Encode()
	if err != nil {
		return fmt.Errorf("workprint %q: %w", c.Group.Name, err)
	}
	for _, def := range c.Group.Actors {
		if err := t.setupActor(ctx, def, encoded[def.Name], c); err != nil {
			return fmt.Errorf("actor %q: %w", def.Name, err)
		}
	}

	if err := t.InstallCallback(event.KindQuit, event.NewShutdownCallback(t.Exit), nil); err != nil {
		return fmt.Errorf("install quit callback: %w", err)
	}
	if c.Scripts != nil {
		if err := t.InstallCallback(event.KindScriptReload, reloadScripts, c.Scripts); err != nil {
			return fmt.Errorf("install reload callback: %w", err)
		}
	}
	if err := t.InstallCallback(event.KindResize, resizeStage, t.stage); err != nil {
		return fmt.Errorf("install resize callback: %w", err)
	}
	if err := t.InstallCallback(event.KindDestroy, destroyObject, t); err != nil {
		return fmt.Errorf("install destroy callback: %w", err)
	}

	t.log.Info("title setup complete",
		zap.String("group", c.Group.Name),
		zap.String("set", set.Name()),
		zap.Int("actors", len(c.Group.Actors)),
	)
	return nil
}

func (t *Title) setupActor(ctx context.Context, def data.ActorDef, props map[string][]byte, c Content) error {
	typ, ok := scene.LookupActorType(def.Type)
	if !ok {
		return fmt.Errorf("%w: unknown actor type %q", scene.ErrBinding, def.Type)
	}
	a := t.AddActor(def.Name, typ)

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := a.SetProperty(name, props[name]); err != nil {
			return err
		}
	}
	if c.Restore != nil {
		if err := t.restore(ctx, a, c.Restore); err != nil {
			return err
		}
	}

	if def.Behavior != "" {
		if c.Scripts == nil || !c.Scripts.Has(def.Behavior) {
			return fmt.Errorf("%w: behavior %q", scripting.ErrNoFunction, def.Behavior)
		}
		a.SetBehavior(c.Scripts.Behavior(def.Behavior))
	}

	r, err := t.AddRole(a)
	if err != nil {
		return err
	}
	if err := t.AttachRole(nil, r); err != nil {
		return err
	}
	return t.InitActor(a)
}

// restore overlays saved properties. A blob that no longer fits the actor's
// schema is skipped so a schema change never blocks startup.
func (t *Title) restore(ctx context.Context, a *scene.Actor, src SnapshotSource) error {
	saved, err := src.Latest(ctx, a.Name())
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	restored := 0
	for name, v := range saved {
		if err := a.SetProperty(name, v); err != nil {
			if errors.Is(err, scene.ErrUnknownProperty) || errors.Is(err, mlmath.ErrPropertyEncoding) {
				t.log.Warn("skipping saved property", zap.String("actor", a.Name()), zap.String("property", name), zap.Error(err))
				continue
			}
			return err
		}
		restored++
	}
	if restored > 0 {
		t.log.Info("restored actor", zap.String("actor", a.Name()), zap.Int("properties", restored))
	}
	return nil
}

func reloadScripts(_ *event.Event, closure any) error {
	return closure.(*scripting.Engine).Reload()
}

func resizeStage(ev *event.Event, closure any) error {
	size, ok := ev.Payload.(event.Resize)
	if !ok {
		return fmt.Errorf("resize payload is %T", ev.Payload)
	}
	closure.(*scene.Stage).Resize(size.Width, size.Height)
	return nil
}

func destroyObject(ev *event.Event, closure any) error {
	return closure.(*Title).DestroyObject(ev.Target)
}
