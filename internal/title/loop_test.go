package title

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magiclantern/cubetest/internal/core/event"
	"github.com/magiclantern/cubetest/internal/core/system"
	"go.uber.org/zap"
)

// exitAfter sets exit on its n-th update.
type exitAfter struct {
	n       uint64
	exit    *event.ExitSignal
	updates atomic.Uint64
}

func (e *exitAfter) Update(system.Tick) error {
	if e.updates.Add(1) == e.n {
		e.exit.Set()
	}
	return nil
}

func newLoop(t *testing.T, interval time.Duration) (*Mainloop, *system.Scheduler, *event.Dispatcher, *event.ExitSignal) {
	t.Helper()
	sched := system.NewScheduler(1, zap.NewNop())
	if err := sched.AddPhase(system.NewPhase(system.PhaseActor)); err != nil {
		t.Fatalf("AddPhase() failed: %v", err)
	}
	disp := event.NewDispatcher(zap.NewNop())
	exit := &event.ExitSignal{}
	return NewMainloop(sched, disp, exit, interval, zap.NewNop()), sched, disp, exit
}

func insert(t *testing.T, sched *system.Scheduler, u system.Updater) {
	t.Helper()
	p, _ := sched.Phase(system.PhaseActor)
	if err := p.Insert(u); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
}

func TestLoopStopsWithinOneIteration(t *testing.T) {
	loop, sched, _, exit := newLoop(t, 0)
	obj := &exitAfter{n: 3, exit: exit}
	insert(t, sched, obj)

	hooks := 0
	loop.AddMaintenance(func() { hooks++ })

	if err := loop.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got := loop.Iterations(); got != 3 {
		t.Errorf("Iterations() = %d, expected 3", got)
	}
	if obj.updates.Load() != 3 || hooks != 3 {
		t.Errorf("updates = %d, hooks = %d; expected 3 each", obj.updates.Load(), hooks)
	}
	if loop.State() != LoopStopped {
		t.Errorf("State() = %v, expected stopped", loop.State())
	}
}

func TestLoopExitSetFromAnotherGoroutine(t *testing.T) {
	loop, sched, _, exit := newLoop(t, 2*time.Millisecond)
	obj := &exitAfter{n: 0, exit: exit}
	insert(t, sched, obj)

	if err := loop.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	for obj.updates.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	exit.Set()
	seen := loop.Iterations()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	// The iteration in flight when the signal was set may still finish.
	if got := loop.Iterations(); got > seen+1 {
		t.Errorf("Iterations() = %d after signal at %d", got, seen)
	}
}

func TestLoopQuitEvent(t *testing.T) {
	loop, sched, disp, exit := newLoop(t, 0)
	obj := &exitAfter{exit: exit}
	insert(t, sched, obj)
	if _, err := disp.InstallCallback(event.KindQuit, event.NewShutdownCallback(exit), nil); err != nil {
		t.Fatalf("InstallCallback() failed: %v", err)
	}
	disp.PostEvent(event.KindQuit, nil)

	if err := loop.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	// QUIT is dispatched first thing, the scheduler still runs that
	// iteration, and the next check stops the loop.
	if loop.Iterations() != 1 || obj.updates.Load() != 1 {
		t.Errorf("iterations = %d, updates = %d; expected 1 each", loop.Iterations(), obj.updates.Load())
	}
}

func TestLoopStartIsOneShot(t *testing.T) {
	loop, _, _, exit := newLoop(t, 0)
	exit.Set()
	if err := loop.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if loop.Iterations() != 0 {
		t.Errorf("Iterations() = %d with exit preset, expected 0", loop.Iterations())
	}
	if err := loop.Start(); !errors.Is(err, ErrLoopStarted) {
		t.Errorf("Start() after Run = %v, expected ErrLoopStarted", err)
	}
	if err := loop.Run(); !errors.Is(err, ErrLoopStarted) {
		t.Errorf("second Run() = %v, expected ErrLoopStarted", err)
	}
}

func TestLoopWaitBeforeStart(t *testing.T) {
	loop, _, _, _ := newLoop(t, 0)
	if loop.State() != LoopIdle {
		t.Errorf("State() = %v, expected idle", loop.State())
	}
	if err := loop.Wait(context.Background()); err != nil {
		t.Errorf("Wait() on unstarted loop = %v", err)
	}
}

func TestFrameMetrics(t *testing.T) {
	var m FrameMetrics
	for i := 0; i < avgCount-1; i++ {
		m.Update(10 * time.Millisecond)
	}
	if m.FrameTime() != 0 {
		t.Errorf("FrameTime() = %v before a full window", m.FrameTime())
	}
	m.Update(10 * time.Millisecond)
	if m.FrameTime() != 10 {
		t.Errorf("FrameTime() = %v, expected 10", m.FrameTime())
	}
	for m.Frames() < 100 {
		m.Update(10 * time.Millisecond)
	}
	if m.FPS() != 100 {
		t.Errorf("FPS() = %v, expected 100", m.FPS())
	}
}
