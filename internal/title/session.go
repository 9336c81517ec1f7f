package title

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/magiclantern/cubetest/internal/config"
	"github.com/magiclantern/cubetest/internal/data"
	"github.com/magiclantern/cubetest/internal/persist"
	"github.com/magiclantern/cubetest/internal/scene"
	"github.com/magiclantern/cubetest/internal/scripting"
	"go.uber.org/zap"
)

var (
	ErrSessionTerminated = errors.New("session terminated")
	ErrSessionStarted    = errors.New("session already started")
	ErrSessionNotStarted = errors.New("session not started")
)

// SnapshotStore persists actor state across sessions.
type SnapshotStore interface {
	SnapshotSource
	Save(ctx context.Context, s persist.SessionSnapshot) error
}

// Options configures a Session.
type Options struct {
	Config    *config.Config
	Surface   scene.Surface
	Group     *data.Group   // nil: Config.Workprint.Path, else the built-in cube
	Snapshots SnapshotStore // nil: nothing saved or restored
}

// Session maps platform lifecycle callbacks onto one title and its loop. A
// paused session is terminal; resuming needs a new Session.
type Session struct {
	opts Options
	log  *zap.Logger

	// set by OnPause at any time, even before the title exists
	pauseRequested atomic.Bool

	mu      sync.Mutex
	started bool
	paused  bool
	done    bool

	title       *Title
	loop        *Mainloop
	scripts     *scripting.Engine
	stopWatch   context.CancelFunc
	watcherDone chan struct{}
}

func NewSession(opts Options, log *zap.Logger) *Session {
	return &Session{opts: opts, log: log}
}

// OnStart runs setup, resumes the stage and starts the main loop. A setup
// failure is returned and the loop never starts. If OnPause arrived during
// setup the loop is not started either and ErrSessionTerminated is returned;
// Teardown still releases the title.
func (s *Session) OnStart(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	cfg := s.opts.Config
	t, err := New(cfg, s.log)
	if err != nil {
		return fmt.Errorf("create title: %w", err)
	}
	group, err := s.group()
	if err != nil {
		return err
	}
	scripts, err := scripting.NewEngine(cfg.Scripting.Dir, t.Log().Named("lua"))
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	scripts.SetCallTimeout(cfg.Scripting.CallTimeout)

	content := Content{Surface: s.opts.Surface, Group: group, Scripts: scripts}
	if cfg.Database.Restore && s.opts.Snapshots != nil {
		content.Restore = s.opts.Snapshots
	}
	if err := t.Setup(ctx, content); err != nil {
		scripts.Close()
		return fmt.Errorf("setup: %w", err)
	}

	loop := NewMainloop(t.Scheduler, t.Dispatcher, t.Exit, cfg.Loop.FrameInterval, t.Log().Named("loop"))
	loop.AddMaintenance(func() { t.World.FlushDestroyQueue() })

	var watcher *scripting.Watcher
	if cfg.Scripting.Watch && cfg.Scripting.Dir != "" {
		watcher, err = scripting.NewWatcher(cfg.Scripting.Dir, t.Dispatcher, t.Log().Named("watch"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			t.Log().Warn("script dir missing, not watching", zap.String("dir", cfg.Scripting.Dir))
		case err != nil:
			t.Destroy()
			scripts.Close()
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.title, s.loop, s.scripts = t, loop, scripts
	if watcher != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.stopWatch = cancel
		s.watcherDone = make(chan struct{})
		go func() {
			defer close(s.watcherDone)
			watcher.Run(watchCtx)
		}()
	}

	if s.pauseRequested.Load() {
		s.pauseLocked()
		return ErrSessionTerminated
	}
	t.Stage().Resume()
	return loop.Start()
}

func (s *Session) group() (*data.Group, error) {
	if s.opts.Group != nil {
		return s.opts.Group, nil
	}
	if p := s.opts.Config.Workprint.Path; p != "" {
		return data.LoadWorkprint(p)
	}
	return data.DefaultWorkprint(), nil
}

// OnPause pauses the stage and sets the exit signal. The loop stops within
// one iteration.
func (s *Session) OnPause() {
	s.pauseRequested.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
}

func (s *Session) pauseLocked() {
	if s.title == nil || s.paused {
		return
	}
	s.paused = true
	s.title.Stage().Pause()
	s.title.Exit.Set()
}

// OnResume reports whether the running session can continue. Once paused,
// or once the loop stopped on QUIT, it returns ErrSessionTerminated.
func (s *Session) OnResume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.title == nil {
		return ErrSessionNotStarted
	}
	if s.paused || s.done || s.title.Exit.IsSet() {
		return ErrSessionTerminated
	}
	s.title.Stage().Resume()
	return nil
}

// Teardown stops the loop if needed, waits for it, saves a snapshot and
// destroys every title object. Safe to call more than once.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.title == nil || s.done {
		return nil
	}
	s.pauseLocked()
	if err := s.loop.Wait(ctx); err != nil {
		return fmt.Errorf("wait for main loop: %w", err)
	}
	s.done = true

	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watcherDone
	}

	var saveErr error
	if s.opts.Snapshots != nil {
		if err := s.opts.Snapshots.Save(ctx, s.title.Snapshot()); err != nil {
			saveErr = fmt.Errorf("save snapshot: %w", err)
		} else {
			s.title.Log().Info("snapshot saved")
		}
	}
	s.title.Destroy()
	s.scripts.Close()
	return saveErr
}

func (s *Session) Title() *Title {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Loop() *Mainloop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Done is closed when the main loop stops, whether by pause or QUIT.
// Nil before OnStart.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return nil
	}
	return s.loop.Done()
}
