package scene

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/mlmath"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrSurfaceUnavailable = errors.New("presentation surface unavailable")

// Transform is re-exported so frame consumers need not import mlmath.
type Transform = mlmath.Transform

// Surface presents finished frames. Implementations live outside the core.
type Surface interface {
	Present(f Frame) error
}

// Stage owns the presentation surface. One per session.
type Stage struct {
	surface Surface
	current func() *Set

	width, height atomic.Uint32
	active        atomic.Bool
	presented     atomic.Uint64
	skipped       atomic.Uint64
	initialized   bool

	log *zap.Logger
}

// NewStage creates a stage presenting the set returned by current.
func NewStage(surface Surface, width, height uint32, current func() *Set, log *zap.Logger) *Stage {
	s := &Stage{surface: surface, current: current, log: log}
	s.width.Store(width)
	s.height.Store(height)
	return s
}

func (s *Stage) Init() error {
	if s.surface == nil {
		return fmt.Errorf("init stage: %w", ErrSurfaceUnavailable)
	}
	if s.current == nil {
		return fmt.Errorf("%w: stage has no current set source", ErrBinding)
	}
	s.initialized = true
	return nil
}

// Resume marks the surface valid. Called by the platform, any goroutine.
func (s *Stage) Resume() {
	s.active.Store(true)
	s.log.Info("stage resumed")
}

// Pause marks the surface invalid. Called by the platform, any goroutine.
func (s *Stage) Pause() {
	s.active.Store(false)
	s.log.Info("stage paused")
}

func (s *Stage) Active() bool { return s.active.Load() }

// Resize records a new surface size for subsequent frames.
func (s *Stage) Resize(width, height uint32) {
	s.width.Store(width)
	s.height.Store(height)
}

func (s *Stage) Size() (uint32, uint32) { return s.width.Load(), s.height.Load() }

// Presented returns how many frames reached the surface.
func (s *Stage) Presented() uint64 { return s.presented.Load() }

// Skipped returns how many frames were dropped while paused.
func (s *Stage) Skipped() uint64 { return s.skipped.Load() }

// Update presents the current set's frame. Runs in the Stage phase, last.
// While paused the frame is dropped; the loop is about to stop anyway.
func (s *Stage) Update(_ system.Tick) error {
	if !s.initialized {
		return fmt.Errorf("stage: %w", ErrNotInitialized)
	}
	if !s.active.Load() {
		s.skipped.Add(1)
		return nil
	}
	set := s.current()
	if set == nil {
		return nil
	}
	f := set.Frame()
	f.Width, f.Height = s.Size()
	if err := s.surface.Present(f); err != nil {
		return fmt.Errorf("present frame %d: %w", f.Tick, err)
	}
	s.presented.Add(1)
	return nil
}

// LogSurface is a headless surface that reports frames to the logger.
type LogSurface struct {
	Log   *zap.Logger
	Every uint64 // log one frame in Every; 0 logs all
}

func (l *LogSurface) Present(f Frame) error {
	if l.Every > 1 && f.Tick%l.Every != 0 {
		return nil
	}
	if ce := l.Log.Check(zap.DebugLevel, "frame"); ce != nil {
		fields := []zap.Field{
			zap.Uint64("tick", f.Tick),
			zap.String("set", f.Set),
			zap.Int("items", len(f.Items)),
		}
		for _, it := range f.Items {
			fields = append(fields, zap.Object(it.Name, renderableMarshaler(it)))
		}
		ce.Write(fields...)
	}
	return nil
}

type renderableMarshaler Renderable

func (r renderableMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", r.ID.String())
	p, q := r.Transform.Position, r.Transform.Rotation
	enc.AddFloat32("x", p.X)
	enc.AddFloat32("y", p.Y)
	enc.AddFloat32("z", p.Z)
	enc.AddFloat32("qx", q.X)
	enc.AddFloat32("qy", q.Y)
	enc.AddFloat32("qz", q.Z)
	enc.AddFloat32("qw", q.W)
	return nil
}
