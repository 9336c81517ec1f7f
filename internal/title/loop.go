package title

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/magiclantern/cubetest/internal/core/event"
	"github.com/magiclantern/cubetest/internal/core/system"
	"go.uber.org/zap"
)

var ErrLoopStarted = errors.New("main loop already started")

// LoopState is the lifecycle of a Mainloop. Stopped is terminal.
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopStopped:
		return "stopped"
	}
	return "unknown"
}

// Mainloop runs the title on one goroutine. Each iteration checks the exit
// signal, dispatches ready events, runs every scheduler phase, then runs the
// maintenance hooks. With a frame interval set, the rest of the interval is
// slept away, so a set exit signal is seen at most one interval later.
type Mainloop struct {
	sched    *system.Scheduler
	disp     *event.Dispatcher
	exit     *event.ExitSignal
	interval time.Duration
	hooks    []func()

	state      atomic.Int32
	started    atomic.Bool
	iterations atomic.Uint64
	done       chan struct{}
	metrics    FrameMetrics

	log *zap.Logger
}

func NewMainloop(sched *system.Scheduler, disp *event.Dispatcher, exit *event.ExitSignal, interval time.Duration, log *zap.Logger) *Mainloop {
	return &Mainloop{
		sched:    sched,
		disp:     disp,
		exit:     exit,
		interval: interval,
		done:     make(chan struct{}),
		log:      log,
	}
}

// AddMaintenance registers a hook run after each scheduler pass. Must be
// called before Start.
func (l *Mainloop) AddMaintenance(fn func()) {
	l.hooks = append(l.hooks, fn)
}

// Start runs the loop on a new goroutine. A loop runs at most once.
func (l *Mainloop) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopStarted
	}
	l.state.Store(int32(LoopRunning))
	go l.run()
	return nil
}

// Run runs the loop on the calling goroutine until the exit signal is set.
func (l *Mainloop) Run() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopStarted
	}
	l.state.Store(int32(LoopRunning))
	l.run()
	return nil
}

func (l *Mainloop) run() {
	defer close(l.done)
	l.log.Info("main loop started", zap.Duration("frame_interval", l.interval))

	for !l.exit.IsSet() {
		start := time.Now()

		l.disp.DispatchEvents()
		l.sched.Run()
		for _, fn := range l.hooks {
			fn()
		}
		l.iterations.Add(1)

		if l.interval > 0 {
			if rest := l.interval - time.Since(start); rest > 0 {
				time.Sleep(rest)
			}
		}
		l.metrics.Update(time.Since(start))
	}

	l.state.Store(int32(LoopStopped))
	l.log.Info("main loop stopped",
		zap.Uint64("iterations", l.iterations.Load()),
		zap.Uint64("update_failures", l.sched.Failures()),
		zap.Float64("avg_frame_ms", l.metrics.FrameTime()),
		zap.Float64("fps", l.metrics.FPS()),
	)
}

func (l *Mainloop) State() LoopState { return LoopState(l.state.Load()) }

// Iterations returns the number of completed iterations.
func (l *Mainloop) Iterations() uint64 { return l.iterations.Load() }

// Done is closed when the loop has stopped.
func (l *Mainloop) Done() <-chan struct{} { return l.done }

// Wait blocks until the loop stops or ctx ends. A loop that was never
// started returns immediately.
func (l *Mainloop) Wait(ctx context.Context) error {
	if !l.started.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics returns the frame metrics. Only meaningful once stopped.
func (l *Mainloop) Metrics() *FrameMetrics { return &l.metrics }
