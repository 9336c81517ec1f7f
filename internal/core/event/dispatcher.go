package event

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magiclantern/cubetest/internal/core/ecs"
	"go.uber.org/zap"
)

var ErrNilCallback = errors.New("nil event callback")

// Callback handles a delivered event. closure is the value given at install.
// The event belongs to the callbacks it is delivered to; it may be kept after
// the callback returns.
type Callback func(ev *Event, closure any) error

// CallbackID identifies an installed callback for UninstallCallback.
type CallbackID uint64

type registration struct {
	id      CallbackID
	cb      Callback
	closure any
	target  ecs.EntityID
}

// Dispatcher queues events posted from any goroutine and delivers them to
// registered callbacks when DispatchEvents runs on the loop goroutine.
type Dispatcher struct {
	mu       sync.Mutex // protects pending, handlers, nextID and seq
	pending  []Event
	handlers map[Kind][]registration
	nextID   CallbackID
	seq      uint64

	// loop goroutine only
	ready []Event
	regs  []registration

	now func() time.Time
	log *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pending:  make([]Event, 0, 64),
		handlers: make(map[Kind][]registration),
		now:      time.Now,
		log:      log,
	}
}

// InstallCallback registers cb for every event of kind. Callbacks for one
// kind run in installation order. Pending events are not affected.
func (d *Dispatcher) InstallCallback(kind Kind, cb Callback, closure any) (CallbackID, error) {
	return d.install(kind, cb, closure, 0)
}

// InstallTargetCallback registers cb only for events of kind addressed to target.
func (d *Dispatcher) InstallTargetCallback(kind Kind, target ecs.EntityID, cb Callback, closure any) (CallbackID, error) {
	if target.IsZero() {
		return 0, fmt.Errorf("install %s callback: zero target", kind)
	}
	return d.install(kind, cb, closure, target)
}

func (d *Dispatcher) install(kind Kind, cb Callback, closure any, target ecs.EntityID) (CallbackID, error) {
	if cb == nil {
		return 0, fmt.Errorf("install %s callback: %w", kind, ErrNilCallback)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[kind] = append(d.handlers[kind], registration{
		id:      d.nextID,
		cb:      cb,
		closure: closure,
		target:  target,
	})
	return d.nextID, nil
}

// UninstallCallback removes a callback. Returns false if id is unknown.
func (d *Dispatcher) UninstallCallback(id CallbackID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for kind, regs := range d.handlers {
		for i, r := range regs {
			if r.id != id {
				continue
			}
			d.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// PostOption adjusts a posted event.
type PostOption func(*Event, *time.Duration)

// WithTarget addresses the event to one object.
func WithTarget(id ecs.EntityID) PostOption {
	return func(ev *Event, _ *time.Duration) { ev.Target = id }
}

// WithDelay holds the event back until at least d has elapsed.
func WithDelay(d time.Duration) PostOption {
	return func(_ *Event, delay *time.Duration) { *delay = d }
}

// PostEvent queues an event and returns immediately. Safe from any goroutine.
func (d *Dispatcher) PostEvent(kind Kind, payload any, opts ...PostOption) {
	ev := Event{Kind: kind, Payload: payload}
	var delay time.Duration
	for _, opt := range opts {
		opt(&ev, &delay)
	}
	if delay > 0 {
		ev.due = d.now().Add(delay)
	}

	d.mu.Lock()
	d.seq++
	ev.seq = d.seq
	d.pending = append(d.pending, ev)
	d.mu.Unlock()
}

// Pending returns the number of queued events, ready or not.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// DispatchEvents removes every ready event in posting order and delivers it
// synchronously to each matching callback. Events posted by callbacks are
// delivered on the next call. Returns the number of events removed.
func (d *Dispatcher) DispatchEvents() int {
	now := d.now()

	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return 0
	}
	kept := d.pending[:0]
	for _, ev := range d.pending {
		if !ev.due.IsZero() && ev.due.After(now) {
			kept = append(kept, ev)
			continue
		}
		d.ready = append(d.ready, ev)
	}
	clear(d.pending[len(kept):])
	d.pending = kept
	d.mu.Unlock()

	for i := range d.ready {
		ev := new(Event)
		*ev = d.ready[i]
		regs := d.matching(ev)
		if len(regs) == 0 {
			if ce := d.log.Check(zap.DebugLevel, "event dropped, no callback"); ce != nil {
				ce.Write(zap.Stringer("kind", ev.Kind))
			}
			continue
		}
		for _, r := range regs {
			if err := safeCall(r, ev); err != nil {
				d.log.Error("event callback failed",
					zap.Stringer("kind", ev.Kind),
					zap.Uint64("callback", uint64(r.id)),
					zap.Error(err))
			}
		}
	}

	n := len(d.ready)
	clear(d.ready)
	d.ready = d.ready[:0]
	clear(d.regs)
	return n
}

// matching snapshots the callbacks that receive ev.
func (d *Dispatcher) matching(ev *Event) []registration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs = d.regs[:0]
	for _, r := range d.handlers[ev.Kind] {
		if r.target.IsZero() || r.target == ev.Target {
			d.regs = append(d.regs, r)
		}
	}
	return d.regs
}

func safeCall(r registration, ev *Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.cb(ev, r.closure)
}

// NewShutdownCallback returns the KindQuit handler that sets exit.
func NewShutdownCallback(exit *ExitSignal) Callback {
	return func(_ *Event, _ any) error {
		exit.Set()
		return nil
	}
}
