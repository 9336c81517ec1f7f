package system

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConfiguration = errors.New("scheduler configuration")
	ErrRuntimeUpdate = errors.New("runtime update")
)

// Scheduler executes its phases in a fixed order, once each per Run.
// The phase sequence is sealed by the first Run.
type Scheduler struct {
	mu       sync.Mutex // protects phases and started
	capacity int
	phases   []*Phase
	started  bool

	ticking  atomic.Bool
	ticks    uint64
	failures atomic.Uint64
	last     time.Time
	now      func() time.Time
	buf      []Updater

	log *zap.Logger
}

// NewScheduler creates a scheduler that accepts up to capacity phases.
func NewScheduler(capacity int, log *zap.Logger) *Scheduler {
	return &Scheduler{
		capacity: capacity,
		phases:   make([]*Phase, 0, max(capacity, 0)),
		now:      time.Now,
		log:      log,
	}
}

// AddPhase appends p to the execution order.
func (s *Scheduler) AddPhase(p *Phase) error {
	if p == nil {
		return fmt.Errorf("%w: nil phase", ErrConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: add phase %q after first run", ErrConfiguration, p.name)
	}
	if len(s.phases) >= s.capacity {
		return fmt.Errorf("%w: phase %q exceeds capacity %d", ErrConfiguration, p.name, s.capacity)
	}
	for _, existing := range s.phases {
		if existing.name == p.name {
			return fmt.Errorf("%w: duplicate phase %q", ErrConfiguration, p.name)
		}
	}
	p.mu.Lock()
	if p.owner != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: phase %q belongs to another scheduler", ErrConfiguration, p.name)
	}
	p.owner = s
	p.mu.Unlock()
	s.phases = append(s.phases, p)
	return nil
}

// Phase looks up a phase by name.
func (s *Scheduler) Phase(name string) (*Phase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.phases {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Phases returns the phases in execution order.
func (s *Scheduler) Phases() []*Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Phase, len(s.phases))
	copy(out, s.phases)
	return out
}

// Ticks returns how many times Run has completed. Loop goroutine only.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Failures returns the number of isolated update failures so far.
func (s *Scheduler) Failures() uint64 { return s.failures.Load() }

// Run executes one tick. Every phase runs, in order, even when empty; every
// object in a phase runs in registration order. A failing object is logged
// and skipped without affecting its siblings or later phases.
func (s *Scheduler) Run() {
	s.mu.Lock()
	s.started = true
	phases := s.phases
	s.mu.Unlock()

	now := s.now()
	t := Tick{Number: s.ticks + 1}
	if !s.last.IsZero() {
		t.Delta = now.Sub(s.last)
	}
	s.last = now

	s.ticking.Store(true)
	defer s.ticking.Store(false)

	for _, p := range phases {
		s.buf = p.snapshot(s.buf)
		if ce := s.log.Check(zap.DebugLevel, "run phase"); ce != nil {
			ce.Write(zap.String("phase", p.name), zap.Int("objects", len(s.buf)), zap.Uint64("tick", t.Number))
		}
		for _, u := range s.buf {
			if err := safeUpdate(u, t); err != nil {
				s.failures.Add(1)
				s.log.Error("object update failed",
					zap.String("phase", p.name),
					zap.Uint64("tick", t.Number),
					zap.Error(fmt.Errorf("%w: %T: %w", ErrRuntimeUpdate, u, err)))
			}
		}
	}
	clear(s.buf)
	s.ticks++
}

func safeUpdate(u Updater, t Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return u.Update(t)
}
