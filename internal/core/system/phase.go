package system

import (
	"fmt"
	"sync"
	"time"
)

// Canonical phase names of a title, in execution order. Actor logic completes
// before any role reads actor state, and the stage always presents last.
const (
	PhaseActor     = "Actor Phase"
	PhasePostActor = "Post Actor Phase"
	PhasePreRole   = "Pre Role Phase"
	PhaseRole      = "Role Phase"
	PhaseSet       = "Set Phase"
	PhaseStage     = "Stage Phase"
)

// CanonicalPhases returns the six canonical phase names in order.
func CanonicalPhases() []string {
	return []string{PhaseActor, PhasePostActor, PhasePreRole, PhaseRole, PhaseSet, PhaseStage}
}

// Tick describes one scheduler pass over every phase.
type Tick struct {
	Number uint64        // 1 on the first Run
	Delta  time.Duration // time since the previous Run, zero on the first
}

// Updater is the per-tick contract of every object registered in a Phase.
type Updater interface {
	Update(t Tick) error
}

// Phase is a named bucket of updaters executed once per scheduler tick in
// insertion order. Its contents may only change between ticks.
type Phase struct {
	name string

	mu      sync.Mutex
	objects []Updater
	owner   *Scheduler
}

func NewPhase(name string) *Phase {
	return &Phase{
		name:    name,
		objects: make([]Updater, 0, 8),
	}
}

func (p *Phase) Name() string { return p.name }

// Insert appends u to the phase. Fails with ErrConfiguration while the owning
// scheduler is mid-tick, for nil, or when u is already registered.
func (p *Phase) Insert(u Updater) error {
	if u == nil {
		return fmt.Errorf("%w: nil object for phase %q", ErrConfiguration, p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkIdle(); err != nil {
		return err
	}
	if p.indexOf(u) >= 0 {
		return fmt.Errorf("%w: object %T already in phase %q", ErrConfiguration, u, p.name)
	}
	p.objects = append(p.objects, u)
	return nil
}

// Remove deregisters u, keeping the order of the remaining objects.
func (p *Phase) Remove(u Updater) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkIdle(); err != nil {
		return err
	}
	i := p.indexOf(u)
	if i < 0 {
		return fmt.Errorf("%w: object %T not in phase %q", ErrConfiguration, u, p.name)
	}
	copy(p.objects[i:], p.objects[i+1:])
	p.objects[len(p.objects)-1] = nil
	p.objects = p.objects[:len(p.objects)-1]
	return nil
}

// Contains reports whether u is registered.
func (p *Phase) Contains(u Updater) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexOf(u) >= 0
}

func (p *Phase) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

// checkIdle must be called with p.mu held.
func (p *Phase) checkIdle() error {
	if p.owner != nil && p.owner.ticking.Load() {
		return fmt.Errorf("%w: phase %q mutated during a tick", ErrConfiguration, p.name)
	}
	return nil
}

func (p *Phase) indexOf(u Updater) int {
	for i, o := range p.objects {
		if o == u {
			return i
		}
	}
	return -1
}

// snapshot copies the current objects so a tick iterates a stable view.
func (p *Phase) snapshot(dst []Updater) []Updater {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(dst[:0], p.objects...)
}
