package scene

import (
	"fmt"
	"slices"

	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/core/system"
)

// Renderable is one role's contribution to a frame.
type Renderable struct {
	ID        ecs.EntityID
	Name      string
	Parent    ecs.EntityID // zero for top-level roles
	Transform Transform
}

// Frame is what a set hands to the stage each tick.
type Frame struct {
	Tick   uint64
	Set    string
	Width  uint32
	Height uint32
	Items  []Renderable
}

// Set holds the roles of one scene context, in attach order.
type Set struct {
	id    ecs.EntityID
	name  string
	roles []*Role

	frame       Frame
	initialized bool
}

func NewSet(id ecs.EntityID, name string) *Set {
	return &Set{id: id, name: name}
}

func (s *Set) ID() ecs.EntityID { return s.id }
func (s *Set) Name() string     { return s.name }

func (s *Set) Init() error {
	s.roles = s.roles[:0]
	s.initialized = true
	return nil
}

// Roles returns the attached roles in attach order.
func (s *Set) Roles() []*Role {
	out := make([]*Role, len(s.roles))
	copy(out, s.roles)
	return out
}

// AttachRoles attaches roles to the set, optionally under parent, which must
// already belong to this set. Nothing is attached if any role is invalid.
func (s *Set) AttachRoles(parent *Role, roles ...*Role) error {
	if !s.initialized {
		return fmt.Errorf("%w: set %q is not initialized", ErrBinding, s.name)
	}
	if parent != nil && parent.set != s {
		return fmt.Errorf("%w: parent role of %q is not in set %q", ErrBinding, parent.actor.name, s.name)
	}
	for i, r := range roles {
		if r == nil {
			return fmt.Errorf("%w: nil role for set %q", ErrBinding, s.name)
		}
		if r.set != nil {
			return fmt.Errorf("%w: role of %q already attached to set %q", ErrBinding, r.actor.name, r.set.name)
		}
		if slices.Contains(roles[:i], r) {
			return fmt.Errorf("%w: role of %q given twice", ErrBinding, r.actor.name)
		}
	}
	for _, r := range roles {
		r.set = s
		r.parent = parent
		s.roles = append(s.roles, r)
	}
	return nil
}

// DetachRole removes r from the set. Returns false if it was not attached here.
func (s *Set) DetachRole(r *Role) bool {
	for i, o := range s.roles {
		if o != r {
			continue
		}
		s.roles = append(s.roles[:i], s.roles[i+1:]...)
		r.set = nil
		r.parent = nil
		return true
	}
	return false
}

// Update collects the roles' transforms into this tick's frame.
func (s *Set) Update(t system.Tick) error {
	if !s.initialized {
		return fmt.Errorf("set %q: %w", s.name, ErrNotInitialized)
	}
	items := make([]Renderable, 0, len(s.roles))
	for _, r := range s.roles {
		items = append(items, r.renderable())
	}
	s.frame = Frame{Tick: t.Number, Set: s.name, Items: items}
	return nil
}

// Frame returns the frame built by the last Update.
func (s *Set) Frame() Frame { return s.frame }
