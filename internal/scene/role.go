package scene

import (
	"fmt"

	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/mlmath"
)

// Role is the presentation binding of one actor inside a set.
type Role struct {
	id     ecs.EntityID
	actor  *Actor
	set    *Set
	parent *Role

	transform   mlmath.Transform
	initialized bool
}

// NewRole binds a new role to actor. An actor has at most one role.
func NewRole(id ecs.EntityID, actor *Actor) (*Role, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: role without an actor", ErrBinding)
	}
	if actor.role != nil {
		return nil, fmt.Errorf("%w: actor %q already has a role", ErrBinding, actor.name)
	}
	r := &Role{id: id, actor: actor}
	actor.role = r
	return r, nil
}

func (r *Role) ID() ecs.EntityID { return r.id }
func (r *Role) Actor() *Actor    { return r.actor }
func (r *Role) Set() *Set        { return r.set }
func (r *Role) Parent() *Role    { return r.parent }

func (r *Role) Init() error {
	r.transform = mlmath.Transform{Rotation: mlmath.NewQuatIdentity(), Scale: mlmath.NewVec3(1, 1, 1)}
	r.initialized = true
	return nil
}

// Transform is the state the role last read from its actor.
func (r *Role) Transform() mlmath.Transform { return r.transform }

func (r *Role) sync(t mlmath.Transform) { r.transform = t }

// Update reads the actor's state for this frame. Runs in the Role phase,
// after every actor has finished.
func (r *Role) Update(_ system.Tick) error {
	if !r.initialized {
		return fmt.Errorf("role of %q: %w", r.actor.name, ErrNotInitialized)
	}
	if r.set == nil {
		return fmt.Errorf("%w: role of %q is not attached", ErrBinding, r.actor.name)
	}
	r.sync(r.actor.Transform())
	return nil
}

func (r *Role) renderable() Renderable {
	out := Renderable{
		ID:        r.id,
		Name:      r.actor.name,
		Transform: r.transform,
	}
	if r.parent != nil {
		out.Parent = r.parent.id
	}
	return out
}
