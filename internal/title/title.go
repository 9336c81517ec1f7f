// Package title ties the runtime together for one session: the scheduler and
// its phases, the event dispatcher, the exit signal, the object world, and
// the current set. Everything a title needs hangs off a Title value; there
// are no process-wide singletons.
package title

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/magiclantern/cubetest/internal/config"
	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/core/event"
	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/scene"
	"go.uber.org/zap"
)

// Platform is the host data a title starts with.
type Platform struct {
	Name   string
	Width  uint32
	Height uint32
}

// Title is the session context.
type Title struct {
	ID        uuid.UUID
	Platform  Platform
	StartedAt time.Time

	Scheduler  *system.Scheduler
	Dispatcher *event.Dispatcher
	Exit       *event.ExitSignal
	World      *ecs.World

	actors *ecs.Store[scene.Actor]
	roles  *ecs.Store[scene.Role]
	sets   *ecs.Store[scene.Set]

	stage      *scene.Stage
	stageID    ecs.EntityID
	currentSet *scene.Set
	callbacks  []event.CallbackID

	log *zap.Logger
}

// New builds a title with every configured phase registered, in order.
func New(cfg *config.Config, log *zap.Logger) (*Title, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	log = log.With(zap.String("session", id.String()))

	sched := system.NewScheduler(len(cfg.Scheduler.Phases), log.Named("scheduler"))
	for _, name := range cfg.Scheduler.Phases {
		if err := sched.AddPhase(system.NewPhase(name)); err != nil {
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	t := &Title{
		ID: id,
		Platform: Platform{
			Name:   cfg.Title.Name,
			Width:  cfg.Title.Width,
			Height: cfg.Title.Height,
		},
		StartedAt:  time.Now(),
		Scheduler:  sched,
		Dispatcher: event.NewDispatcher(log.Named("events")),
		Exit:       &event.ExitSignal{},
		World:      ecs.NewWorld(),
		actors:     ecs.NewStore[scene.Actor](),
		roles:      ecs.NewStore[scene.Role](),
		sets:       ecs.NewStore[scene.Set](),
		log:        log,
	}
	t.World.Register(t.actors)
	t.World.Register(t.roles)
	t.World.Register(t.sets)
	return t, nil
}

func (t *Title) Log() *zap.Logger { return t.log }

func (t *Title) phase(name string) *system.Phase {
	p, ok := t.Scheduler.Phase(name)
	if !ok {
		// New validated the phase list, so canonical phases always exist.
		panic("title: missing phase " + name)
	}
	return p
}

// schedule inserts u into the named phase and removes it again when id is
// destroyed.
func (t *Title) schedule(phase string, id ecs.EntityID, u system.Updater) error {
	p := t.phase(phase)
	if err := p.Insert(u); err != nil {
		return err
	}
	t.World.OnDestroy(id, func() {
		if err := p.Remove(u); err != nil {
			t.log.Warn("deregister failed", zap.String("phase", phase), zap.Stringer("id", id), zap.Error(err))
		}
	})
	return nil
}

// InitStage creates the stage on surface, initialises it and schedules it in
// the Stage phase.
func (t *Title) InitStage(surface scene.Surface) (*scene.Stage, error) {
	if t.stage != nil {
		return nil, fmt.Errorf("%w: stage already initialized", scene.ErrBinding)
	}
	st := scene.NewStage(surface, t.Platform.Width, t.Platform.Height, t.CurrentSet, t.log.Named("stage"))
	if err := st.Init(); err != nil {
		return nil, err
	}
	id := t.World.CreateEntity()
	if err := t.schedule(system.PhaseStage, id, st); err != nil {
		t.World.Pool().Destroy(id)
		return nil, err
	}
	t.stage, t.stageID = st, id
	return st, nil
}

func (t *Title) Stage() *scene.Stage { return t.stage }

// AddSet creates, initialises and schedules a set. It does not make it
// current.
func (t *Title) AddSet(name string) (*scene.Set, error) {
	id := t.World.CreateEntity()
	s := scene.NewSet(id, name)
	if err := s.Init(); err != nil {
		t.World.Pool().Destroy(id)
		return nil, fmt.Errorf("init set %q: %w", name, err)
	}
	if err := t.schedule(system.PhaseSet, id, s); err != nil {
		t.World.Pool().Destroy(id)
		return nil, err
	}
	t.sets.Set(id, s)
	return s, nil
}

// SetCurrentSet makes s the set new roles attach to and the stage presents.
func (t *Title) SetCurrentSet(s *scene.Set) { t.currentSet = s }

func (t *Title) CurrentSet() *scene.Set { return t.currentSet }

// AddActor creates an actor of typ. It is scheduled by InitActor.
func (t *Title) AddActor(name string, typ *scene.ActorType) *scene.Actor {
	id := t.World.CreateEntity()
	a := scene.NewActor(id, name, typ)
	t.actors.Set(id, a)
	return a
}

// Actor looks an actor up by name.
func (t *Title) Actor(name string) (*scene.Actor, bool) {
	var found *scene.Actor
	t.actors.Each(func(_ ecs.EntityID, a *scene.Actor) {
		if found == nil && a.Name() == name {
			found = a
		}
	})
	return found, found != nil
}

// Actors returns every actor in creation order.
func (t *Title) Actors() []*scene.Actor {
	out := make([]*scene.Actor, 0, t.actors.Len())
	t.actors.Each(func(_ ecs.EntityID, a *scene.Actor) { out = append(out, a) })
	return out
}

// InitActor initialises a and schedules it in the Actor phase.
func (t *Title) InitActor(a *scene.Actor) error {
	if err := a.Init(); err != nil {
		return err
	}
	return t.schedule(system.PhaseActor, a.ID(), a)
}

// AddRole binds a new, initialised role to a. It is scheduled by AttachRole.
func (t *Title) AddRole(a *scene.Actor) (*scene.Role, error) {
	id := t.World.CreateEntity()
	r, err := scene.NewRole(id, a)
	if err != nil {
		t.World.Pool().Destroy(id)
		return nil, err
	}
	t.roles.Set(id, r)
	if err := r.Init(); err != nil {
		t.World.MarkForDestruction(id)
		return nil, err
	}
	return r, nil
}

// AttachRole attaches r to the current set, under parent if non-nil, and
// schedules it in the Role phase. With no current set nothing is attached or
// scheduled.
func (t *Title) AttachRole(parent, r *scene.Role) error {
	s := t.currentSet
	if s == nil {
		return fmt.Errorf("%w: no current set", scene.ErrBinding)
	}
	if err := s.AttachRoles(parent, r); err != nil {
		return err
	}
	if err := t.schedule(system.PhaseRole, r.ID(), r); err != nil {
		s.DetachRole(r)
		return err
	}
	t.World.OnDestroy(r.ID(), func() {
		if set := r.Set(); set != nil {
			set.DetachRole(r)
		}
	})
	return nil
}

// DestroyObject queues an actor, together with its role, for destruction at
// the next destroy-queue flush. Only actors can be destroyed while running.
func (t *Title) DestroyObject(id ecs.EntityID) error {
	a, ok := t.actors.Get(id)
	if !ok || !t.World.Alive(id) {
		return fmt.Errorf("%w: %s is not a live actor", scene.ErrBinding, id)
	}
	if r := a.Role(); r != nil && t.World.Alive(r.ID()) {
		t.World.MarkForDestruction(r.ID())
	}
	t.World.MarkForDestruction(id)
	return nil
}

// InstallCallback registers cb and remembers it for teardown.
func (t *Title) InstallCallback(kind event.Kind, cb event.Callback, closure any) error {
	id, err := t.Dispatcher.InstallCallback(kind, cb, closure)
	if err != nil {
		return err
	}
	t.callbacks = append(t.callbacks, id)
	return nil
}

// PostEvent queues an event for the loop. Safe from any goroutine.
func (t *Title) PostEvent(kind event.Kind, payload any, opts ...event.PostOption) {
	t.Dispatcher.PostEvent(kind, payload, opts...)
}
