package scene

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/mlmath"
	"go.uber.org/zap"
)

func newCube(t *testing.T, id uint32) *Actor {
	t.Helper()
	a := NewActor(ecs.NewEntityID(id, 0), "cube", CubeActorType)
	props := map[string][]byte{
		PropPosition:    mlmath.EncodeVec3(mlmath.NewVec3(0, 0, -5)),
		PropOrientation: mlmath.EncodeVec4(mlmath.NewVec4(0, 0, 0, 1)),
		PropScale:       mlmath.EncodeVec3(mlmath.NewVec3(1, 1, 1)),
	}
	for name, v := range props {
		if err := a.SetProperty(name, v); err != nil {
			t.Fatalf("SetProperty(%s) failed: %v", name, err)
		}
	}
	return a
}

func newInitSet(t *testing.T) *Set {
	t.Helper()
	s := NewSet(ecs.NewEntityID(100, 0), "3d set")
	if err := s.Init(); err != nil {
		t.Fatalf("Set.Init() failed: %v", err)
	}
	return s
}

func TestActorPropertyRoundTrip(t *testing.T) {
	a := newCube(t, 1)
	pos, err := a.Vec3Property(PropPosition)
	if err != nil {
		t.Fatalf("Vec3Property() failed: %v", err)
	}
	if !pos.Compare(mlmath.NewVec3(0, 0, -5), 1e-6) {
		t.Errorf("position = %+v, expected {0 0 -5}", pos)
	}
	if names := a.PropertyNames(); len(names) != 3 || names[0] != PropOrientation {
		t.Errorf("PropertyNames() = %v", names)
	}
}

func TestActorSetPropertyErrors(t *testing.T) {
	tests := []struct {
		name     string
		prop     string
		value    []byte
		expected error
	}{
		{"unknown name", "velocity", make([]byte, 12), ErrUnknownProperty},
		{"vec3 too short", PropPosition, make([]byte, 8), mlmath.ErrPropertyEncoding},
		{"vec4 given vec3", PropOrientation, make([]byte, 12), mlmath.ErrPropertyEncoding},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewActor(ecs.NewEntityID(1, 0), "cube", CubeActorType)
			if err := a.SetProperty(tc.prop, tc.value); !errors.Is(err, tc.expected) {
				t.Errorf("error = %v, expected %v", err, tc.expected)
			}
			if _, ok := a.Property(tc.prop); ok {
				t.Error("rejected property was stored")
			}
		})
	}
}

func TestActorReadWrongKind(t *testing.T) {
	a := newCube(t, 1)
	if _, err := a.Vec4Property(PropPosition); !errors.Is(err, mlmath.ErrPropertyEncoding) {
		t.Errorf("error = %v, expected ErrPropertyEncoding", err)
	}
}

func TestActorInitRequiresAttachedRole(t *testing.T) {
	a := newCube(t, 1)
	if err := a.Init(); !errors.Is(err, ErrBinding) {
		t.Fatalf("Init without role = %v, expected ErrBinding", err)
	}

	r, err := NewRole(ecs.NewEntityID(2, 0), a)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}
	if err := a.Init(); !errors.Is(err, ErrBinding) {
		t.Fatalf("Init before attach = %v, expected ErrBinding", err)
	}

	s := newInitSet(t)
	if err := s.AttachRoles(nil, r); err != nil {
		t.Fatalf("AttachRoles() failed: %v", err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init after attach failed: %v", err)
	}
	if got := r.Transform().Position; !got.Compare(mlmath.NewVec3(0, 0, -5), 1e-6) {
		t.Errorf("role position after actor init = %+v", got)
	}
}

func TestRoleBinding(t *testing.T) {
	a := newCube(t, 1)
	if _, err := NewRole(ecs.NewEntityID(2, 0), nil); !errors.Is(err, ErrBinding) {
		t.Errorf("NewRole(nil) = %v, expected ErrBinding", err)
	}
	r, err := NewRole(ecs.NewEntityID(2, 0), a)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}
	if _, err := NewRole(ecs.NewEntityID(3, 0), a); !errors.Is(err, ErrBinding) {
		t.Errorf("second NewRole = %v, expected ErrBinding", err)
	}

	uninit := NewSet(ecs.NewEntityID(9, 0), "uninit")
	if err := uninit.AttachRoles(nil, r); !errors.Is(err, ErrBinding) {
		t.Errorf("attach to uninitialized set = %v, expected ErrBinding", err)
	}

	s := newInitSet(t)
	if err := s.AttachRoles(nil, r); err != nil {
		t.Fatalf("AttachRoles() failed: %v", err)
	}
	if err := s.AttachRoles(nil, r); !errors.Is(err, ErrBinding) {
		t.Errorf("double attach = %v, expected ErrBinding", err)
	}

	b := newCube(t, 4)
	child, err := NewRole(ecs.NewEntityID(5, 0), b)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}
	other := newInitSet(t)
	if err := other.AttachRoles(r, child); !errors.Is(err, ErrBinding) {
		t.Errorf("parent from another set = %v, expected ErrBinding", err)
	}
	if err := s.AttachRoles(r, child); err != nil {
		t.Fatalf("AttachRoles(parent) failed: %v", err)
	}
	if child.Parent() != r || len(s.Roles()) != 2 {
		t.Error("child not attached under parent")
	}
	if !s.DetachRole(child) || child.Set() != nil {
		t.Error("DetachRole() did not detach")
	}
}

func TestAttachRolesRejectsDuplicates(t *testing.T) {
	s := newInitSet(t)
	a, b := newCube(t, 1), newCube(t, 3)
	ra, err := NewRole(ecs.NewEntityID(2, 0), a)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}
	rb, err := NewRole(ecs.NewEntityID(4, 0), b)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}

	if err := s.AttachRoles(nil, ra, rb, ra); !errors.Is(err, ErrBinding) {
		t.Fatalf("AttachRoles(ra, rb, ra) = %v, expected ErrBinding", err)
	}
	if len(s.Roles()) != 0 || ra.Set() != nil || rb.Set() != nil {
		t.Error("roles attached despite rejected call")
	}
	if err := s.AttachRoles(nil, ra, rb); err != nil {
		t.Fatalf("AttachRoles(ra, rb) failed: %v", err)
	}
	if len(s.Roles()) != 2 {
		t.Errorf("Roles() = %d, expected 2", len(s.Roles()))
	}
}

type fakeSurface struct {
	frames []Frame
}

func (f *fakeSurface) Present(fr Frame) error {
	f.frames = append(f.frames, fr)
	return nil
}

type spinBehavior struct{}

func (spinBehavior) Step(s *ActorState, _ system.Tick) error {
	s.Spin = Spin{Axis: mlmath.NewVec3(0, 1, 0), Rate: math.Pi}
	s.Position.X += 1
	return nil
}

func TestPipelinePresentsUpdatedFrame(t *testing.T) {
	sched := system.NewScheduler(6, zap.NewNop())
	for _, n := range system.CanonicalPhases() {
		if err := sched.AddPhase(system.NewPhase(n)); err != nil {
			t.Fatalf("AddPhase() failed: %v", err)
		}
	}
	phase := func(name string) *system.Phase {
		p, _ := sched.Phase(name)
		return p
	}

	set := newInitSet(t)
	surface := &fakeSurface{}
	stage := NewStage(surface, 320, 480, func() *Set { return set }, zap.NewNop())
	if err := stage.Init(); err != nil {
		t.Fatalf("Stage.Init() failed: %v", err)
	}

	a := newCube(t, 1)
	a.SetBehavior(spinBehavior{})
	r, err := NewRole(ecs.NewEntityID(2, 0), a)
	if err != nil {
		t.Fatalf("NewRole() failed: %v", err)
	}
	if err := r.Init(); err != nil {
		t.Fatalf("Role.Init() failed: %v", err)
	}
	if err := set.AttachRoles(nil, r); err != nil {
		t.Fatalf("AttachRoles() failed: %v", err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Actor.Init() failed: %v", err)
	}

	for name, u := range map[string]system.Updater{
		system.PhaseActor: a,
		system.PhaseRole:  r,
		system.PhaseSet:   set,
		system.PhaseStage: stage,
	} {
		if err := phase(name).Insert(u); err != nil {
			t.Fatalf("Insert into %s failed: %v", name, err)
		}
	}

	// Paused surface: nothing is presented.
	sched.Run()
	if len(surface.frames) != 0 || stage.Skipped() != 1 {
		t.Fatalf("paused stage presented %d frames, skipped %d", len(surface.frames), stage.Skipped())
	}

	stage.Resume()
	sched.Run()
	if len(surface.frames) != 1 {
		t.Fatalf("presented %d frames, expected 1", len(surface.frames))
	}
	f := surface.frames[0]
	if f.Tick != 2 || f.Width != 320 || f.Height != 480 || len(f.Items) != 1 {
		t.Fatalf("frame = %+v", f)
	}
	// The actor moved twice, and the frame of tick 2 already shows it.
	if x := f.Items[0].Transform.Position.X; x != 2 {
		t.Errorf("presented x = %v, expected 2", x)
	}

	enc, _ := a.Property(PropPosition)
	pos, err := mlmath.DecodeVec3(enc)
	if err != nil || pos.X != 2 {
		t.Errorf("encoded position = %+v, %v; expected x=2", pos, err)
	}
	if stage.Presented() != 1 {
		t.Errorf("Presented() = %d, expected 1", stage.Presented())
	}
}

func TestActorSpinIntegration(t *testing.T) {
	a := newCube(t, 1)
	r, _ := NewRole(ecs.NewEntityID(2, 0), a)
	if err := newInitSet(t).AttachRoles(nil, r); err != nil {
		t.Fatalf("AttachRoles() failed: %v", err)
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	a.state.Spin = Spin{Axis: mlmath.NewVec3(0, 1, 0), Rate: math.Pi}

	// Half a second at pi rad/s is a quarter turn around Y.
	if err := a.Update(system.Tick{Number: 1, Delta: 500 * time.Millisecond}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	half := float32(math.Sqrt2 / 2)
	got := mlmath.Vec4(a.State().Orientation)
	if !got.Compare(mlmath.NewVec4(0, half, 0, half), 1e-5) {
		t.Errorf("orientation = %+v, expected quarter turn", got)
	}
}

func TestUpdateBeforeInit(t *testing.T) {
	a := newCube(t, 1)
	if err := a.Update(system.Tick{Number: 1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update before Init = %v, expected ErrNotInitialized", err)
	}
	s := NewSet(ecs.NewEntityID(3, 0), "s")
	if err := s.Update(system.Tick{Number: 1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Set.Update before Init = %v, expected ErrNotInitialized", err)
	}
}

func TestStageInitRequiresSurface(t *testing.T) {
	st := NewStage(nil, 1, 1, func() *Set { return nil }, zap.NewNop())
	if err := st.Init(); !errors.Is(err, ErrSurfaceUnavailable) {
		t.Errorf("Init() = %v, expected ErrSurfaceUnavailable", err)
	}
}
