// Package scene implements the title's object model: actors hold typed
// properties, roles present an actor inside the current set, and the stage
// hands each finished frame to the presentation surface.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/magiclantern/cubetest/internal/core/ecs"
	"github.com/magiclantern/cubetest/internal/core/system"
	"github.com/magiclantern/cubetest/internal/mlmath"
)

var (
	ErrBinding         = errors.New("binding")
	ErrUnknownProperty = errors.New("unknown property")
	ErrNotInitialized  = errors.New("not initialized")
)

// Transform property names every actor type carries.
const (
	PropPosition    = "position"
	PropOrientation = "orientation"
	PropScale       = "scale"
)

// PropertyKind is the binary layout of a property value.
type PropertyKind uint8

const (
	KindVec3 PropertyKind = iota + 1
	KindVec4
)

func (k PropertyKind) Size() int {
	switch k {
	case KindVec3:
		return mlmath.Vec3Size
	case KindVec4:
		return mlmath.Vec4Size
	}
	return 0
}

func (k PropertyKind) String() string {
	switch k {
	case KindVec3:
		return "vec3"
	case KindVec4:
		return "vec4"
	}
	return "unknown"
}

// ActorType declares the properties an actor accepts.
type ActorType struct {
	Name   string
	Schema map[string]PropertyKind
}

// CubeActorType is the actor used by the cube title.
var CubeActorType = &ActorType{
	Name: "cube",
	Schema: map[string]PropertyKind{
		PropPosition:    KindVec3,
		PropOrientation: KindVec4,
		PropScale:       KindVec3,
	},
}

var actorTypes = map[string]*ActorType{
	CubeActorType.Name: CubeActorType,
}

// LookupActorType finds a built-in actor type by name.
func LookupActorType(name string) (*ActorType, bool) {
	t, ok := actorTypes[name]
	return t, ok
}

// Spin is a constant angular velocity applied to the orientation each tick.
type Spin struct {
	Axis mlmath.Vec3
	Rate float32 // radians per second
}

// ActorState is the decoded, mutable state a Behavior works on.
type ActorState struct {
	Position    mlmath.Vec3
	Orientation mlmath.Quaternion
	Scale       mlmath.Vec3
	Spin        Spin
}

// Behavior drives an actor once per tick in the Actor phase.
type Behavior interface {
	Step(s *ActorState, t system.Tick) error
}

// Actor is a logical title object holding named, binary-encoded properties.
type Actor struct {
	id    ecs.EntityID
	name  string
	typ   *ActorType
	props map[string][]byte

	role        *Role
	behavior    Behavior
	state       ActorState
	initialized bool
}

func NewActor(id ecs.EntityID, name string, typ *ActorType) *Actor {
	return &Actor{
		id:    id,
		name:  name,
		typ:   typ,
		props: make(map[string][]byte, len(typ.Schema)),
	}
}

func (a *Actor) ID() ecs.EntityID { return a.id }
func (a *Actor) Name() string     { return a.name }
func (a *Actor) Type() *ActorType { return a.typ }
func (a *Actor) Role() *Role      { return a.role }

// SetBehavior replaces the per-tick behaviour; nil leaves only spin integration.
func (a *Actor) SetBehavior(b Behavior) { a.behavior = b }

// SetProperty stores an encoded value. The blob must match the size of the
// property's declared kind.
func (a *Actor) SetProperty(name string, value []byte) error {
	kind, ok := a.typ.Schema[name]
	if !ok {
		return fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, a.typ.Name, name)
	}
	if len(value) != kind.Size() {
		return fmt.Errorf("%w: property %q is %s (%d bytes), got %d bytes",
			mlmath.ErrPropertyEncoding, name, kind, kind.Size(), len(value))
	}
	a.props[name] = append([]byte(nil), value...)
	if a.initialized {
		return a.decodeState()
	}
	return nil
}

// Property returns a copy of the encoded value.
func (a *Actor) Property(name string) ([]byte, bool) {
	v, ok := a.props[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Properties returns copies of every set property, keyed by name.
func (a *Actor) Properties() map[string][]byte {
	out := make(map[string][]byte, len(a.props))
	for k, v := range a.props {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// PropertyNames returns the set property names, sorted.
func (a *Actor) PropertyNames() []string {
	names := make([]string, 0, len(a.props))
	for k := range a.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (a *Actor) Vec3Property(name string) (mlmath.Vec3, error) {
	b, err := a.typed(name, KindVec3)
	if err != nil {
		return mlmath.Vec3{}, err
	}
	return mlmath.DecodeVec3(b)
}

func (a *Actor) Vec4Property(name string) (mlmath.Vec4, error) {
	b, err := a.typed(name, KindVec4)
	if err != nil {
		return mlmath.Vec4{}, err
	}
	return mlmath.DecodeVec4(b)
}

func (a *Actor) typed(name string, kind PropertyKind) ([]byte, error) {
	declared, ok := a.typ.Schema[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, a.typ.Name, name)
	}
	if declared != kind {
		return nil, fmt.Errorf("%w: property %q is %s, read as %s", mlmath.ErrPropertyEncoding, name, declared, kind)
	}
	b, ok := a.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: property %q not set", mlmath.ErrPropertyEncoding, name)
	}
	return b, nil
}

// Init decodes the transform properties and publishes them to the role. The
// role must already be attached to a set.
func (a *Actor) Init() error {
	if a.role == nil {
		return fmt.Errorf("%w: actor %q initialized without a role", ErrBinding, a.name)
	}
	if a.role.set == nil {
		return fmt.Errorf("%w: actor %q initialized before its role was attached to a set", ErrBinding, a.name)
	}
	if err := a.decodeState(); err != nil {
		return fmt.Errorf("init actor %q: %w", a.name, err)
	}
	a.initialized = true
	a.role.sync(a.Transform())
	return nil
}

func (a *Actor) Initialized() bool { return a.initialized }

func (a *Actor) decodeState() error {
	pos, err := a.Vec3Property(PropPosition)
	if err != nil {
		return err
	}
	rot, err := a.Vec4Property(PropOrientation)
	if err != nil {
		return err
	}
	scale, err := a.Vec3Property(PropScale)
	if err != nil {
		return err
	}
	a.state.Position = pos
	a.state.Orientation = mlmath.Quaternion(rot)
	a.state.Scale = scale
	return nil
}

// Transform returns the current presentation transform.
func (a *Actor) Transform() mlmath.Transform {
	return mlmath.Transform{
		Position: a.state.Position,
		Rotation: a.state.Orientation,
		Scale:    a.state.Scale,
	}
}

// State returns a copy of the decoded state.
func (a *Actor) State() ActorState { return a.state }

// Update runs the behaviour, integrates spin, and re-encodes the transform
// properties so they always reflect the latest tick.
func (a *Actor) Update(t system.Tick) error {
	if !a.initialized {
		return fmt.Errorf("actor %q: %w", a.name, ErrNotInitialized)
	}
	if a.behavior != nil {
		if err := a.behavior.Step(&a.state, t); err != nil {
			return fmt.Errorf("actor %q behavior: %w", a.name, err)
		}
	}
	if spin := a.state.Spin; spin.Rate != 0 && t.Delta > 0 {
		delta := mlmath.NewQuatFromAxisAngle(spin.Axis, spin.Rate*float32(t.Delta.Seconds()))
		a.state.Orientation = delta.Mul(a.state.Orientation).Normalize()
	}
	a.props[PropPosition] = mlmath.EncodeVec3(a.state.Position)
	a.props[PropOrientation] = mlmath.EncodeVec4(mlmath.Vec4(a.state.Orientation))
	a.props[PropScale] = mlmath.EncodeVec3(a.state.Scale)
	return nil
}
