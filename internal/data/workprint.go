package data

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/magiclantern/cubetest/internal/mlmath"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/cube.yaml
var defaultWorkprint []byte

// ActorDef describes one actor of a workprint group. Property values are
// plain float lists: three floats encode as a Vec3, four as a Vec4.
type ActorDef struct {
	Name       string               `yaml:"name"`
	Type       string               `yaml:"type"`
	Behavior   string               `yaml:"behavior"` // Lua global; "" = none
	Properties map[string][]float32 `yaml:"properties"`
}

// Group is the title content loaded at setup: the set the actors' roles are
// attached to and the actors themselves, in file order.
type Group struct {
	Name   string     `yaml:"name"`
	Set    string     `yaml:"set"`
	Actors []ActorDef `yaml:"actors"`
}

// LoadWorkprint loads a group from a YAML file.
func LoadWorkprint(path string) (*Group, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workprint: %w", err)
	}
	g, err := parseWorkprint(raw)
	if err != nil {
		return nil, fmt.Errorf("workprint %s: %w", path, err)
	}
	return g, nil
}

// DefaultWorkprint returns the built-in cube group.
func DefaultWorkprint() *Group {
	g, err := parseWorkprint(defaultWorkprint)
	if err != nil {
		panic(fmt.Sprintf("embedded workprint: %v", err))
	}
	return g
}

func parseWorkprint(raw []byte) (*Group, error) {
	var g Group
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if g.Set == "" {
		g.Set = g.Name
	}
	if len(g.Actors) == 0 {
		return nil, errors.New("no actors")
	}
	seen := make(map[string]struct{}, len(g.Actors))
	for _, a := range g.Actors {
		if a.Name == "" || a.Type == "" {
			return nil, fmt.Errorf("actor %q: name and type are required", a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("duplicate actor %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return &g, nil
}

// Encode converts every actor's properties to their binary blobs, keyed by
// actor name, then property name.
func (g *Group) Encode() (map[string]map[string][]byte, error) {
	out := make(map[string]map[string][]byte, len(g.Actors))
	for _, a := range g.Actors {
		props, err := a.Encode()
		if err != nil {
			return nil, err
		}
		out[a.Name] = props
	}
	return out, nil
}

// Encode converts the actor's properties to their binary blobs.
func (a ActorDef) Encode() (map[string][]byte, error) {
	props := make(map[string][]byte, len(a.Properties))
	for name, v := range a.Properties {
		b, err := mlmath.EncodeFloats(v)
		if err != nil {
			return nil, fmt.Errorf("actor %q property %q: %w", a.Name, name, err)
		}
		props[name] = b
	}
	return props, nil
}
