package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"capturerig/director/internal/geometry"
	"capturerig/director/internal/simulation"
)

// File is the on-disk description of a scene: boxed objects plus static
// occluders that belong to no object.
type File struct {
	Objects []ObjectSpec `yaml:"objects"`
	Static  []StaticSpec `yaml:"static"`
}

// ObjectSpec describes one registered object. Objects without half extents
// are unsized anchors.
type ObjectSpec struct {
	Handle      string      `yaml:"handle"`
	Parent      string      `yaml:"parent"`
	Center      [3]float64  `yaml:"center"`
	HalfExtents *[3]float64 `yaml:"half_extents"`
	Occluder    bool        `yaml:"occluder"`
	Surface     bool        `yaml:"surface"`
}

// StaticSpec describes a static occluder: a "plane" (point + normal) or a
// "sphere" (center + radius).
type StaticSpec struct {
	Kind   string     `yaml:"kind"`
	Point  [3]float64 `yaml:"point"`
	Normal [3]float64 `yaml:"normal"`
	Radius float64    `yaml:"radius"`
}

// Parse decodes a YAML scene description into a populated world.
func Parse(data []byte) (*World, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode scene file: %w", err)
	}
	world := NewWorld()
	for i, entry := range file.Objects {
		center := vec(entry.Center)
		bounds := geometry.PointBounds(center)
		if entry.HalfExtents != nil {
			bounds = geometry.NewBounds(center, vec(*entry.HalfExtents))
		}
		obj := Object{Handle: entry.Handle, Parent: entry.Parent, Bounds: bounds, Occluder: entry.Occluder, Surface: entry.Surface}
		if err := world.Add(obj); err != nil {
			return nil, fmt.Errorf("scene object %d: %w", i, err)
		}
	}
	for i, entry := range file.Static {
		switch entry.Kind {
		case "plane":
			normal := vec(entry.Normal)
			if normal.Norm() == 0 {
				return nil, fmt.Errorf("static %d: plane normal must be non-zero", i)
			}
			world.AddStatic(simulation.NewPlaneField(vec(entry.Point), normal))
		case "sphere":
			if entry.Radius <= 0 {
				return nil, fmt.Errorf("static %d: sphere radius must be positive", i)
			}
			world.AddStatic(simulation.SphereField{Center: vec(entry.Point), Radius: entry.Radius})
		default:
			return nil, fmt.Errorf("static %d: unknown kind %q", i, entry.Kind)
		}
	}
	return world, nil
}

// LoadFile reads and parses the YAML scene description at path.
func LoadFile(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene file: %w", err)
	}
	return Parse(data)
}

// Upsert moves handle to bounds, registering it as a non-occluding object when
// it is unknown.
func (w *World) Upsert(handle string, bounds geometry.Bounds) error {
	handle = strings.TrimSpace(handle)
	w.mu.Lock()
	defer w.mu.Unlock()
	if obj, ok := w.objects[handle]; ok {
		obj.Bounds = bounds
		return nil
	}
	if handle == "" {
		return fmt.Errorf("object handle must be provided")
	}
	w.objects[handle] = &Object{Handle: handle, Bounds: bounds}
	w.order = append(w.order, handle)
	return nil
}

func vec(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
