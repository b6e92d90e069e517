package camera

import (
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"
)

// PoolFile is the on-disk description of a viewpoint pool.
type PoolFile struct {
	FarClip    float64         `yaml:"far_clip"`
	Channels   []string        `yaml:"channels"`
	Viewpoints []ViewpointSpec `yaml:"viewpoints"`
}

// ViewpointSpec describes one viewpoint inside a PoolFile.
type ViewpointSpec struct {
	Name     string     `yaml:"name"`
	Position [3]float64 `yaml:"position"`
	Yaw      float64    `yaml:"yaw"`
	Pitch    float64    `yaml:"pitch"`
	FOV      float64    `yaml:"fov"`
	Aspect   float64    `yaml:"aspect"`
	Near     float64    `yaml:"near"`
	Far      float64    `yaml:"far"`
}

// ParsePool decodes a YAML pool description and builds the pool.
func ParsePool(data []byte, extraChannels ...string) (*Pool, error) {
	var file PoolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode pool file: %w", err)
	}
	viewpoints := make([]*Viewpoint, 0, len(file.Viewpoints))
	for _, spec := range file.Viewpoints {
		v := NewViewpoint(spec.Name, r3.Vector{X: spec.Position[0], Y: spec.Position[1], Z: spec.Position[2]}, spec.Yaw, spec.Pitch)
		if spec.FOV > 0 {
			v.FieldOfView = spec.FOV
		}
		if spec.Aspect > 0 {
			v.Aspect = spec.Aspect
		}
		if spec.Near > 0 {
			v.Near = spec.Near
		}
		if spec.Far > 0 {
			v.Far = spec.Far
		}
		viewpoints = append(viewpoints, v)
	}
	channels := append(append([]string(nil), file.Channels...), extraChannels...)
	return NewPool(viewpoints, PoolOptions{FarClip: file.FarClip, Channels: channels}), nil
}

// LoadPoolFile reads and parses the YAML pool description at path.
func LoadPoolFile(path string, extraChannels ...string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}
	return ParsePool(data, extraChannels...)
}
