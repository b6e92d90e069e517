// Package camera models the candidate viewpoints the director chooses between:
// their pose and projection, the auxiliary capture channels that share a base
// viewpoint's field of view, and the pool that owns them for a session.
package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	// DefaultFieldOfView is the vertical field of view, in degrees, used when none is configured.
	DefaultFieldOfView = 60.0
	// DefaultAspect is the width/height ratio used when none is configured.
	DefaultAspect = 16.0 / 9.0
	// DefaultNear is the near clip distance.
	DefaultNear = 0.1
	// DefaultFar is the far clip distance applied when the pool does not override it.
	DefaultFar = 100.0
	// MaxFieldOfView bounds framing so the projection never degenerates.
	MaxFieldOfView = 179.0
)

var worldUp = r3.Vector{X: 0, Y: 1, Z: 0}

// Pose is the mutable part of a viewpoint that activation may overwrite.
type Pose struct {
	Position    r3.Vector
	Yaw         float64
	Pitch       float64
	FieldOfView float64
}

// Channel is an auxiliary capture pass (depth, segmentation, ...) bound to a
// viewpoint. It always renders with its base viewpoint's field of view.
type Channel struct {
	Kind        string
	FieldOfView float64
	Enabled     bool
}

// Viewpoint is a candidate camera. Yaw rotates about +Y starting from +Z,
// pitch raises the forward vector toward +Y; both are degrees.
type Viewpoint struct {
	ID          int
	Name        string
	Position    r3.Vector
	Yaw         float64
	Pitch       float64
	FieldOfView float64
	Aspect      float64
	Near        float64
	Far         float64
	Channels    []*Channel

	active   bool
	baseline Pose
}

// NewViewpoint builds a viewpoint with default projection parameters.
func NewViewpoint(name string, position r3.Vector, yaw, pitch float64) *Viewpoint {
	return &Viewpoint{
		Name:        name,
		Position:    position,
		Yaw:         yaw,
		Pitch:       pitch,
		FieldOfView: DefaultFieldOfView,
		Aspect:      DefaultAspect,
		Near:        DefaultNear,
		Far:         DefaultFar,
	}
}

// Active reports whether the viewpoint is the pool's current capture source.
func (v *Viewpoint) Active() bool { return v != nil && v.active }

// Forward returns the unit view direction.
func (v *Viewpoint) Forward() r3.Vector {
	yaw := v.Yaw * math.Pi / 180
	pitch := v.Pitch * math.Pi / 180
	return r3.Vector{
		X: math.Sin(yaw) * math.Cos(pitch),
		Y: math.Sin(pitch),
		Z: math.Cos(yaw) * math.Cos(pitch),
	}
}

// Right returns the unit vector pointing to the right of the view, kept level
// with the horizon.
func (v *Viewpoint) Right() r3.Vector {
	yaw := v.Yaw * math.Pi / 180
	return r3.Vector{X: math.Cos(yaw), Y: 0, Z: -math.Sin(yaw)}
}

// Up returns the unit vector pointing to the top of the view.
func (v *Viewpoint) Up() r3.Vector {
	return v.Forward().Cross(v.Right())
}

// LookAt rotates the viewpoint so target sits on its optical axis. A target at
// the viewpoint's own position leaves the orientation unchanged.
func (v *Viewpoint) LookAt(target r3.Vector) {
	delta := target.Sub(v.Position)
	if delta.Norm2() == 0 {
		return
	}
	horizontal := math.Hypot(delta.X, delta.Z)
	if horizontal != 0 {
		v.Yaw = math.Atan2(delta.X, delta.Z) * 180 / math.Pi
	}
	v.Pitch = math.Atan2(delta.Y, horizontal) * 180 / math.Pi
}

// SetFieldOfView updates the vertical field of view and every bound channel.
func (v *Viewpoint) SetFieldOfView(fov float64) {
	if fov <= 0 || math.IsNaN(fov) {
		return
	}
	if fov > MaxFieldOfView {
		fov = MaxFieldOfView
	}
	v.FieldOfView = fov
	for _, channel := range v.Channels {
		if channel != nil {
			channel.FieldOfView = fov
		}
	}
}

// Project maps point into normalised viewport coordinates, (0,0) bottom-left to
// (1,1) top-right, and reports its depth along the view direction. Points behind
// the viewpoint return a non-positive depth and meaningless coordinates.
func (v *Viewpoint) Project(point r3.Vector) (x, y, depth float64) {
	delta := point.Sub(v.Position)
	depth = delta.Dot(v.Forward())
	if depth <= 0 {
		return 0, 0, depth
	}
	aspect := v.Aspect
	if aspect <= 0 {
		aspect = DefaultAspect
	}
	tanHalf := math.Tan(v.FieldOfView * math.Pi / 360)
	if tanHalf <= 0 {
		return 0, 0, depth
	}
	ndcX := delta.Dot(v.Right()) / (depth * tanHalf * aspect)
	ndcY := delta.Dot(v.Up()) / (depth * tanHalf)
	return (ndcX + 1) / 2, (ndcY + 1) / 2, depth
}

// Pose snapshots the orientation and projection the controller may overwrite.
func (v *Viewpoint) Pose() Pose {
	return Pose{Position: v.Position, Yaw: v.Yaw, Pitch: v.Pitch, FieldOfView: v.FieldOfView}
}

// Restore applies a previously captured pose, including channel field of view.
func (v *Viewpoint) Restore(pose Pose) {
	v.Position = pose.Position
	v.Yaw = pose.Yaw
	v.Pitch = pose.Pitch
	v.SetFieldOfView(pose.FieldOfView)
}

// DistanceTo returns the straight-line distance from the viewpoint to point.
func (v *Viewpoint) DistanceTo(point r3.Vector) float64 {
	return v.Position.Distance(point)
}
