package simulation

import (
	"math"

	"github.com/golang/geo/r3"
)

// SignedDistanceField exposes the sampling contract for occlusion and probe queries.
type SignedDistanceField interface {
	Sample(point r3.Vector) float64
}

// SampleFunc adapts a function into a SignedDistanceField.
type SampleFunc func(r3.Vector) float64

// Sample invokes the wrapped sampling function.
func (s SampleFunc) Sample(point r3.Vector) float64 {
	return s(point)
}

// SphereField describes an analytic sphere signed distance function.
type SphereField struct {
	Center r3.Vector
	Radius float64
}

// Sample calculates the signed distance from a point to the sphere surface.
func (s SphereField) Sample(point r3.Vector) float64 {
	//1.- The radius is subtracted from the distance between the point and center.
	return point.Sub(s.Center).Norm() - s.Radius
}

// PlaneField describes an infinite plane represented by a point and normal.
type PlaneField struct {
	origin r3.Vector
	normal r3.Vector
}

// NewPlaneField normalizes the normal and stores the plane representation.
func NewPlaneField(point r3.Vector, normal r3.Vector) PlaneField {
	//1.- Normalize the plane normal to keep signed distances consistent.
	return PlaneField{origin: point, normal: normal.Normalize()}
}

// Sample returns the signed distance from the plane to the provided point.
func (p PlaneField) Sample(point r3.Vector) float64 {
	return point.Sub(p.origin).Dot(p.normal)
}

// BoxField is an axis-aligned box given by its center and half extents.
type BoxField struct {
	Center      r3.Vector
	HalfExtents r3.Vector
}

// Sample returns the exact signed distance to the box surface.
func (b BoxField) Sample(point r3.Vector) float64 {
	//1.- Fold the point into the positive octant relative to the box center.
	q := point.Sub(b.Center).Abs().Sub(b.HalfExtents)
	outside := r3.Vector{X: math.Max(q.X, 0), Y: math.Max(q.Y, 0), Z: math.Max(q.Z, 0)}
	//2.- Outside distance is Euclidean; inside distance is the deepest axis penetration.
	inside := math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0)
	return outside.Norm() + inside
}

// UnionField combines fields by taking the minimum sampled distance.
type UnionField []SignedDistanceField

// Sample returns the distance to the nearest member surface, or +Inf when empty.
func (u UnionField) Sample(point r3.Vector) float64 {
	nearest := math.Inf(1)
	for _, field := range u {
		if field == nil {
			continue
		}
		if d := field.Sample(point); d < nearest {
			nearest = d
		}
	}
	return nearest
}

// Raycast performs sphere tracing against the provided field. A zero direction
// never hits.
func Raycast(field SignedDistanceField, origin r3.Vector, direction r3.Vector, maxDistance float64, maxSteps int, epsilon float64) (bool, float64, r3.Vector) {
	if field == nil || direction.Norm2() == 0 {
		return false, 0, origin
	}
	//1.- Normalize the incoming direction vector before marching.
	dir := direction.Normalize()
	distance := 0.0
	current := origin
	for step := 0; step < maxSteps; step++ {
		sample := field.Sample(current)
		if sample < epsilon {
			//2.- Return a hit once the sampled distance is within tolerance.
			return true, distance, current
		}
		distance += sample
		if distance > maxDistance {
			break
		}
		//3.- Advance the ray origin using the sampled distance.
		current = origin.Add(dir.Mul(distance))
	}
	capped := math.Min(distance, maxDistance)
	return false, capped, origin.Add(dir.Mul(capped))
}

// SphereIntersection evaluates whether a bounding sphere penetrates the field.
func SphereIntersection(field SignedDistanceField, center r3.Vector, radius float64) (bool, float64) {
	separation := field.Sample(center) - radius
	return separation <= 0, separation
}
