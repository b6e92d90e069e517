package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Bounds is an axis-aligned box in world space. A Bounds built from a zero or
// non-finite extent carries only a position: it is "unsized" and never takes part
// in unions, intersections or framing as if it were a real zero-size object.
type Bounds struct {
	center  r3.Vector
	extents r3.Vector
	sized   bool
}

// NewBounds returns a sized box when every half extent is finite and at least one
// is non-zero. Negative extents are folded to their magnitude.
func NewBounds(center, halfExtents r3.Vector) Bounds {
	if !finite(center) {
		return Bounds{}
	}
	halfExtents = halfExtents.Abs()
	if !finite(halfExtents) || (halfExtents == r3.Vector{}) {
		return Bounds{center: center}
	}
	return Bounds{center: center, extents: halfExtents, sized: true}
}

// PointBounds returns an unsized anchor at center.
func PointBounds(center r3.Vector) Bounds {
	return Bounds{center: center}
}

// BoundsFromMinMax builds a box spanning the two corners in any order.
func BoundsFromMinMax(a, b r3.Vector) Bounds {
	lo := r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
	hi := r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
	return NewBounds(lo.Add(hi).Mul(0.5), hi.Sub(lo).Mul(0.5))
}

// Sized reports whether the box carries real size information.
func (b Bounds) Sized() bool { return b.sized }

// Center returns the box center, or the anchor position for unsized bounds.
func (b Bounds) Center() r3.Vector { return b.center }

// Extents returns the half extents; zero for unsized bounds.
func (b Bounds) Extents() r3.Vector { return b.extents }

// Min returns the lowest corner.
func (b Bounds) Min() r3.Vector { return b.center.Sub(b.extents) }

// Max returns the highest corner.
func (b Bounds) Max() r3.Vector { return b.center.Add(b.extents) }

// Corners lists the eight box corners. Unsized bounds repeat the center.
func (b Bounds) Corners() [8]r3.Vector {
	var corners [8]r3.Vector
	for idx := range corners {
		offset := b.extents
		if idx&1 != 0 {
			offset.X = -offset.X
		}
		if idx&2 != 0 {
			offset.Y = -offset.Y
		}
		if idx&4 != 0 {
			offset.Z = -offset.Z
		}
		corners[idx] = b.center.Add(offset)
	}
	return corners
}

// Contains reports whether point lies inside the closed box.
func (b Bounds) Contains(point r3.Vector) bool {
	if !b.sized {
		return false
	}
	lo, hi := b.Min(), b.Max()
	return point.X >= lo.X && point.X <= hi.X &&
		point.Y >= lo.Y && point.Y <= hi.Y &&
		point.Z >= lo.Z && point.Z <= hi.Z
}

// Overlaps reports whether two sized boxes share any volume or touch.
func (b Bounds) Overlaps(other Bounds) bool {
	_, ok := Intersection(b, other)
	return ok
}

// Expand grows every half extent by delta. Unsized bounds stay unsized.
func (b Bounds) Expand(delta float64) Bounds {
	if !b.sized {
		return b
	}
	return NewBounds(b.center, b.extents.Add(r3.Vector{X: delta, Y: delta, Z: delta}))
}

// Translate moves the box by offset.
func (b Bounds) Translate(offset r3.Vector) Bounds {
	b.center = b.center.Add(offset)
	return b
}

// Union returns the smallest box enclosing every sized input. Unsized inputs are
// skipped; ok is false when nothing sized remains.
func Union(boxes ...Bounds) (Bounds, bool) {
	var (
		lo, hi r3.Vector
		found  bool
	)
	for _, box := range boxes {
		if !box.sized {
			continue
		}
		if !found {
			lo, hi = box.Min(), box.Max()
			found = true
			continue
		}
		bmin, bmax := box.Min(), box.Max()
		lo = r3.Vector{X: math.Min(lo.X, bmin.X), Y: math.Min(lo.Y, bmin.Y), Z: math.Min(lo.Z, bmin.Z)}
		hi = r3.Vector{X: math.Max(hi.X, bmax.X), Y: math.Max(hi.Y, bmax.Y), Z: math.Max(hi.Z, bmax.Z)}
	}
	if !found {
		return Bounds{}, false
	}
	return BoundsFromMinMax(lo, hi), true
}

// Intersection returns the shared region of two sized boxes. ok is false when
// either box is unsized or they are disjoint. Boxes that only touch produce an
// unsized anchor on the contact point when the shared region is flat on all axes.
func Intersection(a, b Bounds) (Bounds, bool) {
	if !a.sized || !b.sized {
		return Bounds{}, false
	}
	amin, amax := a.Min(), a.Max()
	bmin, bmax := b.Min(), b.Max()
	x, okX := NewClosedInterval(amin.X, amax.X).Intersection(NewClosedInterval(bmin.X, bmax.X))
	y, okY := NewClosedInterval(amin.Y, amax.Y).Intersection(NewClosedInterval(bmin.Y, bmax.Y))
	z, okZ := NewClosedInterval(amin.Z, amax.Z).Intersection(NewClosedInterval(bmin.Z, bmax.Z))
	if !okX || !okY || !okZ {
		return Bounds{}, false
	}
	return BoundsFromMinMax(
		r3.Vector{X: x.Start(), Y: y.Start(), Z: z.Start()},
		r3.Vector{X: x.End(), Y: y.End(), Z: z.End()},
	), true
}

func finite(v r3.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
