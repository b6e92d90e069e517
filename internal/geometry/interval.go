// Package geometry holds the pure numeric primitives shared by the viewpoint
// director and the placement search: closed intervals, planar containment and
// crossing tests, and axis-aligned bounds with an explicit unknown-size state.
package geometry

import (
	"github.com/golang/geo/r1"
)

// Interval is a closed numeric range whose start never exceeds its end.
type Interval struct {
	span r1.Interval
}

// NewClosedInterval normalises the endpoints so the smaller value becomes the start.
func NewClosedInterval(a, b float64) Interval {
	if a > b {
		a, b = b, a
	}
	return Interval{span: r1.Interval{Lo: a, Hi: b}}
}

// Start returns the lower endpoint.
func (i Interval) Start() float64 { return i.span.Lo }

// End returns the upper endpoint.
func (i Interval) End() float64 { return i.span.Hi }

// Length returns end - start.
func (i Interval) Length() float64 { return i.span.Length() }

// Contains reports whether x lies within the closed range.
func (i Interval) Contains(x float64) bool { return i.span.Contains(x) }

// Intersection returns the overlapping sub-interval. The boolean is false when
// max(starts) > min(ends); touching endpoints still overlap in a single point.
func (i Interval) Intersection(other Interval) (Interval, bool) {
	overlap := i.span.Intersection(other.span)
	if overlap.IsEmpty() {
		return Interval{}, false
	}
	return Interval{span: overlap}, true
}
