package geometry

import "github.com/golang/geo/r2"

// WindingNumber counts how many times the closed ring winds around point.
// The ring must repeat its first vertex as its last one. Upward edge crossings
// with the point on their left add one; downward crossings with the point on
// their right subtract one.
func WindingNumber(point r2.Point, ring []r2.Point) int {
	winding := 0
	for idx := 0; idx+1 < len(ring); idx++ {
		a := ring[idx]
		b := ring[idx+1]
		if a.Y <= point.Y {
			//1.- Upward crossing: only counts when the point sits strictly left of the edge.
			if b.Y > point.Y && sideOf(a, b, point) > 0 {
				winding++
			}
			continue
		}
		//2.- Downward crossing: only counts when the point sits strictly right of the edge.
		if b.Y <= point.Y && sideOf(a, b, point) < 0 {
			winding--
		}
	}
	return winding
}

// PolygonContains reports whether point lies inside the closed ring using the
// non-zero winding rule.
func PolygonContains(point r2.Point, ring []r2.Point) bool {
	return WindingNumber(point, ring) != 0
}

// SegmentsIntersect reports whether segment ab crosses segment cd. Both endpoint
// pairs must straddle the other segment with strictly opposite orientation.
// Collinear or touching configurations are not resolved and may report either
// value.
func SegmentsIntersect(a, b, c, d r2.Point) bool {
	return counterClockwise(a, c, d) != counterClockwise(b, c, d) &&
		counterClockwise(a, b, c) != counterClockwise(a, b, d)
}

// sideOf is positive when p is left of the directed line a->b.
func sideOf(a, b, p r2.Point) float64 {
	return b.Sub(a).Cross(p.Sub(a))
}

func counterClockwise(a, b, c r2.Point) bool {
	return sideOf(a, b, c) > 0
}
