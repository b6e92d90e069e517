package camera

import "github.com/golang/geo/r3"

const (
	// BandMin is the lower edge of the central band on both viewport axes.
	BandMin = 0.1
	// BandMax is the upper edge of the central band on both viewport axes.
	BandMax = 0.9
)

// Occlusion answers line-of-sight questions about a tracked subject. It is
// supplied by the scene and called synchronously from inside a tick.
type Occlusion interface {
	// IsUnoccluded reports whether the subject's center is visible from the position.
	IsUnoccluded(subject string, from r3.Vector) bool
	// VisibilityFactor returns the visible fraction of the subject's silhouette in [0,1].
	VisibilityFactor(subject string, from r3.Vector) float64
}

// InCentralBand reports whether point projects in front of the viewpoint and
// inside the inner 80% of its viewport on both axes. It never tests occlusion.
func InCentralBand(v *Viewpoint, point r3.Vector) bool {
	if v == nil {
		return false
	}
	x, y, depth := v.Project(point)
	if depth <= 0 {
		return false
	}
	return x >= BandMin && x <= BandMax && y >= BandMin && y <= BandMax
}

// AllInCentralBand reports whether every point satisfies InCentralBand.
func AllInCentralBand(v *Viewpoint, points ...r3.Vector) bool {
	for _, point := range points {
		if !InCentralBand(v, point) {
			return false
		}
	}
	return len(points) > 0
}
