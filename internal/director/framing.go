package director

import (
	"github.com/golang/geo/r3"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/geometry"
)

// Frame aims v at the region's center. For a sized region the vertical field of
// view becomes the full cone enclosing every corner plus margin degrees, which
// also updates every channel bound to v. An unsized region only re-aims.
func Frame(v *camera.Viewpoint, region geometry.Bounds, margin float64) {
	if v == nil {
		return
	}
	center := region.Center()
	v.LookAt(center)
	if !region.Sized() {
		return
	}
	if fov, ok := EnclosingFieldOfView(v.Position, region, margin); ok {
		v.SetFieldOfView(fov)
	}
}

// EnclosingFieldOfView returns twice the widest angle between the direction to
// the region's center and the direction to any of its corners, plus margin.
func EnclosingFieldOfView(from r3.Vector, region geometry.Bounds, margin float64) (float64, bool) {
	if !region.Sized() {
		return 0, false
	}
	toCenter := region.Center().Sub(from)
	if toCenter.Norm2() == 0 {
		return camera.MaxFieldOfView, true
	}
	widest := 0.0
	for _, corner := range region.Corners() {
		toCorner := corner.Sub(from)
		if toCorner.Norm2() == 0 {
			return camera.MaxFieldOfView, true
		}
		if angle := toCenter.Angle(toCorner).Degrees(); angle > widest {
			widest = angle
		}
	}
	fov := 2*widest + margin
	if fov > camera.MaxFieldOfView {
		fov = camera.MaxFieldOfView
	}
	return fov, true
}
