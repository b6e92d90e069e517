// Package scene is the in-process stand-in for the engine: it keeps registered
// objects as axis-aligned boxes and answers the synchronous line-of-sight,
// bounds, downward-probe and overlap queries the director and the placement
// search depend on.
package scene

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"capturerig/director/internal/geometry"
	"capturerig/director/internal/simulation"

	"github.com/golang/geo/r3"
)

const (
	raySteps     = 128
	rayEpsilon   = 1e-3
	rayTolerance = 0.05
	probeEpsilon = 1e-6
	cornerInset  = 0.9
)

var (
	// ErrDuplicateObject reports a handle that is already registered.
	ErrDuplicateObject = errors.New("object already registered")
	// ErrUnknownObject reports a handle that is not registered.
	ErrUnknownObject = errors.New("unknown object")
)

// Object is a registered scene element.
type Object struct {
	Handle string
	// Parent links the object into a hierarchy so probes can accept child surfaces.
	Parent string
	Bounds geometry.Bounds
	// Occluder objects block line of sight.
	Occluder bool
	// Surface objects can be found by downward probes.
	Surface bool
}

// World stores objects and static fields. Queries take a read lock so a
// control surface may register objects while the director loop is idle.
type World struct {
	mu      sync.RWMutex
	objects map[string]*Object
	order   []string
	static  []simulation.SignedDistanceField
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{objects: make(map[string]*Object)}
}

// Add registers an object.
func (w *World) Add(obj Object) error {
	handle := strings.TrimSpace(obj.Handle)
	if handle == "" {
		return errors.New("object handle must be provided")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.objects[handle]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateObject, handle)
	}
	obj.Handle = handle
	w.objects[handle] = &obj
	w.order = append(w.order, handle)
	return nil
}

// AddStatic adds an occluding field that belongs to no object, such as terrain.
func (w *World) AddStatic(field simulation.SignedDistanceField) {
	if field == nil {
		return
	}
	w.mu.Lock()
	w.static = append(w.static, field)
	w.mu.Unlock()
}

// Move recenters a registered object, keeping its extents.
func (w *World) Move(handle string, center r3.Vector) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj, ok := w.objects[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, handle)
	}
	if obj.Bounds.Sized() {
		obj.Bounds = geometry.NewBounds(center, obj.Bounds.Extents())
	} else {
		obj.Bounds = geometry.PointBounds(center)
	}
	return nil
}

// Remove unregisters an object. Unknown handles are ignored.
func (w *World) Remove(handle string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.objects[handle]; !ok {
		return
	}
	delete(w.objects, handle)
	kept := w.order[:0]
	for _, h := range w.order {
		if h != handle {
			kept = append(kept, h)
		}
	}
	w.order = kept
}

// GetBounds returns the object's bounds. Objects without size information, and
// unknown handles, yield an unsized anchor at their position (origin if unknown).
func (w *World) GetBounds(handle string) geometry.Bounds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	obj, ok := w.objects[handle]
	if !ok {
		return geometry.PointBounds(r3.Vector{})
	}
	return obj.Bounds
}

// IsUnoccluded reports whether the subject's center can be seen from the position.
func (w *World) IsUnoccluded(subject string, from r3.Vector) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	field := w.occludersLocked(subject)
	return lineOfSight(field, from, w.boundsLocked(subject).Center())
}

// VisibilityFactor samples the subject center plus its eight corners (inset so
// the samples sit inside the silhouette) and returns the unobstructed fraction.
func (w *World) VisibilityFactor(subject string, from r3.Vector) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	bounds := w.boundsLocked(subject)
	field := w.occludersLocked(subject)
	samples := []r3.Vector{bounds.Center()}
	if bounds.Sized() {
		inset := geometry.NewBounds(bounds.Center(), bounds.Extents().Mul(cornerInset))
		corners := inset.Corners()
		samples = append(samples, corners[:]...)
	}
	visible := 0
	for _, sample := range samples {
		if lineOfSight(field, from, sample) {
			visible++
		}
	}
	return float64(visible) / float64(len(samples))
}

// ProbeDownward casts a vertical ray from point and returns the highest surface
// top at or below it whose footprint covers the ray.
func (w *World) ProbeDownward(point r3.Vector) (hit bool, surfaceID string, height float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	height = math.Inf(-1)
	for _, handle := range w.order {
		obj := w.objects[handle]
		if !obj.Surface || !obj.Bounds.Sized() {
			continue
		}
		lo, hi := obj.Bounds.Min(), obj.Bounds.Max()
		//1.- The ray only meets boxes whose horizontal footprint contains it.
		if point.X < lo.X || point.X > hi.X || point.Z < lo.Z || point.Z > hi.Z {
			continue
		}
		//2.- A ray starting inside or below the top face never sees that face.
		if hi.Y > point.Y+probeEpsilon {
			continue
		}
		if hi.Y > height {
			hit, surfaceID, height = true, handle, hi.Y
		}
	}
	if !hit {
		return false, "", 0
	}
	return hit, surfaceID, height
}

// OverlapBox lists registered objects whose sized bounds overlap the query box,
// skipping except and its descendants.
func (w *World) OverlapBox(center, halfExtents r3.Vector, except string) []string {
	query := geometry.NewBounds(center, halfExtents)
	if !query.Sized() {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var hits []string
	for _, handle := range w.order {
		if except != "" && w.belongsToLocked(handle, except) {
			continue
		}
		if w.objects[handle].Bounds.Overlaps(query) {
			hits = append(hits, handle)
		}
	}
	return hits
}

// BelongsTo reports whether surface is object itself or one of its descendants.
func (w *World) BelongsTo(surface, object string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.belongsToLocked(surface, object)
}

func (w *World) belongsToLocked(handle, ancestor string) bool {
	//1.- Walk up the parent chain; the hop limit guards against accidental cycles.
	for hops := 0; handle != "" && hops <= len(w.objects); hops++ {
		if handle == ancestor {
			return true
		}
		obj, ok := w.objects[handle]
		if !ok {
			return false
		}
		handle = obj.Parent
	}
	return false
}

func (w *World) boundsLocked(handle string) geometry.Bounds {
	if obj, ok := w.objects[handle]; ok {
		return obj.Bounds
	}
	return geometry.PointBounds(r3.Vector{})
}

// occludersLocked builds the blocking field, leaving out the subject and its parts.
func (w *World) occludersLocked(subject string) simulation.UnionField {
	field := make(simulation.UnionField, 0, len(w.static)+len(w.order))
	field = append(field, w.static...)
	for _, handle := range w.order {
		obj := w.objects[handle]
		if !obj.Occluder || !obj.Bounds.Sized() {
			continue
		}
		if subject != "" && w.belongsToLocked(handle, subject) {
			continue
		}
		field = append(field, simulation.BoxField{Center: obj.Bounds.Center(), HalfExtents: obj.Bounds.Extents()})
	}
	return field
}

func lineOfSight(field simulation.UnionField, from, to r3.Vector) bool {
	distance := to.Sub(from).Norm()
	if distance == 0 || len(field) == 0 {
		return true
	}
	hit, hitDistance, _ := simulation.Raycast(field, from, to.Sub(from), distance, raySteps, rayEpsilon)
	if !hit {
		return true
	}
	//1.- Surfaces touching the target itself (a floor under a foot) do not count as occluders.
	return hitDistance >= distance-rayTolerance
}
