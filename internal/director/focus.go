package director

import "capturerig/director/internal/geometry"

// FocusKind tags the variant held by a FocusRequest.
type FocusKind int

const (
	// FocusNone tracks the default subject.
	FocusNone FocusKind = iota
	// FocusObject frames a scene object, optionally restricted to a region.
	FocusObject
	// FocusArea frames a region with no object attached.
	FocusArea
)

func (k FocusKind) String() string {
	switch k {
	case FocusObject:
		return "object"
	case FocusArea:
		return "area"
	default:
		return "none"
	}
}

// FocusRequest is an immutable focus instruction. The controller replaces its
// stored request wholesale; a pending request is serviced on the next
// evaluation and then kept only as a consumed copy.
type FocusRequest struct {
	kind      FocusKind
	subject   string
	region    geometry.Bounds
	hasRegion bool
	refocus   bool
}

// NoFocus returns the empty request.
func NoFocus() FocusRequest { return FocusRequest{} }

// FocusOnObject frames subject using its scene bounds.
func FocusOnObject(subject string) FocusRequest {
	return FocusRequest{kind: FocusObject, subject: subject, refocus: true}
}

// FocusOnObjectRegion frames subject using an explicit region.
func FocusOnObjectRegion(subject string, region geometry.Bounds) FocusRequest {
	return FocusRequest{kind: FocusObject, subject: subject, region: region, hasRegion: true, refocus: true}
}

// FocusOnArea frames a region of the world.
func FocusOnArea(region geometry.Bounds) FocusRequest {
	return FocusRequest{kind: FocusArea, region: region, hasRegion: true, refocus: true}
}

// Kind reports the variant.
func (f FocusRequest) Kind() FocusKind { return f.kind }

// Subject returns the focused object handle, empty for areas.
func (f FocusRequest) Subject() string { return f.subject }

// Region returns the explicit region, if one was supplied.
func (f FocusRequest) Region() (geometry.Bounds, bool) { return f.region, f.hasRegion }

// Pending reports whether the one-shot refocus has not been consumed yet.
func (f FocusRequest) Pending() bool { return f.kind != FocusNone && f.refocus }

func (f FocusRequest) consumed() FocusRequest {
	f.refocus = false
	return f
}
