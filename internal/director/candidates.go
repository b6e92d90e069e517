package director

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/geometry"
)

// Candidate pairs a viewpoint with its distance to the current target. It is
// rebuilt on every evaluation and never kept across ticks.
type Candidate struct {
	Distance  float64
	Viewpoint *camera.Viewpoint
}

// String renders a compact description for logs.
func (c Candidate) String() string {
	return fmt.Sprintf("%s@%.2f", c.Viewpoint.Name, c.Distance)
}

// focusTarget resolves what a pending focus request should frame.
func (c *Controller) focusTarget() (geometry.Bounds, bool) {
	switch c.focus.Kind() {
	case FocusObject:
		if region, ok := c.focus.Region(); ok {
			return region, true
		}
		return c.scene.GetBounds(c.focus.Subject()), true
	case FocusArea:
		region, _ := c.focus.Region()
		return region, true
	default:
		return geometry.Bounds{}, false
	}
}

// focusCandidates keeps viewpoints that hold both extremes of the focus region
// in their central band and, for objects, can see the object.
func (c *Controller) focusCandidates() []Candidate {
	region, ok := c.focusTarget()
	if !ok {
		return nil
	}
	subject := c.focus.Subject()
	_, explicit := c.focus.Region()
	extremes := []r3.Vector{region.Min(), region.Max()}
	center := region.Center()

	var out []Candidate
	for _, v := range c.pool.All() {
		if !camera.AllInCentralBand(v, extremes...) {
			continue
		}
		if c.focus.Kind() == FocusObject {
			if !c.scene.IsUnoccluded(subject, v.Position) {
				continue
			}
			//1.- Without an explicit region only the silhouette tells whether enough is visible.
			if !explicit && c.scene.VisibilityFactor(subject, v.Position) <= c.cfg.VisibilityThreshold {
				continue
			}
		}
		out = append(out, Candidate{Distance: v.DistanceTo(center), Viewpoint: v})
	}
	return sortCandidates(out)
}

// subjectCandidates scores every viewpoint against the tracked subject or the
// visible area and prefers those at a comfortable distance.
func (c *Controller) subjectCandidates() []Candidate {
	if !c.hasSubject && !c.hasVisibleArea {
		return nil
	}
	points := []r3.Vector{c.subjectPosition}
	anchor := c.subjectPosition
	if c.hasVisibleArea {
		points = []r3.Vector{c.visibleArea.Min(), c.visibleArea.Max()}
		if !c.hasSubject {
			anchor = c.visibleArea.Center()
		}
	}

	var all, comfortable []Candidate
	for _, v := range c.pool.All() {
		if !camera.AllInCentralBand(v, points...) {
			continue
		}
		if c.subjectHandle != "" && c.scene.VisibilityFactor(c.subjectHandle, v.Position) <= c.cfg.VisibilityThreshold {
			continue
		}
		candidate := Candidate{Distance: v.DistanceTo(anchor), Viewpoint: v}
		all = append(all, candidate)
		if c.cfg.ComfortBand.Contains(candidate.Distance) {
			comfortable = append(comfortable, candidate)
		}
	}
	if len(comfortable) > 0 {
		return sortCandidates(comfortable)
	}
	return sortCandidates(all)
}

func sortCandidates(candidates []Candidate) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates
}

func findCandidate(candidates []Candidate, id int) (Candidate, bool) {
	for _, candidate := range candidates {
		if candidate.Viewpoint.ID == id {
			return candidate, true
		}
	}
	return Candidate{}, false
}

// pick returns the nearest candidate or, when randomization is enabled, a
// uniform choice among those within the tie band of the nearest.
func (c *Controller) pick(candidates []Candidate) Candidate {
	if !c.cfg.Randomize || len(candidates) < 2 {
		return candidates[0]
	}
	limit := candidates[0].Distance * (1 + c.cfg.TieBand)
	tied := 1
	for tied < len(candidates) && candidates[tied].Distance <= limit {
		tied++
	}
	if tied == 1 {
		return candidates[0]
	}
	return candidates[c.random.RandomInt(0, tied)]
}
