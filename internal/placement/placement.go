// Package placement finds free resting positions for an object on or inside a
// destination object with a radial, angle-quantized sweep.
package placement

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"capturerig/director/internal/geometry"
	"capturerig/director/internal/logging"
)

const radiusEpsilon = 1e-9

// Config holds the search tunables.
type Config struct {
	// RadiusStep is the distance between consecutive sweep rings.
	RadiusStep float64
	// AngleSteps is the number of candidates per ring.
	AngleSteps int
	// InsideOffset is the sweep radius used when placing inside the destination.
	InsideOffset float64
	// AnchorOffset is the sweep radius used when placing relative to the anchor.
	AnchorOffset float64
	// ProbeHeight is how far above the destination's top the downward probes start.
	ProbeHeight float64
	// SurfaceTolerance is the largest height difference between footprint probes.
	SurfaceTolerance float64
	// Skin lifts the placed object clear of the surface it rests on.
	Skin float64
	// Reach bounds the horizontal distance from the anchor for swept candidates.
	Reach geometry.Interval
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		RadiusStep:       0.1,
		AngleSteps:       20,
		InsideOffset:     0.1,
		AnchorOffset:     0.3,
		ProbeHeight:      1.0,
		SurfaceTolerance: 0.02,
		Skin:             0.01,
		Reach:            geometry.NewClosedInterval(0, 3),
	}
}

// Request describes one placement query.
type Request struct {
	// Source is the bounds of the object being placed.
	Source       geometry.Bounds
	SourceHandle string
	// Anchor is the interaction point, usually the actor doing the placing.
	Anchor            r3.Vector
	Destination       geometry.Bounds
	DestinationHandle string
	// Inside places within the destination and skips the overlap test.
	Inside        bool
	IgnoreOverlap bool
	// RelativeToAnchor sweeps around the anchor instead of the destination center.
	RelativeToAnchor bool
	// Explicit tests a single horizontal (X, Z) position instead of sweeping.
	Explicit *r2.Point
}

// Surfaces answers the geometric queries the search needs.
type Surfaces interface {
	// ProbeDownward casts a vertical ray and reports the surface it meets.
	ProbeDownward(point r3.Vector) (hit bool, surfaceID string, height float64)
	// OverlapBox lists objects overlapping the box, ignoring except and its children.
	OverlapBox(center, halfExtents r3.Vector, except string) []string
	// BelongsTo reports whether surface is object or one of its descendants.
	BelongsTo(surface, object string) bool
}

// Searcher runs placement queries against a scene.
type Searcher struct {
	cfg      Config
	surfaces Surfaces
	log      *logging.Logger
}

// NewSearcher builds a searcher. Zero-valued tunables fall back to DefaultConfig.
func NewSearcher(surfaces Surfaces, cfg Config, logger *logging.Logger) *Searcher {
	defaults := DefaultConfig()
	if cfg.RadiusStep <= 0 {
		cfg.RadiusStep = defaults.RadiusStep
	}
	if cfg.AngleSteps <= 0 {
		cfg.AngleSteps = defaults.AngleSteps
	}
	if cfg.ProbeHeight <= 0 {
		cfg.ProbeHeight = defaults.ProbeHeight
	}
	if cfg.Reach == (geometry.Interval{}) {
		cfg.Reach = defaults.Reach
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Searcher{cfg: cfg, surfaces: surfaces, log: logger.With(logging.String("component", "placement"))}
}

// Find returns every accepted world position in sweep order. An empty result
// means nothing fits; it is not an error.
func (s *Searcher) Find(req Request) []r3.Vector {
	if s == nil || s.surfaces == nil {
		return nil
	}
	if req.Explicit != nil {
		if position, ok := s.test(req, req.Explicit.X, req.Explicit.Y); ok {
			return []r3.Vector{position}
		}
		return nil
	}

	//1.- Sweep around the destination (or the anchor) starting on the side facing the anchor.
	center := req.Destination.Center()
	if req.RelativeToAnchor {
		center = req.Anchor
	}
	start := math.Atan2(req.Anchor.Z-center.Z, req.Anchor.X-center.X)
	maxRadius := s.maxRadius(req)
	angleStep := 2 * math.Pi / float64(s.cfg.AngleSteps)

	var accepted []r3.Vector
	tested := 0
	for ring := 0; ; ring++ {
		radius := float64(ring) * s.cfg.RadiusStep
		if radius > maxRadius+radiusEpsilon {
			break
		}
		steps := s.cfg.AngleSteps
		if radius == 0 {
			steps = 1
		}
		for step := 0; step < steps; step++ {
			angle := start + float64(step)*angleStep
			x := center.X + radius*math.Cos(angle)
			z := center.Z + radius*math.Sin(angle)
			tested++
			//2.- Swept candidates must stay within reach of the interaction point.
			if !s.cfg.Reach.Contains(math.Hypot(x-req.Anchor.X, z-req.Anchor.Z)) {
				continue
			}
			if position, ok := s.test(req, x, z); ok {
				accepted = append(accepted, position)
			}
		}
	}
	s.log.Debug("placement sweep finished",
		logging.String("source", req.SourceHandle),
		logging.String("destination", req.DestinationHandle),
		logging.Int("tested", tested),
		logging.Int("accepted", len(accepted)),
	)
	return accepted
}

// maxRadius picks the sweep radius for the request's mode.
func (s *Searcher) maxRadius(req Request) float64 {
	switch {
	case req.Inside:
		return s.cfg.InsideOffset
	case req.RelativeToAnchor:
		return s.cfg.AnchorOffset
	default:
		dest := req.Destination.Extents()
		src := sourceExtents(req, s.cfg.Skin)
		radius := math.Min(dest.X, dest.Z) - math.Max(src.X, src.Z)
		if radius < 0 {
			return 0
		}
		return radius
	}
}

// test checks one horizontal position: the source footprint must rest flat on
// a single destination surface and, unless waived, overlap nothing.
func (s *Searcher) test(req Request, x, z float64) (r3.Vector, bool) {
	src := sourceExtents(req, s.cfg.Skin)
	probeY := req.Destination.Max().Y + s.cfg.ProbeHeight
	if req.RelativeToAnchor && req.Anchor.Y+s.cfg.ProbeHeight > probeY {
		probeY = req.Anchor.Y + s.cfg.ProbeHeight
	}

	var surface string
	lowest, highest := math.Inf(1), math.Inf(-1)
	for _, corner := range [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		hit, id, height := s.surfaces.ProbeDownward(r3.Vector{X: x + corner[0]*src.X, Y: probeY, Z: z + corner[1]*src.Z})
		if !hit {
			return r3.Vector{}, false
		}
		if surface == "" {
			surface = id
		} else if id != surface {
			return r3.Vector{}, false
		}
		lowest = math.Min(lowest, height)
		highest = math.Max(highest, height)
	}
	if highest-lowest > s.cfg.SurfaceTolerance {
		return r3.Vector{}, false
	}
	if req.DestinationHandle != "" && !s.surfaces.BelongsTo(surface, req.DestinationHandle) {
		return r3.Vector{}, false
	}

	position := r3.Vector{X: x, Y: highest + src.Y + s.cfg.Skin, Z: z}
	if req.Inside || req.IgnoreOverlap {
		return position, true
	}
	for _, hit := range s.surfaces.OverlapBox(position, src, req.SourceHandle) {
		if hit != surface {
			return r3.Vector{}, false
		}
	}
	return position, true
}

// sourceExtents treats an unsized source as a tiny cube so probes and overlap
// queries still have a footprint.
func sourceExtents(req Request, skin float64) r3.Vector {
	if req.Source.Sized() {
		return req.Source.Extents()
	}
	return r3.Vector{X: skin, Y: skin, Z: skin}
}
