package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"capturerig/director/internal/logging"
)

var (
	// ErrUnknownDestination reports a placement onto an object the scene does not know.
	ErrUnknownDestination = errors.New("destination has no known size")
	// ErrUnknownSource reports a placement of an object the scene does not know.
	ErrUnknownSource = errors.New("source has no known size")
)

// SubjectUpdate is the body accepted by POST /subject: the tracked object's
// current region, pushed by the animation system every frame or so.
type SubjectUpdate struct {
	Handle string `json:"handle"`
	Region Region `json:"region"`
}

// PlacementQuery is the body accepted by POST /placements.
type PlacementQuery struct {
	Source           string      `json:"source"`
	Destination      string      `json:"destination"`
	Anchor           [3]float64  `json:"anchor"`
	Inside           bool        `json:"inside,omitempty"`
	IgnoreOverlap    bool        `json:"ignore_overlap,omitempty"`
	RelativeToAnchor bool        `json:"relative_to_anchor,omitempty"`
	Explicit         *[2]float64 `json:"explicit,omitempty"`
}

// AnchorVector returns the anchor as a vector.
func (q PlacementQuery) AnchorVector() r3.Vector { return vector(q.Anchor) }

// ExplicitPoint returns the explicit (X, Z) position, if one was given.
func (q PlacementQuery) ExplicitPoint() *r2.Point {
	if q.Explicit == nil {
		return nil
	}
	return &r2.Point{X: q.Explicit[0], Y: q.Explicit[1]}
}

// SubjectHandler moves the tracked subject and makes it the default target.
func (h *HandlerSet) SubjectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update SubjectUpdate
		if err := decodeBody(r, &update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handle := strings.TrimSpace(update.Handle)
		if handle == "" {
			http.Error(w, "handle is required", http.StatusBadRequest)
			return
		}
		region, err := update.Region.Bounds()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.director.UpdateSubject(handle, region); err != nil {
			logging.LoggerFromContext(r.Context()).Warn("subject update rejected", logging.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PlacementHandler runs a placement search and lists the resting positions found.
func (h *HandlerSet) PlacementHandler() http.HandlerFunc {
	type response struct {
		Positions [][3]float64 `json:"positions"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var query PlacementQuery
		if err := decodeBody(r, &query); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(query.Source) == "" || strings.TrimSpace(query.Destination) == "" {
			http.Error(w, "source and destination are required", http.StatusBadRequest)
			return
		}
		positions, err := h.director.Place(query)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownDestination) || errors.Is(err, ErrUnknownSource) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		resp := response{Positions: make([][3]float64, 0, len(positions))}
		for _, p := range positions {
			resp.Positions = append(resp.Positions, [3]float64{p.X, p.Y, p.Z})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
