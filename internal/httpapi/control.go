package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/director"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/logging"
)

const maxControlBody = 16 << 10

// Region is the JSON form of a box: either center plus half extents or two
// opposite corners. A center without extents is an unsized anchor.
type Region struct {
	Center      *[3]float64 `json:"center,omitempty"`
	HalfExtents *[3]float64 `json:"half_extents,omitempty"`
	Min         *[3]float64 `json:"min,omitempty"`
	Max         *[3]float64 `json:"max,omitempty"`
}

// Bounds converts the region into a geometry box.
func (r Region) Bounds() (geometry.Bounds, error) {
	switch {
	case r.Min != nil || r.Max != nil:
		if r.Min == nil || r.Max == nil {
			return geometry.Bounds{}, errors.New("region needs both min and max")
		}
		return geometry.BoundsFromMinMax(vector(*r.Min), vector(*r.Max)), nil
	case r.Center != nil:
		if r.HalfExtents == nil {
			return geometry.PointBounds(vector(*r.Center)), nil
		}
		return geometry.NewBounds(vector(*r.Center), vector(*r.HalfExtents)), nil
	default:
		return geometry.Bounds{}, errors.New("region needs center or min/max")
	}
}

// FocusCommand is the body accepted by POST /focus. Exactly one of Object,
// Area or Clear must be set.
type FocusCommand struct {
	Object string  `json:"object,omitempty"`
	Region *Region `json:"region,omitempty"`
	Area   *Region `json:"area,omitempty"`
	Clear  bool    `json:"clear,omitempty"`
}

// Request translates the command into a controller focus request.
func (c FocusCommand) Request() (director.FocusRequest, error) {
	object := strings.TrimSpace(c.Object)
	set := 0
	for _, present := range []bool{object != "", c.Area != nil, c.Clear} {
		if present {
			set++
		}
	}
	if set != 1 {
		return director.FocusRequest{}, errors.New("exactly one of object, area or clear is required")
	}
	switch {
	case c.Clear:
		return director.NoFocus(), nil
	case c.Area != nil:
		region, err := c.Area.Bounds()
		if err != nil {
			return director.FocusRequest{}, fmt.Errorf("area: %w", err)
		}
		return director.FocusOnArea(region), nil
	default:
		if c.Region == nil {
			return director.FocusOnObject(object), nil
		}
		region, err := c.Region.Bounds()
		if err != nil {
			return director.FocusRequest{}, fmt.Errorf("region: %w", err)
		}
		return director.FocusOnObjectRegion(object, region), nil
	}
}

// FocusHandler applies a focus request. The controller acts on it at its next tick.
func (h *HandlerSet) FocusHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Kind   string `json:"kind"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd FocusCommand
		if err := decodeBody(r, &cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		request, err := cmd.Request()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.director.SetFocus(request)
		logging.LoggerFromContext(r.Context()).Info("focus requested",
			logging.String("kind", request.Kind().String()),
			logging.String("subject", request.Subject()),
		)
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Kind: request.Kind().String()})
	}
}

// VisibleAreaHandler sets (POST) or clears (DELETE) the region whose extreme
// points must stay in view.
func (h *HandlerSet) VisibleAreaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			h.director.ClearVisibleArea()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var region Region
		if err := decodeBody(r, &region); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bounds, err := region.Bounds()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !bounds.Sized() {
			http.Error(w, "visible area must have a size", http.StatusBadRequest)
			return
		}
		h.director.SetVisibleArea(bounds)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ActivateHandler toggles auto selection.
func (h *HandlerSet) ActivateHandler() http.HandlerFunc {
	type request struct {
		Enabled *bool `json:"enabled"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body request
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Enabled == nil {
			http.Error(w, "enabled is required", http.StatusBadRequest)
			return
		}
		h.director.Activate(*body.Enabled)
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
	}
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxControlBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func vector(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
