package director

import "errors"

// ErrNoViewpoints reports ticks against an empty viewpoint pool.
var ErrNoViewpoints = errors.New("director: no candidate viewpoints available")

// Status is the outcome of a single Tick.
type Status int

const (
	// StatusIdle means no tick has run yet.
	StatusIdle Status = iota
	// StatusInactive means auto-selection is disabled.
	StatusInactive
	// StatusNoCandidates means the pool is empty.
	StatusNoCandidates
	// StatusDwell means the active viewpoint has not been active long enough to re-evaluate.
	StatusDwell
	// StatusHeld means the active viewpoint was kept after re-evaluation.
	StatusHeld
	// StatusSwitched means a new viewpoint was activated and announced.
	StatusSwitched
	// StatusReframed means the active viewpoint was re-aimed at a new focus in place.
	StatusReframed
	// StatusReentrant means Tick was called from inside a change handler and ignored.
	StatusReentrant
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusNoCandidates:
		return "no_candidates"
	case StatusDwell:
		return "dwell"
	case StatusHeld:
		return "held"
	case StatusSwitched:
		return "switched"
	case StatusReframed:
		return "reframed"
	case StatusReentrant:
		return "reentrant"
	default:
		return "idle"
	}
}

// Err maps the no-candidates status to ErrNoViewpoints and everything else to nil.
func (s Status) Err() error {
	if s == StatusNoCandidates {
		return ErrNoViewpoints
	}
	return nil
}

// MarshalText renders the status name for JSON payloads.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
