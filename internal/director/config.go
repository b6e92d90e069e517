// Package director implements the automatic viewpoint selection controller: it
// scores every pooled viewpoint against the tracked subject or a focus request
// once per tick, applies dwell and hysteresis, frames focus targets and
// announces committed switches.
package director

import (
	"time"

	"capturerig/director/internal/geometry"
)

// Config holds the selection tunables. Zero fields take their DefaultConfig
// value. Dwell, SwitchMargin, VisibilityThreshold, TieBand and FramingMargin
// accept a negative value to mean an explicit zero.
type Config struct {
	// Dwell is the minimum time a viewpoint stays active before re-evaluation.
	Dwell time.Duration
	// ComfortBand is the preferred subject distance range.
	ComfortBand geometry.Interval
	// MaxActiveDistance forces re-evaluation once the active viewpoint drifts further away.
	MaxActiveDistance float64
	// SwitchMargin is how much nearer a candidate must be before replacing the active viewpoint.
	SwitchMargin float64
	// VisibilityThreshold is the silhouette fraction a subject must exceed to be framed.
	VisibilityThreshold float64
	// TieBand is the relative distance band around the nearest candidate used for randomized picks.
	TieBand float64
	// FramingMargin is added, in degrees, to the cone that encloses a framed region.
	FramingMargin float64
	// Randomize picks uniformly among candidates inside the tie band.
	Randomize bool
	// WarnEvery throttles the "no candidates" warning to once per this many ticks.
	WarnEvery uint64
}

// DefaultConfig returns the stock selection tunables.
func DefaultConfig() Config {
	return Config{
		Dwell:               500 * time.Millisecond,
		ComfortBand:         geometry.NewClosedInterval(1, 5),
		MaxActiveDistance:   6,
		SwitchMargin:        0.5,
		VisibilityThreshold: 0.15,
		TieBand:             0.10,
		FramingMargin:       15,
		WarnEvery:           300,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.Dwell = orDefault(c.Dwell, d.Dwell)
	c.SwitchMargin = orDefault(c.SwitchMargin, d.SwitchMargin)
	c.VisibilityThreshold = orDefault(c.VisibilityThreshold, d.VisibilityThreshold)
	c.TieBand = orDefault(c.TieBand, d.TieBand)
	c.FramingMargin = orDefault(c.FramingMargin, d.FramingMargin)
	if c.ComfortBand == (geometry.Interval{}) {
		c.ComfortBand = d.ComfortBand
	}
	if c.MaxActiveDistance <= 0 {
		c.MaxActiveDistance = d.MaxActiveDistance
	}
	if c.WarnEvery == 0 {
		c.WarnEvery = d.WarnEvery
	}
	return c
}

// orDefault keeps positive values, maps zero to def and negative to zero.
func orDefault[T ~int64 | ~float64](value, def T) T {
	switch {
	case value == 0:
		return def
	case value < 0:
		return 0
	}
	return value
}

// Explicit returns v unless it is zero, in which case it returns the negative
// sentinel that survives defaulting as an explicit zero.
func Explicit[T ~int64 | ~float64](v T) T {
	if v == 0 {
		return -1
	}
	return v
}
