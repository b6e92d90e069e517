package director

import (
	"time"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/events"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/logging"
)

// Scene is the collaborator answering visibility and bounds queries. Every call
// is made synchronously from inside Tick.
type Scene interface {
	camera.Occlusion
	// GetBounds returns the object's bounds or an unsized box at its position.
	GetBounds(handle string) geometry.Bounds
}

// ChangeEvent announces a committed viewpoint switch.
type ChangeEvent = events.Change

// Options configures a Controller.
type Options struct {
	Config Config
	Pool   *camera.Pool
	Scene  Scene
	Random Randomizer
	Now    func() time.Time
	Logger *logging.Logger
	// Stream receives change events. A private stream is created when nil.
	Stream *events.Stream
}

// Stats summarises controller activity.
type Stats struct {
	Ticks            uint64 `json:"ticks"`
	Switches         uint64 `json:"switches"`
	Reframes         uint64 `json:"reframes"`
	NoCandidateTicks uint64 `json:"no_candidate_ticks"`
	UncoveredTicks   uint64 `json:"uncovered_ticks"`
	LastStatus       Status `json:"last_status"`
	ActiveID         int    `json:"active_id"`
}

// Controller selects the active viewpoint once per tick. It is single-threaded:
// callers serialize every method, and change handlers must not call Tick.
type Controller struct {
	cfg    Config
	pool   *camera.Pool
	scene  Scene
	random Randomizer
	now    func() time.Time
	log    *logging.Logger
	stream *events.Stream

	enabled    bool
	ticking    bool
	lastChange time.Time
	focus      FocusRequest

	subjectHandle   string
	subjectPosition r3.Vector
	hasSubject      bool
	visibleArea     geometry.Bounds
	hasVisibleArea  bool

	stats Stats
}

// NewController builds an enabled controller with no active viewpoint.
func NewController(opts Options) *Controller {
	cfg := opts.Config.withDefaults()
	pool := opts.Pool
	if pool == nil {
		pool = camera.NewPool(nil, camera.PoolOptions{})
	}
	scene := opts.Scene
	if scene == nil {
		scene = openScene{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	random := opts.Random
	if random == nil {
		random = NewSeededRandom(now().UnixNano())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	stream := opts.Stream
	if stream == nil {
		stream = events.NewStream(events.Config{})
	}
	return &Controller{
		cfg:     cfg,
		pool:    pool,
		scene:   scene,
		random:  random,
		now:     now,
		log:     logger.With(logging.String("component", "director")),
		stream:  stream,
		enabled: true,
		stats:   Stats{ActiveID: events.NoViewpoint},
	}
}

// Config returns the effective tunables.
func (c *Controller) Config() Config { return c.cfg }

// Pool exposes the viewpoint pool the controller drives.
func (c *Controller) Pool() *camera.Pool { return c.pool }

// SetFocus replaces the focus request.
func (c *Controller) SetFocus(request FocusRequest) { c.focus = request }

// Focus returns the current focus request.
func (c *Controller) Focus() FocusRequest { return c.focus }

// SetFocusObject frames subject on the next evaluation. A nil region falls
// back to the scene's bounds for the subject.
func (c *Controller) SetFocusObject(subject string, region *geometry.Bounds) {
	if region != nil {
		c.focus = FocusOnObjectRegion(subject, *region)
		return
	}
	c.focus = FocusOnObject(subject)
}

// SetFocusArea frames region on the next evaluation.
func (c *Controller) SetFocusArea(region geometry.Bounds) { c.focus = FocusOnArea(region) }

// ClearFocus returns to tracking the default subject.
func (c *Controller) ClearFocus() { c.focus = NoFocus() }

// SetVisibleArea makes subject tracking require both extremes of region to be in band.
func (c *Controller) SetVisibleArea(region geometry.Bounds) {
	c.visibleArea = region
	c.hasVisibleArea = true
}

// ClearVisibleArea returns to testing the subject position alone.
func (c *Controller) ClearVisibleArea() {
	c.visibleArea = geometry.Bounds{}
	c.hasVisibleArea = false
}

// SetSubject updates the tracked subject. An empty handle skips the visibility
// factor gate.
func (c *Controller) SetSubject(handle string, position r3.Vector) {
	c.subjectHandle = handle
	c.subjectPosition = position
	c.hasSubject = true
}

// Activate enables or disables auto-selection. Disabling restores the active
// viewpoint's baseline and leaves nothing active; enabling lets the next tick
// pick a fresh viewpoint.
func (c *Controller) Activate(enabled bool) {
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.pool.Deactivate()
		c.stats.ActiveID = events.NoViewpoint
	}
	c.log.Info("auto selection toggled", logging.Bool("enabled", enabled))
}

// Enabled reports whether auto-selection is running.
func (c *Controller) Enabled() bool { return c.enabled }

// CurrentViewpoint returns the active viewpoint id.
func (c *Controller) CurrentViewpoint() (int, bool) {
	if active := c.pool.Active(); active != nil {
		return active.ID, true
	}
	return events.NoViewpoint, false
}

// Subscribe registers a change handler invoked synchronously inside Tick.
func (c *Controller) Subscribe(handler func(ChangeEvent)) *events.Subscription {
	return c.stream.Subscribe(events.Handler(handler))
}

// Stream exposes the change stream for watchers and history queries.
func (c *Controller) Stream() *events.Stream { return c.stream }

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats { return c.stats }

// TickErr reports ErrNoViewpoints when the last tick found an empty pool.
func (c *Controller) TickErr() error { return c.stats.LastStatus.Err() }

// Candidates scores the pool against the current target without changing any state.
func (c *Controller) Candidates() []Candidate {
	if c.focus.Pending() {
		return c.focusCandidates()
	}
	return c.subjectCandidates()
}

// Tick advances the controller by one step.
func (c *Controller) Tick() Status {
	if c.ticking {
		c.log.Warn("tick re-entered from a change handler")
		return StatusReentrant
	}
	c.ticking = true
	defer func() { c.ticking = false }()

	c.stats.Ticks++
	status := c.tick()
	c.stats.LastStatus = status
	return status
}

func (c *Controller) tick() Status {
	if !c.enabled {
		return StatusInactive
	}
	//1.- An empty pool is surfaced as a distinct status and warned about periodically.
	if c.pool.Len() == 0 {
		c.stats.NoCandidateTicks++
		if c.stats.NoCandidateTicks == 1 || c.stats.NoCandidateTicks%c.cfg.WarnEvery == 0 {
			c.log.Warn("no candidate viewpoints available", logging.Uint64("ticks", c.stats.NoCandidateTicks))
		}
		return StatusNoCandidates
	}
	c.stats.NoCandidateTicks = 0

	//2.- Dwell gate: the active viewpoint keeps the shot until it has been held long enough.
	now := c.now()
	active := c.pool.Active()
	if active != nil && now.Sub(c.lastChange) < c.cfg.Dwell {
		return StatusDwell
	}

	//3.- A pending focus is scored against the focus region, otherwise against the subject.
	refocus := c.focus.Pending()
	var candidates []Candidate
	if refocus {
		candidates = c.focusCandidates()
	} else {
		candidates = c.subjectCandidates()
	}
	if len(candidates) == 0 {
		c.stats.UncoveredTicks++
	}
	region, _ := c.focusTarget()
	if refocus {
		c.focus = c.focus.consumed()
	}

	//4.- Nothing active yet: take the nearest candidate or fall back to the first viewpoint.
	if active == nil {
		target := c.pool.All()[0]
		if len(candidates) > 0 {
			target = candidates[0].Viewpoint
		}
		return c.switchTo(target, events.NoViewpoint, events.ReasonInitial, refocus, region, now)
	}

	if len(candidates) == 0 {
		if refocus {
			return c.reframe(active, region, now)
		}
		c.log.Debug("no viewpoint frames the subject, holding", logging.Int("viewpoint", active.ID))
		return StatusHeld
	}

	target := c.pick(candidates)
	current, found := findCandidate(candidates, active.ID)
	switch {
	case refocus:
		if target.Viewpoint.ID == active.ID {
			return c.reframe(active, region, now)
		}
		return c.switchTo(target.Viewpoint, active.ID, events.ReasonRefocus, true, region, now)
	case !found:
		return c.switchTo(target.Viewpoint, active.ID, events.ReasonLost, false, region, now)
	case current.Distance-target.Distance > c.cfg.SwitchMargin:
		// Drifting past MaxActiveDistance does not lift the margin, it only
		// changes the reported reason.
		reason := events.ReasonCloser
		if current.Distance > c.cfg.MaxActiveDistance {
			reason = events.ReasonTooFar
		}
		return c.switchTo(target.Viewpoint, active.ID, reason, false, region, now)
	}
	c.log.Debug("keeping active viewpoint",
		logging.Int("viewpoint", active.ID),
		logging.Float64("distance", current.Distance),
		logging.String("best", target.String()),
	)
	return StatusHeld
}

// switchTo deactivates the previous viewpoint, activates next (framing it when
// a focus is being serviced) and announces the change.
func (c *Controller) switchTo(next *camera.Viewpoint, previous int, reason events.Reason, frame bool, region geometry.Bounds, now time.Time) Status {
	var prepare func(*camera.Viewpoint)
	if frame {
		prepare = func(v *camera.Viewpoint) { Frame(v, region, c.cfg.FramingMargin) }
	}
	activated, err := c.pool.Activate(next.ID, prepare)
	if err != nil {
		c.log.Error("viewpoint activation failed", logging.Int("viewpoint", next.ID), logging.Error(err))
		return StatusHeld
	}
	c.lastChange = now
	c.stats.Switches++
	c.stats.ActiveID = activated.ID
	c.log.Info("viewpoint switched",
		logging.Int("viewpoint", activated.ID),
		logging.String("name", activated.Name),
		logging.Int("previous", previous),
		logging.String("reason", string(reason)),
	)
	c.stream.Publish(ChangeEvent{
		ViewpointID:   activated.ID,
		ViewpointName: activated.Name,
		PreviousID:    previous,
		Reason:        reason,
		At:            now,
		Position:      activated.Position,
		Yaw:           activated.Yaw,
		Pitch:         activated.Pitch,
		FieldOfView:   activated.FieldOfView,
	})
	return StatusSwitched
}

// reframe re-aims the active viewpoint at a new focus without switching. The
// pre-activation baseline is untouched so deactivation still restores it.
func (c *Controller) reframe(active *camera.Viewpoint, region geometry.Bounds, now time.Time) Status {
	Frame(active, region, c.cfg.FramingMargin)
	c.lastChange = now
	c.stats.Reframes++
	c.log.Debug("active viewpoint reframed",
		logging.Int("viewpoint", active.ID),
		logging.Float64("fov", active.FieldOfView),
	)
	return StatusReframed
}

// openScene is used when no scene collaborator is configured: everything is
// visible and nothing has known bounds.
type openScene struct{}

func (openScene) IsUnoccluded(string, r3.Vector) bool { return true }

func (openScene) VisibilityFactor(string, r3.Vector) float64 { return 1 }

func (openScene) GetBounds(string) geometry.Bounds { return geometry.Bounds{} }
