package director

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/logging"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubScene struct {
	factor   func(subject string, from r3.Vector) float64
	occluded map[string]bool
	bounds   map[string]geometry.Bounds
}

func (s *stubScene) IsUnoccluded(subject string, _ r3.Vector) bool { return !s.occluded[subject] }

func (s *stubScene) VisibilityFactor(subject string, from r3.Vector) float64 {
	if s.factor == nil {
		return 1
	}
	return s.factor(subject, from)
}

func (s *stubScene) GetBounds(handle string) geometry.Bounds {
	if b, ok := s.bounds[handle]; ok {
		return b
	}
	return geometry.PointBounds(r3.Vector{})
}

type fixedRandom struct {
	offset int
	calls  int
}

func (r *fixedRandom) RandomFloat01() float64 { return 0 }

func (r *fixedRandom) RandomInt(min, maxExclusive int) int {
	r.calls++
	if min+r.offset >= maxExclusive {
		return maxExclusive - 1
	}
	return min + r.offset
}

func lookingAt(name string, position, target r3.Vector) *camera.Viewpoint {
	v := camera.NewViewpoint(name, position, 0, 0)
	v.LookAt(target)
	return v
}

var (
	origin  = r3.Vector{}
	offAxis = r3.Vector{X: 0, Y: 0, Z: -2.5}
)

// railPool places "home" three units in front of the origin and one extra
// viewpoint per distance on the +X, -X and +Y axes, all aimed at the origin.
// A subject at offAxis is visible from "home" only.
func railPool(distances ...float64) *camera.Pool {
	axes := []r3.Vector{{X: 1}, {X: -1}, {Y: 1}}
	viewpoints := []*camera.Viewpoint{lookingAt("home", r3.Vector{Z: -3}, origin)}
	for i, d := range distances {
		viewpoints = append(viewpoints, lookingAt("", axes[i].Mul(d), origin))
	}
	return camera.NewPool(viewpoints, camera.PoolOptions{Channels: []string{"depth"}})
}

func newTestController(pool *camera.Pool, clock *fakeClock, mutate func(*Options)) *Controller {
	opts := Options{
		Config: DefaultConfig(),
		Pool:   pool,
		Now:    clock.Now,
		Random: NewSeededRandom(1),
		Logger: logging.NewTestLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewController(opts)
}

func mustCurrent(t *testing.T, c *Controller) int {
	t.Helper()
	id, ok := c.CurrentViewpoint()
	if !ok {
		t.Fatalf("expected an active viewpoint")
	}
	return id
}

func TestEmptyPoolReportsNoCandidates(t *testing.T) {
	c := newTestController(camera.NewPool(nil, camera.PoolOptions{}), newFakeClock(), nil)
	for i := 0; i < 3; i++ {
		if status := c.Tick(); status != StatusNoCandidates {
			t.Fatalf("expected no-candidates status, got %v", status)
		}
	}
	if !errors.Is(c.TickErr(), ErrNoViewpoints) {
		t.Fatalf("expected ErrNoViewpoints, got %v", c.TickErr())
	}
	if stats := c.Stats(); stats.NoCandidateTicks != 3 || stats.Ticks != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, ok := c.CurrentViewpoint(); ok {
		t.Fatalf("expected no active viewpoint")
	}
}

func TestFirstTickActivatesNearestOrFirst(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	if status := c.Tick(); status != StatusSwitched {
		t.Fatalf("expected initial switch, got %v", status)
	}
	if id := mustCurrent(t, c); id != 0 {
		t.Fatalf("expected first viewpoint without a subject, got %d", id)
	}

	c = newTestController(railPool(2), clock, nil)
	c.SetSubject("", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 1 {
		t.Fatalf("expected nearest viewpoint 1, got %d", id)
	}
}

func TestDwellGateBlocksEarlySwitch(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	c.SetSubject("", offAxis)
	c.Tick()
	if id := mustCurrent(t, c); id != 0 {
		t.Fatalf("expected home viewpoint, got %d", id)
	}

	//1.- A far better candidate appears 100ms later but the dwell gate holds the shot.
	clock.Advance(100 * time.Millisecond)
	c.SetSubject("", origin)
	if status := c.Tick(); status != StatusDwell {
		t.Fatalf("expected dwell status, got %v", status)
	}
	clock.Advance(399 * time.Millisecond)
	if status := c.Tick(); status != StatusDwell || mustCurrent(t, c) != 0 {
		t.Fatalf("expected dwell to hold viewpoint 0, got %v/%d", status, mustCurrent(t, c))
	}

	//2.- Once the dwell has elapsed the nearer viewpoint takes over.
	clock.Advance(time.Millisecond)
	if status := c.Tick(); status != StatusSwitched {
		t.Fatalf("expected switch after dwell, got %v", status)
	}
	if id := mustCurrent(t, c); id != 1 {
		t.Fatalf("expected viewpoint 1, got %d", id)
	}
}

func TestSwitchMarginPreventsOscillation(t *testing.T) {
	run := func(distance float64) (Status, int) {
		clock := newFakeClock()
		c := newTestController(railPool(distance), clock, nil)
		c.SetSubject("", offAxis)
		c.Tick()
		if id := mustCurrent(t, c); id != 0 {
			t.Fatalf("expected home viewpoint first, got %d", id)
		}
		clock.Advance(time.Second)
		c.SetSubject("", origin)
		status := c.Tick()
		return status, mustCurrent(t, c)
	}

	if status, id := run(2.7); status != StatusHeld || id != 0 {
		t.Fatalf("0.3 improvement should not switch, got %v/%d", status, id)
	}
	if status, id := run(2.4); status != StatusSwitched || id != 1 {
		t.Fatalf("0.6 improvement should switch, got %v/%d", status, id)
	}
}

func TestRandomTieBreakSpreadsSelection(t *testing.T) {
	counts := make(map[int]int)
	for trial := 0; trial < 300; trial++ {
		clock := newFakeClock()
		c := newTestController(railPool(2.0, 2.05, 2.09), clock, func(o *Options) {
			o.Config.Randomize = true
			o.Random = NewSeededRandom(int64(trial))
		})
		c.SetSubject("", offAxis)
		c.Tick()
		clock.Advance(time.Second)
		c.SetSubject("", origin)
		if status := c.Tick(); status != StatusSwitched {
			t.Fatalf("trial %d: expected switch, got %v", trial, status)
		}
		counts[mustCurrent(t, c)]++
	}
	for id := 1; id <= 3; id++ {
		if counts[id] == 0 {
			t.Fatalf("viewpoint %d never selected: %v", id, counts)
		}
	}
	if counts[0] != 0 {
		t.Fatalf("home viewpoint is outside the tie band but was selected: %v", counts)
	}
}

func TestTieBreakDisabledPicksNearest(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		clock := newFakeClock()
		random := &fixedRandom{offset: 2}
		c := newTestController(railPool(2.0, 2.05, 2.09), clock, func(o *Options) { o.Random = random })
		c.SetSubject("", offAxis)
		c.Tick()
		clock.Advance(time.Second)
		c.SetSubject("", origin)
		c.Tick()
		if id := mustCurrent(t, c); id != 1 {
			t.Fatalf("expected nearest viewpoint 1, got %d", id)
		}
		if random.calls != 0 {
			t.Fatalf("randomizer consulted while disabled")
		}
	}
}

func TestTieBreakUsesInjectedRandom(t *testing.T) {
	clock := newFakeClock()
	random := &fixedRandom{offset: 2}
	c := newTestController(railPool(2.0, 2.05, 2.09), clock, func(o *Options) {
		o.Config.Randomize = true
		o.Random = random
	})
	c.SetSubject("", offAxis)
	c.Tick()
	clock.Advance(time.Second)
	c.SetSubject("", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 3 {
		t.Fatalf("expected third tied candidate (viewpoint 3), got %d", id)
	}
}

func TestVisibilityFactorGatesCandidates(t *testing.T) {
	clock := newFakeClock()
	pool := railPool(2)
	scene := &stubScene{factor: func(_ string, from r3.Vector) float64 {
		if from.X > 1 {
			return 0.15
		}
		return 1
	}}
	c := newTestController(pool, clock, func(o *Options) { o.Scene = scene })
	c.SetSubject("actor", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 0 {
		t.Fatalf("expected the hidden viewpoint to be skipped, got %d", id)
	}
	candidates := c.Candidates()
	if len(candidates) != 1 || candidates[0].Viewpoint.ID != 0 {
		t.Fatalf("unexpected candidates %v", candidates)
	}
}

func TestLostSubjectForcesSwitch(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	c.SetSubject("", offAxis)
	c.Tick()

	//1.- Move the subject behind home but into viewpoint 1's band.
	clock.Advance(time.Second)
	c.SetSubject("", r3.Vector{X: -3, Y: 0, Z: -3.5})
	var reasons []string
	c.Subscribe(func(e ChangeEvent) { reasons = append(reasons, string(e.Reason)) })
	if status := c.Tick(); status != StatusSwitched {
		t.Fatalf("expected switch, got %v", status)
	}
	if len(reasons) != 1 || reasons[0] != "subject_lost" {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestNoCandidatesHoldsActiveViewpoint(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	c.SetSubject("", origin)
	c.Tick()
	first := mustCurrent(t, c)
	clock.Advance(time.Second)
	c.SetSubject("", r3.Vector{X: 0, Y: 50, Z: 0})
	if status := c.Tick(); status != StatusHeld {
		t.Fatalf("expected held status, got %v", status)
	}
	if id := mustCurrent(t, c); id != first {
		t.Fatalf("expected viewpoint %d kept, got %d", first, id)
	}
	if c.Stats().UncoveredTicks != 1 {
		t.Fatalf("expected one uncovered tick, got %+v", c.Stats())
	}
}

func TestRefocusSwitchesFramesAndIsConsumed(t *testing.T) {
	clock := newFakeClock()
	pool := railPool(2)
	c := newTestController(pool, clock, nil)
	c.SetSubject("", offAxis)
	c.Tick()
	clock.Advance(time.Second)

	var events []ChangeEvent
	c.Subscribe(func(e ChangeEvent) { events = append(events, e) })
	c.SetFocusArea(geometry.NewBounds(origin, r3.Vector{X: 0.2, Y: 0.2, Z: 0.2}))
	if !c.Focus().Pending() {
		t.Fatalf("expected pending focus")
	}
	if status := c.Tick(); status != StatusSwitched {
		t.Fatalf("expected refocus switch, got %v", status)
	}
	if c.Focus().Pending() {
		t.Fatalf("expected refocus flag to be consumed")
	}
	if c.Focus().Kind() != FocusArea {
		t.Fatalf("expected the consumed focus to be kept, got %v", c.Focus().Kind())
	}
	framed, _ := pool.Get(1)
	if len(events) != 1 || events[0].ViewpointID != 1 || events[0].Reason != "refocus" || events[0].PreviousID != 0 {
		t.Fatalf("unexpected events %+v", events)
	}
	if framed.FieldOfView >= camera.DefaultFieldOfView || events[0].FieldOfView != framed.FieldOfView {
		t.Fatalf("expected a tighter framing field of view, got %v (event %v)", framed.FieldOfView, events[0].FieldOfView)
	}
	if framed.Channels[0].FieldOfView != framed.FieldOfView {
		t.Fatalf("expected channel to mirror field of view, got %v", framed.Channels[0].FieldOfView)
	}

	//1.- Disabling restores the baseline pose captured before framing.
	c.Activate(false)
	if framed.FieldOfView != camera.DefaultFieldOfView || framed.Active() {
		t.Fatalf("expected baseline restored, got fov %v active %v", framed.FieldOfView, framed.Active())
	}
	if status := c.Tick(); status != StatusInactive {
		t.Fatalf("expected inactive status, got %v", status)
	}
}

func TestRefocusOnActiveViewpointReframesInPlace(t *testing.T) {
	clock := newFakeClock()
	pool := railPool(2)
	c := newTestController(pool, clock, nil)
	c.SetSubject("", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 1 {
		t.Fatalf("expected viewpoint 1, got %d", id)
	}
	clock.Advance(time.Second)
	notified := 0
	c.Subscribe(func(ChangeEvent) { notified++ })
	region := geometry.NewBounds(r3.Vector{X: 0, Y: 0, Z: 0.1}, r3.Vector{X: 0.3, Y: 0.3, Z: 0.3})
	c.SetFocusObject("crate", &region)
	if status := c.Tick(); status != StatusReframed {
		t.Fatalf("expected in-place reframe, got %v", status)
	}
	if notified != 0 {
		t.Fatalf("reframe must not notify, got %d", notified)
	}
	active := pool.Active()
	if baseline, _ := pool.Baseline(); baseline.FieldOfView != camera.DefaultFieldOfView {
		t.Fatalf("reframe must keep the baseline, got %v", baseline)
	}
	if active.FieldOfView >= camera.DefaultFieldOfView {
		t.Fatalf("expected tighter framing, got %v", active.FieldOfView)
	}
}

func TestFocusObjectRequiresUnoccludedSubject(t *testing.T) {
	clock := newFakeClock()
	scene := &stubScene{
		occluded: map[string]bool{"crate": true},
		bounds:   map[string]geometry.Bounds{"crate": geometry.NewBounds(origin, r3.Vector{X: 0.2, Y: 0.2, Z: 0.2})},
	}
	c := newTestController(railPool(2), clock, func(o *Options) { o.Scene = scene })
	c.SetFocusObject("crate", nil)
	if got := c.Candidates(); len(got) != 0 {
		t.Fatalf("occluded focus object should yield no candidates, got %v", got)
	}
	scene.occluded["crate"] = false
	if got := c.Candidates(); len(got) != 2 || got[0].Viewpoint.ID != 1 {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestVisibleAreaRequiresBothExtremes(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	c.SetSubject("", origin)
	c.SetVisibleArea(geometry.NewBounds(origin, r3.Vector{X: 0.1, Y: 0.1, Z: 2.4}))
	for _, candidate := range c.Candidates() {
		if candidate.Viewpoint.ID == 1 {
			t.Fatalf("viewpoint 1 cannot hold the deep area in band: %v", c.Candidates())
		}
	}
	c.ClearVisibleArea()
	if got := c.Candidates(); len(got) != 2 {
		t.Fatalf("expected both viewpoints once the area is cleared, got %v", got)
	}
}

func TestChangeHandlerCannotReenterTick(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(railPool(2), clock, nil)
	var nested Status
	sub := c.Subscribe(func(ChangeEvent) { nested = c.Tick() })
	c.Tick()
	if nested != StatusReentrant {
		t.Fatalf("expected reentrant status, got %v", nested)
	}
	sub.Unsubscribe()
}

func TestSubjectPassingThroughThreeViewpoints(t *testing.T) {
	clock := newFakeClock()
	pool := camera.NewPool([]*camera.Viewpoint{
		camera.NewViewpoint("west", r3.Vector{X: 2, Y: 0, Z: -2.5}, 0, 0),
		camera.NewViewpoint("centre", r3.Vector{X: 8, Y: 0, Z: -2.5}, 0, 0),
		camera.NewViewpoint("east", r3.Vector{X: 14, Y: 0, Z: -2.5}, 0, 0),
	}, camera.PoolOptions{})
	c := newTestController(pool, clock, nil)

	var sequence []int
	c.Subscribe(func(e ChangeEvent) { sequence = append(sequence, e.ViewpointID) })

	for x := 1.0; x <= 16.0; x += 0.05 {
		c.SetSubject("", r3.Vector{X: x, Y: 0, Z: 0})
		c.Tick()
		clock.Advance(time.Second / 30)
	}

	want := []int{0, 1, 2}
	if len(sequence) != len(want) {
		t.Fatalf("unexpected change sequence %v", sequence)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("unexpected change sequence %v", sequence)
		}
		if i > 0 && sequence[i] == sequence[i-1] {
			t.Fatalf("consecutive notifications for viewpoint %d", sequence[i])
		}
	}
	if history := c.Stream().History(0); len(history) != 3 || history[2].Sequence != 3 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestFramingCoversCubeAndWidensWhenCloser(t *testing.T) {
	cube := geometry.NewBounds(origin, r3.Vector{X: 1, Y: 1, Z: 1})
	silhouette := 2 * math.Atan(1.0/9.0) * 180 / math.Pi

	previous := 0.0
	for _, distance := range []float64{10, 7, 5, 3} {
		v := camera.NewViewpoint("probe", r3.Vector{X: 0, Y: 0, Z: -distance}, 0, 0)
		Frame(v, cube, 15)
		if distance == 10 && v.FieldOfView < silhouette+15 {
			t.Fatalf("fov %.3f below silhouette %.3f + margin", v.FieldOfView, silhouette)
		}
		if v.FieldOfView <= previous {
			t.Fatalf("fov should widen when closer: %.3f after %.3f", v.FieldOfView, previous)
		}
		previous = v.FieldOfView
		//1.- Every corner of the framed cube lands inside the viewport.
		for _, corner := range cube.Corners() {
			x, y, depth := v.Project(corner)
			if depth <= 0 || x < 0 || x > 1 || y < 0 || y > 1 {
				t.Fatalf("corner %v outside view at distance %v: (%.3f, %.3f, %.3f)", corner, distance, x, y, depth)
			}
		}
	}
}

func TestFramingUnsizedRegionOnlyAims(t *testing.T) {
	v := camera.NewViewpoint("probe", r3.Vector{X: 5, Y: 0, Z: 0}, 0, 0)
	Frame(v, geometry.PointBounds(origin), 15)
	if v.FieldOfView != camera.DefaultFieldOfView {
		t.Fatalf("unsized region changed fov to %v", v.FieldOfView)
	}
	if math.Abs(v.Yaw+90) > 1e-9 || math.Abs(v.Pitch) > 1e-9 {
		t.Fatalf("expected to face -X, got yaw %v pitch %v", v.Yaw, v.Pitch)
	}
}

func TestDistantActiveViewpointStillNeedsSwitchMargin(t *testing.T) {
	run := func(flank r3.Vector) (Status, int, string) {
		clock := newFakeClock()
		pool := camera.NewPool([]*camera.Viewpoint{
			camera.NewViewpoint("far", r3.Vector{X: 0, Y: 0, Z: -6.3}, 0, 0),
			camera.NewViewpoint("flank", flank, 0, 0),
		}, camera.PoolOptions{})
		c := newTestController(pool, clock, nil)
		c.SetSubject("", r3.Vector{X: 0, Y: 0, Z: -4.3})
		c.Tick()
		if id := mustCurrent(t, c); id != 0 {
			t.Fatalf("expected far viewpoint first, got %d", id)
		}
		clock.Advance(time.Second)
		var reason string
		c.Subscribe(func(e ChangeEvent) { reason = string(e.Reason) })
		c.SetSubject("", origin)
		status := c.Tick()
		return status, mustCurrent(t, c), reason
	}

	//1.- 6.3 away against 6.185: beyond the maximum distance but inside the margin.
	if status, id, _ := run(r3.Vector{X: 1.5, Y: 0, Z: -6}); status != StatusHeld || id != 0 {
		t.Fatalf("0.115 improvement should not switch, got %v/%d", status, id)
	}

	//2.- 6.3 away against 5.59: the margin is met and the reason reflects the distance.
	status, id, reason := run(r3.Vector{X: 2.5, Y: 0, Z: -5})
	if status != StatusSwitched || id != 1 {
		t.Fatalf("expected switch to flank, got %v/%d", status, id)
	}
	if reason != "too_far" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestComfortBandPreferredOverNearerCandidate(t *testing.T) {
	clock := newFakeClock()
	pool := camera.NewPool([]*camera.Viewpoint{
		camera.NewViewpoint("close", r3.Vector{X: 0, Y: 0, Z: -0.8}, 0, 0),
		camera.NewViewpoint("comfy", r3.Vector{X: 0.5, Y: 0, Z: -1.94}, 0, 0),
	}, camera.PoolOptions{})
	c := newTestController(pool, clock, nil)
	c.SetSubject("", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 1 {
		t.Fatalf("expected the in-band viewpoint, got %d", id)
	}
	candidates := c.Candidates()
	if len(candidates) != 1 || candidates[0].Viewpoint.Name != "comfy" {
		t.Fatalf("expected only the in-band candidate, got %v", candidates)
	}
}

func TestComfortBandFallsBackToAllCandidates(t *testing.T) {
	clock := newFakeClock()
	pool := camera.NewPool([]*camera.Viewpoint{
		camera.NewViewpoint("remote", r3.Vector{X: 0, Y: 0, Z: -8}, 0, 0),
		camera.NewViewpoint("close", r3.Vector{X: 0, Y: 0, Z: -0.8}, 0, 0),
	}, camera.PoolOptions{})
	c := newTestController(pool, clock, nil)
	c.SetSubject("", origin)
	c.Tick()
	if id := mustCurrent(t, c); id != 1 {
		t.Fatalf("expected the nearest out-of-band viewpoint, got %d", id)
	}
	candidates := c.Candidates()
	if len(candidates) != 2 || candidates[0].Viewpoint.Name != "close" || candidates[1].Viewpoint.Name != "remote" {
		t.Fatalf("expected every candidate sorted by distance, got %v", candidates)
	}
}

func TestFocusRequestVariants(t *testing.T) {
	region := geometry.NewBounds(origin, r3.Vector{X: 1, Y: 1, Z: 1})
	if NoFocus().Pending() || NoFocus().Kind() != FocusNone {
		t.Fatalf("empty focus must not be pending")
	}
	object := FocusOnObject("crate")
	if !object.Pending() || object.Subject() != "crate" {
		t.Fatalf("unexpected object focus %+v", object)
	}
	if _, ok := object.Region(); ok {
		t.Fatalf("object focus without region reported one")
	}
	area := FocusOnArea(region)
	if got, ok := area.Region(); !ok || got != region || area.Kind() != FocusArea {
		t.Fatalf("unexpected area focus %+v", area)
	}
	consumed := area.consumed()
	if consumed.Pending() || !area.Pending() {
		t.Fatalf("consuming must copy, not mutate")
	}
}
