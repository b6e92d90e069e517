package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"capturerig/director/internal/capture"
	"capturerig/director/internal/director"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/httpapi"
	"capturerig/director/internal/logging"
	"capturerig/director/internal/placement"
	"capturerig/director/internal/scene"
)

// healthService is the gRPC health service name reporting viewpoint availability.
const healthService = "director"

// session serializes every controller call made by the tick loop and the HTTP
// handlers. Change handlers run inside Step while the lock is held.
type session struct {
	mu         sync.Mutex
	controller *director.Controller
	world      *scene.World
	searcher   *placement.Searcher
	recorder   *capture.Recorder
	health     *health.Server
	subject    string
	serving    healthpb.HealthCheckResponse_ServingStatus
	log        *logging.Logger
}

type sessionOptions struct {
	Controller *director.Controller
	World      *scene.World
	Searcher   *placement.Searcher
	Recorder   *capture.Recorder
	Health     *health.Server
	Subject    string
	Logger     *logging.Logger
}

func newSession(opts sessionOptions) *session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	world := opts.World
	if world == nil {
		world = scene.NewWorld()
	}
	searcher := opts.Searcher
	if searcher == nil {
		searcher = placement.NewSearcher(world, placement.DefaultConfig(), logger)
	}
	return &session{
		controller: opts.Controller,
		world:      world,
		searcher:   searcher,
		recorder:   opts.Recorder,
		health:     opts.Health,
		subject:    strings.TrimSpace(opts.Subject),
		serving:    healthpb.HealthCheckResponse_UNKNOWN,
		log:        logger.With(logging.String("component", "session")),
	}
}

// Step runs one controller tick against the latest subject position.
func (s *session) Step(tick uint64, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Refresh the tracked subject from the scene before scoring viewpoints.
	if s.subject != "" {
		s.controller.SetSubject(s.subject, s.world.GetBounds(s.subject).Center())
	}
	status := s.controller.Tick()

	//2.- Capture the pose the renderer should use for this tick.
	if s.recorder != nil {
		if active := s.controller.Pool().Active(); active != nil {
			if err := s.recorder.RecordPose(tick, active.Pose()); err != nil {
				s.log.Warn("failed to record pose", logging.Error(err), logging.Uint64("tick", tick))
			}
		}
	}

	//3.- Mirror viewpoint availability into the gRPC health service.
	serving := healthpb.HealthCheckResponse_SERVING
	if status.Err() != nil {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if serving != s.serving {
		s.serving = serving
		if s.health != nil {
			s.health.SetServingStatus(healthService, serving)
		}
		s.log.Info("serving status changed", logging.String("status", serving.String()))
	}
}

// Snapshot implements httpapi.Director.
func (s *session) Snapshot() httpapi.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.controller.Stats()
	return httpapi.Snapshot{
		Enabled:   s.controller.Enabled(),
		Status:    stats.LastStatus,
		Focus:     s.controller.Focus().Kind().String(),
		Viewpoint: httpapi.ViewOf(s.controller.Pool().Active()),
		Stats:     stats,
	}
}

// SetFocus implements httpapi.Director.
func (s *session) SetFocus(request director.FocusRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.SetFocus(request)
}

// SetVisibleArea implements httpapi.Director.
func (s *session) SetVisibleArea(region geometry.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.SetVisibleArea(region)
}

// ClearVisibleArea implements httpapi.Director.
func (s *session) ClearVisibleArea() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.ClearVisibleArea()
}

// Activate implements httpapi.Director.
func (s *session) Activate(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.Activate(enabled)
}

// UpdateSubject moves handle in the scene and makes it the tracked subject.
func (s *session) UpdateSubject(handle string, region geometry.Bounds) error {
	if err := s.world.Upsert(handle, region); err != nil {
		return err
	}
	handle = strings.TrimSpace(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = handle
	s.controller.SetSubject(handle, region.Center())
	return nil
}

// Place runs a placement search against the scene. The world guards itself, so
// the controller lock is not taken.
func (s *session) Place(query httpapi.PlacementQuery) ([]r3.Vector, error) {
	destination := s.world.GetBounds(query.Destination)
	if !destination.Sized() {
		return nil, fmt.Errorf("%w: %q", httpapi.ErrUnknownDestination, query.Destination)
	}
	source := s.world.GetBounds(query.Source)
	if !source.Sized() {
		return nil, fmt.Errorf("%w: %q", httpapi.ErrUnknownSource, query.Source)
	}
	return s.searcher.Find(placement.Request{
		Source:            source,
		SourceHandle:      query.Source,
		Anchor:            query.AnchorVector(),
		Destination:       destination,
		DestinationHandle: query.Destination,
		Inside:            query.Inside,
		IgnoreOverlap:     query.IgnoreOverlap,
		RelativeToAnchor:  query.RelativeToAnchor,
		Explicit:          query.ExplicitPoint(),
	}), nil
}
