package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"capturerig/director/internal/auth"
	"capturerig/director/internal/camera"
	"capturerig/director/internal/capture"
	configpkg "capturerig/director/internal/config"
	"capturerig/director/internal/director"
	"capturerig/director/internal/events"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/httpapi"
	"capturerig/director/internal/logging"
	"capturerig/director/internal/placement"
	"capturerig/director/internal/scene"
	"capturerig/director/internal/simulation"
)

const (
	shutdownTimeout   = 5 * time.Second
	retentionInterval = time.Minute
	tokenLeeway       = 5 * time.Second
)

// app owns every long-lived component of the director process.
type app struct {
	cfg       *configpkg.Config
	log       *logging.Logger
	stream    *events.Stream
	session   *session
	monitor   *simulation.TickMonitor
	loop      *simulation.Loop
	recorder  *capture.Recorder
	retention *capture.Retention
	health    *health.Server
	http      *http.Server
	grpc      *grpc.Server
}

func newApp(cfg *configpkg.Config, logger *logging.Logger) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}

	//1.- Load the viewpoint pool and the scene the controller scores against.
	pool, err := loadPool(cfg, logger)
	if err != nil {
		return nil, err
	}
	world := scene.NewWorld()
	if cfg.ScenePath != "" {
		if world, err = scene.LoadFile(cfg.ScenePath); err != nil {
			return nil, err
		}
	}

	//2.- Build the controller around a shared change stream.
	stream := events.NewStream(events.Config{Retain: cfg.HistoryRetain})
	var random director.Randomizer
	if cfg.Selection.Seed != 0 {
		random = director.NewSeededRandom(cfg.Selection.Seed)
	}
	controller := director.NewController(director.Options{
		Config: selectionConfig(cfg.Selection),
		Pool:   pool,
		Scene:  world,
		Random: random,
		Logger: logger,
		Stream: stream,
	})

	a := &app{
		cfg:     cfg,
		log:     logger,
		stream:  stream,
		monitor: simulation.NewTickMonitor(),
		health:  health.NewServer(),
	}
	a.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	//3.- Capture segments follow every committed switch when enabled.
	if cfg.Capture.Enabled {
		a.recorder, err = capture.NewRecorder(capture.Options{
			Root:          cfg.Capture.Root,
			FrameInterval: cfg.Capture.FrameInterval,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		controller.Subscribe(a.recorder.OnChange)
		a.retention = capture.NewRetention(cfg.Capture.Root, capture.RetentionPolicy{
			MaxSegments: cfg.Capture.MaxSegments,
			MaxAge:      cfg.Capture.MaxAge,
		}, logger)
		a.retention.Protect(a.recorder)
	}

	a.session = newSession(sessionOptions{
		Controller: controller,
		World:      world,
		Searcher:   placement.NewSearcher(world, placement.DefaultConfig(), logger),
		Recorder:   a.recorder,
		Health:     a.health,
		Subject:    cfg.Subject,
		Logger:     logger,
	})
	a.loop = simulation.NewLoop(float64(cfg.TickRate), a.session.Step, a.monitor)

	if a.http, err = a.buildHTTP(); err != nil {
		return nil, err
	}
	if cfg.GRPC.Address != "" {
		opts, err := configureGRPCSecurity(cfg.GRPC, logger)
		if err != nil {
			return nil, err
		}
		a.grpc = grpc.NewServer(opts...)
		healthpb.RegisterHealthServer(a.grpc, a.health)
	}
	return a, nil
}

func loadPool(cfg *configpkg.Config, logger *logging.Logger) (*camera.Pool, error) {
	if cfg.PoolPath == "" {
		logger.Warn("no viewpoint pool configured; the director will report no candidates")
		return camera.NewPool(nil, camera.PoolOptions{FarClip: cfg.FarClip, Channels: cfg.Channels}), nil
	}
	pool, err := camera.LoadPoolFile(cfg.PoolPath, cfg.Channels...)
	if err != nil {
		return nil, err
	}
	if cfg.FarClip > 0 {
		for _, v := range pool.All() {
			v.Far = cfg.FarClip
		}
	}
	logger.Info("viewpoint pool loaded", logging.String("path", cfg.PoolPath), logging.Int("viewpoints", pool.Len()))
	return pool, nil
}

func selectionConfig(sel configpkg.SelectionConfig) director.Config {
	return director.Config{
		Dwell:               director.Explicit(sel.Dwell),
		ComfortBand:         geometry.NewClosedInterval(sel.ComfortMin, sel.ComfortMax),
		MaxActiveDistance:   sel.MaxActiveDistance,
		SwitchMargin:        director.Explicit(sel.SwitchMargin),
		VisibilityThreshold: director.Explicit(sel.VisibilityThreshold),
		TieBand:             director.Explicit(sel.TieBand),
		FramingMargin:       director.Explicit(sel.FramingMargin),
		Randomize:           sel.Randomize,
	}
}

func (a *app) buildHTTP() (*http.Server, error) {
	cfg := a.cfg
	var signer *auth.Signer
	if cfg.FeedSecret != "" {
		var err error
		if signer, err = auth.NewSigner(cfg.FeedSecret, tokenLeeway); err != nil {
			return nil, fmt.Errorf("feed signer: %w", err)
		}
	}
	hub := httpapi.NewHub(httpapi.HubOptions{
		Source:         a.stream,
		Logger:         a.log,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxClients:     cfg.MaxClients,
		MaxPayload:     cfg.MaxPayloadBytes,
		PingInterval:   cfg.PingInterval,
		Signer:         signer,
	})
	opts := httpapi.Options{
		Logger:      a.log,
		Director:    a.session,
		History:     a.stream,
		Hub:         hub,
		Monitor:     a.monitor,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.FocusWindow, cfg.FocusBurst, nil),
	}
	if a.recorder != nil {
		opts.CaptureStats = a.recorder.Stats
		opts.StorageStats = a.retention.Stats
	}
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(logging.HTTPTraceMiddleware(a.log)))
	httpapi.NewHandlerSet(opts).Register(router)
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled or a listener fails.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)

	//1.- Start the tick loop and background maintenance.
	a.loop.Start(ctx)
	if a.retention != nil {
		go a.retention.Run(ctx, retentionInterval)
	}

	//2.- Serve HTTP and gRPC until one of them fails.
	tlsEnabled := a.cfg.TLSCertPath != ""
	go func() {
		var err error
		if tlsEnabled {
			err = a.http.ListenAndServeTLS(a.cfg.TLSCertPath, a.cfg.TLSKeyPath)
		} else {
			err = a.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	a.log.Info("director listening",
		logging.String("url", listenerURL(a.cfg.Address, tlsEnabled)),
		logging.String("feed", feedURL(a.cfg.Address, tlsEnabled)),
	)
	if a.grpc != nil {
		listener, err := net.Listen("tcp", a.cfg.GRPC.Address)
		if err != nil {
			a.shutdown()
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			if err := a.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errs <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		a.log.Info("gRPC health listening", logging.String("address", listener.Addr().String()))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	cancel()
	a.shutdown()
	return runErr
}

func (a *app) shutdown() {
	a.loop.Stop()
	a.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", logging.Error(err))
	}
	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Warn("capture close", logging.Error(err))
		}
	}
	a.log.Info("director stopped")
}
