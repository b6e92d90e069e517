// Package config loads the director service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the operational HTTP surface listens on.
	DefaultAddr = ":43180"
	// DefaultGRPCAddr is the default address for the gRPC health endpoint. Empty disables it.
	DefaultGRPCAddr = ":43181"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultTickRate is how many controller ticks run per second.
	DefaultTickRate = 30
	// DefaultHistoryRetain bounds the retained viewpoint change history.
	DefaultHistoryRetain = 256

	// DefaultCaptureRoot is where capture segments are written when capture is enabled.
	DefaultCaptureRoot = "captures"
	// DefaultCaptureFrameInterval is the cadence of camera parameter frames inside a segment.
	DefaultCaptureFrameInterval = 200 * time.Millisecond
	// DefaultCaptureMaxSegments bounds how many segments survive a retention sweep.
	DefaultCaptureMaxSegments = 500
	// DefaultCaptureMaxAge removes segments older than a week.
	DefaultCaptureMaxAge = 7 * 24 * time.Hour

	// DefaultFocusWindow bounds how frequently focus requests may be submitted.
	DefaultFocusWindow = time.Second
	// DefaultFocusBurst sets how many focus requests may be made per window.
	DefaultFocusBurst = 10

	// DefaultLogLevel controls verbosity for director logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "director.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Selection tunables. They mirror director.DefaultConfig.
const (
	DefaultDwell               = 500 * time.Millisecond
	DefaultComfortMin          = 1.0
	DefaultComfortMax          = 5.0
	DefaultMaxActiveDistance   = 6.0
	DefaultSwitchMargin        = 0.5
	DefaultVisibilityThreshold = 0.15
	DefaultTieBand             = 0.10
	DefaultFramingMargin       = 15.0
)

// Config captures all runtime tunables for the director service.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string
	AdminToken      string
	FeedSecret      string
	FocusWindow     time.Duration
	FocusBurst      int

	TickRate      int
	PoolPath      string
	ScenePath     string
	Subject       string
	FarClip       float64
	Channels      []string
	HistoryRetain int

	Selection SelectionConfig
	Capture   CaptureConfig
	GRPC      GRPCConfig
	Logging   LoggingConfig
}

// SelectionConfig captures the viewpoint selection tunables.
type SelectionConfig struct {
	Dwell               time.Duration
	ComfortMin          float64
	ComfortMax          float64
	MaxActiveDistance   float64
	SwitchMargin        float64
	VisibilityThreshold float64
	TieBand             float64
	FramingMargin       float64
	Randomize           bool
	Seed                int64
}

// CaptureConfig controls the capture segment recorder.
type CaptureConfig struct {
	Enabled       bool
	Root          string
	FrameInterval time.Duration
	MaxSegments   int
	MaxAge        time.Duration
}

// GRPCConfig controls the gRPC health listener.
type GRPCConfig struct {
	Address      string
	SharedSecret string
	CertPath     string
	KeyPath      string
	ClientCAPath string
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the director configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:         getString("DIRECTOR_ADDR", DefaultAddr),
		AllowedOrigins:  parseList(os.Getenv("DIRECTOR_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		MaxClients:      DefaultMaxClients,
		TLSCertPath:     strings.TrimSpace(os.Getenv("DIRECTOR_TLS_CERT")),
		TLSKeyPath:      strings.TrimSpace(os.Getenv("DIRECTOR_TLS_KEY")),
		AdminToken:      strings.TrimSpace(os.Getenv("DIRECTOR_ADMIN_TOKEN")),
		FeedSecret:      strings.TrimSpace(os.Getenv("DIRECTOR_FEED_SECRET")),
		FocusWindow:     DefaultFocusWindow,
		FocusBurst:      DefaultFocusBurst,
		TickRate:        DefaultTickRate,
		PoolPath:        strings.TrimSpace(os.Getenv("DIRECTOR_POOL_FILE")),
		ScenePath:       strings.TrimSpace(os.Getenv("DIRECTOR_SCENE_FILE")),
		Subject:         strings.TrimSpace(os.Getenv("DIRECTOR_SUBJECT")),
		Channels:        parseList(os.Getenv("DIRECTOR_CHANNELS")),
		HistoryRetain:   DefaultHistoryRetain,
		Selection: SelectionConfig{
			Dwell:               DefaultDwell,
			ComfortMin:          DefaultComfortMin,
			ComfortMax:          DefaultComfortMax,
			MaxActiveDistance:   DefaultMaxActiveDistance,
			SwitchMargin:        DefaultSwitchMargin,
			VisibilityThreshold: DefaultVisibilityThreshold,
			TieBand:             DefaultTieBand,
			FramingMargin:       DefaultFramingMargin,
		},
		Capture: CaptureConfig{
			Root:          strings.TrimSpace(getString("DIRECTOR_CAPTURE_ROOT", DefaultCaptureRoot)),
			FrameInterval: DefaultCaptureFrameInterval,
			MaxSegments:   DefaultCaptureMaxSegments,
			MaxAge:        DefaultCaptureMaxAge,
		},
		GRPC: GRPCConfig{
			Address:      strings.TrimSpace(getString("DIRECTOR_GRPC_ADDR", DefaultGRPCAddr)),
			SharedSecret: strings.TrimSpace(os.Getenv("DIRECTOR_GRPC_SHARED_SECRET")),
			CertPath:     strings.TrimSpace(os.Getenv("DIRECTOR_GRPC_CERT")),
			KeyPath:      strings.TrimSpace(os.Getenv("DIRECTOR_GRPC_KEY")),
			ClientCAPath: strings.TrimSpace(os.Getenv("DIRECTOR_GRPC_CLIENT_CA")),
		},
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("DIRECTOR_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("DIRECTOR_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	p := &parser{}

	p.int64Var("DIRECTOR_MAX_PAYLOAD_BYTES", "a positive integer", func(v int64) bool { return v > 0 }, &cfg.MaxPayloadBytes)
	p.durationVar("DIRECTOR_PING_INTERVAL", &cfg.PingInterval)
	p.intVar("DIRECTOR_MAX_CLIENTS", "a non-negative integer", func(v int) bool { return v >= 0 }, &cfg.MaxClients)
	p.durationVar("DIRECTOR_FOCUS_WINDOW", &cfg.FocusWindow)
	p.intVar("DIRECTOR_FOCUS_BURST", "a positive integer", func(v int) bool { return v > 0 }, &cfg.FocusBurst)

	p.intVar("DIRECTOR_TICK_HZ", "a positive integer", func(v int) bool { return v > 0 }, &cfg.TickRate)
	p.floatVar("DIRECTOR_FAR_CLIP", "a non-negative number", func(v float64) bool { return v >= 0 }, &cfg.FarClip)
	p.intVar("DIRECTOR_HISTORY_RETAIN", "a positive integer", func(v int) bool { return v > 0 }, &cfg.HistoryRetain)

	//1.- Selection tunables share the defaults published by the director package.
	p.durationVar("DIRECTOR_DWELL", &cfg.Selection.Dwell)
	p.floatVar("DIRECTOR_COMFORT_MIN", "a non-negative number", func(v float64) bool { return v >= 0 }, &cfg.Selection.ComfortMin)
	p.floatVar("DIRECTOR_COMFORT_MAX", "a positive number", func(v float64) bool { return v > 0 }, &cfg.Selection.ComfortMax)
	p.floatVar("DIRECTOR_MAX_ACTIVE_DISTANCE", "a positive number", func(v float64) bool { return v > 0 }, &cfg.Selection.MaxActiveDistance)
	p.floatVar("DIRECTOR_SWITCH_MARGIN", "a non-negative number", func(v float64) bool { return v >= 0 }, &cfg.Selection.SwitchMargin)
	p.floatVar("DIRECTOR_VISIBILITY_THRESHOLD", "a number in [0,1]", func(v float64) bool { return v >= 0 && v <= 1 }, &cfg.Selection.VisibilityThreshold)
	p.floatVar("DIRECTOR_TIE_BAND", "a non-negative number", func(v float64) bool { return v >= 0 }, &cfg.Selection.TieBand)
	p.floatVar("DIRECTOR_FRAMING_MARGIN", "a number in [0,90]", func(v float64) bool { return v >= 0 && v <= 90 }, &cfg.Selection.FramingMargin)
	p.boolVar("DIRECTOR_RANDOMIZE", &cfg.Selection.Randomize)
	p.int64Var("DIRECTOR_RANDOM_SEED", "an integer", nil, &cfg.Selection.Seed)

	p.boolVar("DIRECTOR_CAPTURE_ENABLED", &cfg.Capture.Enabled)
	p.durationVar("DIRECTOR_CAPTURE_FRAME_INTERVAL", &cfg.Capture.FrameInterval)
	p.intVar("DIRECTOR_CAPTURE_MAX_SEGMENTS", "a non-negative integer", func(v int) bool { return v >= 0 }, &cfg.Capture.MaxSegments)
	p.durationVar("DIRECTOR_CAPTURE_MAX_AGE", &cfg.Capture.MaxAge)

	p.intVar("DIRECTOR_LOG_MAX_SIZE_MB", "a positive integer", func(v int) bool { return v > 0 }, &cfg.Logging.MaxSizeMB)
	p.intVar("DIRECTOR_LOG_MAX_BACKUPS", "a non-negative integer", func(v int) bool { return v >= 0 }, &cfg.Logging.MaxBackups)
	p.intVar("DIRECTOR_LOG_MAX_AGE_DAYS", "a non-negative integer", func(v int) bool { return v >= 0 }, &cfg.Logging.MaxAgeDays)
	p.boolVar("DIRECTOR_LOG_COMPRESS", &cfg.Logging.Compress)

	problems := p.problems
	if cfg.Selection.ComfortMin > cfg.Selection.ComfortMax {
		problems = append(problems, fmt.Sprintf("DIRECTOR_COMFORT_MIN (%g) must not exceed DIRECTOR_COMFORT_MAX (%g)", cfg.Selection.ComfortMin, cfg.Selection.ComfortMax))
	}
	if cfg.Capture.Enabled && cfg.Capture.Root == "" {
		problems = append(problems, "DIRECTOR_CAPTURE_ROOT must be set when capture is enabled")
	}
	grpcTLS := []string{cfg.GRPC.CertPath, cfg.GRPC.KeyPath, cfg.GRPC.ClientCAPath}
	if set := countSet(grpcTLS); set != 0 && set != len(grpcTLS) {
		problems = append(problems, "DIRECTOR_GRPC_CERT, DIRECTOR_GRPC_KEY and DIRECTOR_GRPC_CLIENT_CA must be provided together")
	}
	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "DIRECTOR_TLS_CERT and DIRECTOR_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func countSet(values []string) int {
	set := 0
	for _, value := range values {
		if value != "" {
			set++
		}
	}
	return set
}

// parser accumulates override problems so Load can report every invalid variable at once.
type parser struct {
	problems []string
}

func (p *parser) lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

func (p *parser) intVar(key, want string, valid func(int) bool, dst *int) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || (valid != nil && !valid(value)) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be %s, got %q", key, want, raw))
		return
	}
	*dst = value
}

func (p *parser) int64Var(key, want string, valid func(int64) bool, dst *int64) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || (valid != nil && !valid(value)) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be %s, got %q", key, want, raw))
		return
	}
	*dst = value
}

func (p *parser) floatVar(key, want string, valid func(float64) bool, dst *float64) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || (valid != nil && !valid(value)) {
		p.problems = append(p.problems, fmt.Sprintf("%s must be %s, got %q", key, want, raw))
		return
	}
	*dst = value
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = duration
}

func (p *parser) boolVar(key string, dst *bool) {
	raw, ok := p.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
