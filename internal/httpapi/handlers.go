// Package httpapi exposes the director's operational and control surface over
// HTTP: health probes, Prometheus text metrics, focus and visible-area control
// and a websocket feed of viewpoint changes.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/mux"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/capture"
	"capturerig/director/internal/director"
	"capturerig/director/internal/events"
	"capturerig/director/internal/geometry"
	"capturerig/director/internal/logging"
	"capturerig/director/internal/simulation"
)

// Director is the serialized view of the controller the handlers drive.
type Director interface {
	Snapshot() Snapshot
	SetFocus(request director.FocusRequest)
	SetVisibleArea(region geometry.Bounds)
	ClearVisibleArea()
	Activate(enabled bool)
	UpdateSubject(handle string, region geometry.Bounds) error
	Place(query PlacementQuery) ([]r3.Vector, error)
}

// History returns the most recent change notifications, oldest first.
type History interface {
	History(limit int) []events.Change
}

// Snapshot is the controller state reported by GET /viewpoint.
type Snapshot struct {
	Enabled   bool            `json:"enabled"`
	Status    director.Status `json:"status"`
	Focus     string          `json:"focus"`
	Viewpoint *ViewpointView  `json:"viewpoint,omitempty"`
	Stats     director.Stats  `json:"stats"`
}

// ViewpointView is the JSON rendering of a viewpoint.
type ViewpointView struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Position    [3]float64 `json:"position"`
	Yaw         float64    `json:"yaw"`
	Pitch       float64    `json:"pitch"`
	FieldOfView float64    `json:"field_of_view"`
	Channels    []string   `json:"channels,omitempty"`
}

// ViewOf renders v, returning nil for a nil viewpoint.
func ViewOf(v *camera.Viewpoint) *ViewpointView {
	if v == nil {
		return nil
	}
	view := &ViewpointView{
		ID:          v.ID,
		Name:        v.Name,
		Position:    [3]float64{v.Position.X, v.Position.Y, v.Position.Z},
		Yaw:         v.Yaw,
		Pitch:       v.Pitch,
		FieldOfView: v.FieldOfView,
	}
	for _, channel := range v.Channels {
		if channel != nil && channel.Enabled {
			view.Channels = append(view.Channels, channel.Kind)
		}
	}
	return view
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Director     Director
	History      History
	Hub          *Hub
	Monitor      *simulation.TickMonitor
	CaptureStats func() capture.Stats
	StorageStats func() capture.StorageStats
	AdminToken   string
	RateLimiter  *SlidingWindowLimiter
	TimeSource   func() time.Time
	StartedAt    time.Time
}

// HandlerSet bundles the director's HTTP handlers.
type HandlerSet struct {
	logger       *logging.Logger
	director     Director
	history      History
	hub          *Hub
	monitor      *simulation.TickMonitor
	captureStats func() capture.Stats
	storageStats func() capture.StorageStats
	adminToken   string
	rateLimiter  *SlidingWindowLimiter
	now          func() time.Time
	startedAt    time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = now()
	}
	return &HandlerSet{
		logger:       logger,
		director:     opts.Director,
		history:      opts.History,
		hub:          opts.Hub,
		monitor:      opts.Monitor,
		captureStats: opts.CaptureStats,
		storageStats: opts.StorageStats,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
		startedAt:    started,
	}
}

// Router builds a gorilla/mux router with every route registered.
func (h *HandlerSet) Router() *mux.Router {
	router := mux.NewRouter()
	h.Register(router)
	return router
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(router *mux.Router) {
	if router == nil {
		return
	}
	router.HandleFunc("/livez", h.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.ReadinessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/viewpoint", h.ViewpointHandler()).Methods(http.MethodGet)
	router.HandleFunc("/viewpoints/history", h.HistoryHandler()).Methods(http.MethodGet)
	router.HandleFunc("/focus", h.guard("focus", true, h.FocusHandler())).Methods(http.MethodPost)
	router.HandleFunc("/visible-area", h.guard("visible_area", false, h.VisibleAreaHandler())).Methods(http.MethodPost, http.MethodDelete)
	router.HandleFunc("/activate", h.guard("activate", false, h.ActivateHandler())).Methods(http.MethodPost)
	router.HandleFunc("/subject", h.guard("subject", false, h.SubjectHandler())).Methods(http.MethodPost)
	router.HandleFunc("/placements", h.guard("placements", true, h.PlacementHandler())).Methods(http.MethodPost)
	router.HandleFunc("/api/routes", RouteDocsHandler()).Methods(http.MethodGet)
	if h.hub != nil {
		router.HandleFunc("/ws", h.hub.ServeWS).Methods(http.MethodGet)
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports 503 while the pool cannot supply a viewpoint.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status           string  `json:"status"`
		Message          string  `json:"message,omitempty"`
		UptimeSeconds    float64 `json:"uptime_seconds"`
		ControllerStatus string  `json:"controller_status,omitempty"`
		ActiveViewpoint  int     `json:"active_viewpoint"`
		Clients          int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{
			Status:          "ok",
			UptimeSeconds:   h.now().Sub(h.startedAt).Seconds(),
			ActiveViewpoint: events.NoViewpoint,
			Clients:         h.hub.Clients(),
		}
		if h.director != nil {
			snapshot := h.director.Snapshot()
			resp.ControllerStatus = snapshot.Status.String()
			resp.ActiveViewpoint = snapshot.Stats.ActiveID
			if err := snapshot.Status.Err(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "unavailable"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metric(w, "director_uptime_seconds", "gauge", "Director uptime in seconds.", fmt.Sprintf("%.0f", h.now().Sub(h.startedAt).Seconds()))
		metric(w, "director_feed_clients", "gauge", "Connected websocket change feed clients.", strconv.Itoa(h.hub.Clients()))

		if h.director != nil {
			snapshot := h.director.Snapshot()
			stats := snapshot.Stats
			enabled := 0
			if snapshot.Enabled {
				enabled = 1
			}
			metric(w, "director_enabled", "gauge", "Whether auto selection is running.", strconv.Itoa(enabled))
			metric(w, "director_active_viewpoint", "gauge", "Identifier of the active viewpoint, -1 when none.", strconv.Itoa(stats.ActiveID))
			metric(w, "director_ticks_total", "counter", "Controller ticks evaluated.", strconv.FormatUint(stats.Ticks, 10))
			metric(w, "director_switches_total", "counter", "Committed viewpoint switches.", strconv.FormatUint(stats.Switches, 10))
			metric(w, "director_reframes_total", "counter", "In-place reframes of the active viewpoint.", strconv.FormatUint(stats.Reframes, 10))
			metric(w, "director_no_candidate_ticks_total", "counter", "Ticks against an empty pool.", strconv.FormatUint(stats.NoCandidateTicks, 10))
			metric(w, "director_uncovered_ticks_total", "counter", "Ticks where no viewpoint saw the target.", strconv.FormatUint(stats.UncoveredTicks, 10))
		}
		if h.monitor != nil {
			snap := h.monitor.Snapshot()
			metric(w, "director_tick_duration_seconds_avg", "gauge", "Average controller step duration.", fmt.Sprintf("%.6f", snap.Average.Seconds()))
			metric(w, "director_tick_duration_seconds_max", "gauge", "Worst controller step duration.", fmt.Sprintf("%.6f", snap.Max.Seconds()))
			metric(w, "director_tick_duration_seconds_p95", "gauge", "95th percentile of recent controller steps.", fmt.Sprintf("%.6f", snap.P95.Seconds()))
			metric(w, "director_tick_samples_total", "counter", "Observed controller steps.", strconv.Itoa(snap.Samples))
			metric(w, "director_tick_overruns_total", "counter", "Controller steps slower than the tick interval.", strconv.Itoa(snap.Overruns))
		}
		if h.captureStats != nil {
			stats := h.captureStats()
			metric(w, "director_capture_segments_total", "counter", "Capture segments opened.", strconv.Itoa(stats.Segments))
			metric(w, "director_capture_frames_total", "counter", "Capture frames written.", strconv.FormatInt(stats.Frames, 10))
			metric(w, "director_capture_dropped_frames_total", "counter", "Frames offered with no open segment.", strconv.FormatInt(stats.DroppedFrames, 10))
			metric(w, "director_capture_errors_total", "counter", "Capture write failures.", strconv.FormatInt(stats.Errors, 10))
		}
		if h.storageStats != nil {
			stats := h.storageStats()
			metric(w, "director_capture_retained_segments", "gauge", "Segments kept by the last retention sweep.", strconv.Itoa(stats.Segments))
			metric(w, "director_capture_retained_bytes", "gauge", "Bytes kept by the last retention sweep.", strconv.FormatInt(stats.Bytes, 10))
		}
	}
}

// ViewpointHandler reports the active viewpoint and controller state.
func (h *HandlerSet) ViewpointHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.director == nil {
			http.Error(w, "director unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.director.Snapshot())
	}
}

// HistoryHandler lists recent change notifications. The optional limit query
// parameter bounds the result.
func (h *HandlerSet) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		var changes []events.Change
		if h.history != nil {
			changes = h.history.History(limit)
		}
		entries := make([]json.RawMessage, 0, len(changes))
		for _, change := range changes {
			encoded, err := change.MarshalJSON()
			if err != nil {
				h.logger.Error("encode change history failed", logging.Error(err))
				http.Error(w, "failed to encode history", http.StatusInternalServerError)
				return
			}
			entries = append(entries, encoded)
		}
		writeJSON(w, http.StatusOK, map[string]any{"changes": entries})
	}
}

// guard enforces the admin token and, when limited is set, the rate limiter.
func (h *HandlerSet) guard(name string, limited bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.LoggerFromContext(r.Context()).With(
			logging.String("handler", name),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken != "" && !h.authorise(r) {
			reqLogger.Warn("control request denied: unauthorized")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if limited {
			key := remoteHost(r)
			if !h.rateLimiter.Allow(key) {
				if wait := h.rateLimiter.RetryAfter(key); wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds()+0.999)))
				}
				reqLogger.Warn("control request denied: rate limit exceeded")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		if h.director == nil {
			http.Error(w, "director unavailable", http.StatusServiceUnavailable)
			return
		}
		next(w, r.WithContext(logging.ContextWithLogger(r.Context(), reqLogger)))
	}
}

// bearerToken returns the Authorization header value with an optional
// "Bearer " prefix removed.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func metric(w http.ResponseWriter, name, kind, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %s\n", name, value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
