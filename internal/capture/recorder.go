// Package capture records what the director shows: every committed viewpoint
// change opens a new segment directory holding the change event, a stream of
// camera parameter frames and a closing header.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/events"
	"capturerig/director/internal/logging"
)

// DefaultFrameInterval is the 5 Hz cadence at which buffered frames reach disk.
const DefaultFrameInterval = 200 * time.Millisecond

// PoseFrameSize is the encoded size of a camera pose frame.
const PoseFrameSize = 6 * 8

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ErrClosed reports use of a recorder after Close.
var ErrClosed = errors.New("capture recorder closed")

// Options configures a Recorder.
type Options struct {
	Root          string
	FrameInterval time.Duration
	// Session names the capture run; a random UUID is used when empty.
	Session string
	Now     func() time.Time
	Logger  *logging.Logger
}

// Stats summarises recorder activity for monitoring endpoints.
type Stats struct {
	Session        string `json:"session"`
	Segments       int    `json:"segments"`
	Frames         int64  `json:"frames"`
	DroppedFrames  int64  `json:"dropped_frames"`
	Errors         int64  `json:"errors"`
	CurrentSegment string `json:"current_segment,omitempty"`
}

// Recorder rolls capture segments on viewpoint changes.
type Recorder struct {
	mu       sync.Mutex
	root     string
	interval time.Duration
	session  string
	now      func() time.Time
	log      *logging.Logger
	current  *segment
	stats    Stats
	closed   bool
}

// NewRecorder prepares a recorder writing segments under opts.Root.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("capture root must be provided")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Session == "" {
		opts.Session = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	return &Recorder{
		root:     opts.Root,
		interval: opts.FrameInterval,
		session:  opts.Session,
		now:      opts.Now,
		log:      opts.Logger.With(logging.String("component", "capture"), logging.String("session", opts.Session)),
		stats:    Stats{Session: opts.Session},
	}, nil
}

// Session returns the capture session identifier.
func (r *Recorder) Session() string { return r.session }

// OnChange closes the running segment and opens a new one for the change. It
// has the shape of a change handler so it can subscribe to the director.
func (r *Recorder) OnChange(change events.Change) {
	if err := r.Begin(change); err != nil {
		r.log.Error("capture segment rollover failed", logging.Error(err), logging.Int("viewpoint", change.ViewpointID))
	}
}

// Begin starts a new segment for change, finishing the previous one first.
func (r *Recorder) Begin(change events.Change) error {
	payload, err := change.MarshalJSON()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.finishLocked(); err != nil {
		r.stats.Errors++
		r.log.Warn("capture segment close failed", logging.Error(err))
	}

	name := nameCleaner.ReplaceAllString(change.ViewpointName, "")
	if name == "" {
		name = fmt.Sprintf("viewpoint%d", change.ViewpointID)
	}
	folder := fmt.Sprintf("%s-%06d-%s", r.session, change.Sequence, name)
	header := Header{
		SchemaVersion: HeaderSchemaVersion,
		Session:       r.session,
		SegmentID:     uuid.NewString(),
		Sequence:      change.Sequence,
		ViewpointID:   change.ViewpointID,
		ViewpointName: change.ViewpointName,
		Reason:        string(change.Reason),
		StartedAt:     r.now().UTC(),
		FilePointer:   manifestFile,
	}
	seg, err := openSegment(filepath.Join(r.root, folder), header, r.interval, r.now)
	if err != nil {
		r.stats.Errors++
		return fmt.Errorf("open capture segment: %w", err)
	}
	//1.- The change event is always the first line of the segment's event log.
	if err := seg.appendEvent(change.Sequence, "viewpoint_change", payload); err != nil {
		r.stats.Errors++
		_ = seg.close()
		return fmt.Errorf("write change event: %w", err)
	}
	r.current = seg
	r.stats.Segments++
	r.stats.CurrentSegment = seg.dir
	r.log.Info("capture segment opened", logging.String("directory", seg.dir), logging.Int("viewpoint", change.ViewpointID))
	return nil
}

// AppendFrame writes a frame into the running segment. Frames arriving before
// the first change are counted as dropped.
func (r *Recorder) AppendFrame(tick uint64, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.current == nil {
		r.stats.DroppedFrames++
		return nil
	}
	if err := r.current.appendFrame(tick, payload); err != nil {
		r.stats.Errors++
		return err
	}
	r.stats.Frames++
	return nil
}

// RecordPose appends the active viewpoint's pose as a frame.
func (r *Recorder) RecordPose(tick uint64, pose camera.Pose) error {
	return r.AppendFrame(tick, EncodePose(pose))
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close finishes the running segment. Further calls are no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.finishLocked()
}

func (r *Recorder) finishLocked() error {
	if r.current == nil {
		return nil
	}
	seg := r.current
	r.current = nil
	r.stats.CurrentSegment = ""
	return seg.close()
}

// EncodePose packs a pose as six little-endian float64 values: position, yaw,
// pitch and field of view.
func EncodePose(pose camera.Pose) []byte {
	buf := make([]byte, PoseFrameSize)
	values := []float64{pose.Position.X, pose.Position.Y, pose.Position.Z, pose.Yaw, pose.Pitch, pose.FieldOfView}
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodePose reverses EncodePose.
func DecodePose(payload []byte) (camera.Pose, error) {
	if len(payload) != PoseFrameSize {
		return camera.Pose{}, fmt.Errorf("pose frame must be %d bytes, got %d", PoseFrameSize, len(payload))
	}
	read := func(i int) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:])) }
	pose := camera.Pose{Yaw: read(3), Pitch: read(4), FieldOfView: read(5)}
	pose.Position.X, pose.Position.Y, pose.Position.Z = read(0), read(1), read(2)
	return pose, nil
}
