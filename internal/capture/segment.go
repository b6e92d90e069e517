package capture

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

const (
	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"
	manifestFile = "manifest.json"
	headerFile   = "header.json"

	frameHeaderSize = 8 + 8 + 4
)

// Manifest describes the segment layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	Session         string `json:"session"`
	SegmentID       string `json:"segment_id"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// EventRecord is one line of a segment's event log.
type EventRecord struct {
	Sequence   uint64          `json:"sequence"`
	CapturedAt time.Time       `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// Frame is one length-prefixed entry of a segment's frame stream.
type Frame struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// segment streams one viewpoint's artefacts to disk: a snappy JSONL event log
// and a zstd frame stream flushed on a fixed cadence.
type segment struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	interval    time.Duration
	header      Header
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []Frame
	lastFlush   time.Time
}

// openSegment prepares the segment directory and opens compressed sinks.
func openSegment(dir string, header Header, interval time.Duration, clock func() time.Time) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	eventFile, err := os.Create(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(dir, framesFile))
	if err != nil {
		eventFile.Close()
		return nil, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, err
	}

	manifest := Manifest{
		Version:         1,
		Session:         header.Session,
		SegmentID:       header.SegmentID,
		CreatedAt:       header.StartedAt.Format(time.RFC3339Nano),
		FrameIntervalMs: int(interval / time.Millisecond),
		EventsPath:      eventsFile,
		FramesPath:      framesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, err
	}

	return &segment{
		dir:         dir,
		now:         clock,
		interval:    interval,
		header:      header,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}, nil
}

// appendEvent writes a single JSON event line to the compressed event log.
func (s *segment) appendEvent(sequence uint64, eventType string, payload []byte) error {
	captured := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	record := EventRecord{Sequence: sequence, CapturedAt: captured, Type: eventType, Payload: json.RawMessage(payload)}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := s.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.eventStream.Flush()
}

// appendFrame buffers a binary frame until the cadence interval has elapsed.
func (s *segment) appendFrame(tick uint64, payload []byte) error {
	captured := s.now().UTC()
	clone := append([]byte(nil), payload...)

	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Stage the frame so cadence enforcement can persist batches together.
	s.pending = append(s.pending, Frame{Tick: tick, CapturedAt: captured, Payload: clone})
	s.header.Frames++
	if s.lastFlush.IsZero() {
		s.lastFlush = captured
		return nil
	}
	if captured.Sub(s.lastFlush) >= s.interval {
		if err := s.flushLocked(); err != nil {
			return err
		}
		s.lastFlush = captured
	}
	return nil
}

// close flushes every buffer, writes the header and releases file handles.
func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	s.header.EndedAt = s.now().UTC()
	if err := WriteHeader(filepath.Join(s.dir, headerFile), s.header); err != nil {
		firstErr = err
	}
	//1.- Attempt every flush/close and surface the first failure for callers to inspect.
	if err := s.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers must hold the mutex.
func (s *segment) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	//1.- Write length-prefixed frames so players can step efficiently.
	header := make([]byte, frameHeaderSize)
	for _, frame := range s.pending {
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := s.frameStream.Write(header); err != nil {
			return fmt.Errorf("write frame header: %w", err)
		}
		if _, err := s.frameStream.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	s.pending = s.pending[:0]
	return nil
}
