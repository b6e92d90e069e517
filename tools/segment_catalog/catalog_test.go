package segmentcatalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/capture"
	"capturerig/director/internal/events"
	"capturerig/director/internal/logging"
)

func TestListCollectsSegmentsInSequenceOrder(t *testing.T) {
	dir := t.TempDir()
	recorder, err := capture.NewRecorder(capture.Options{Root: dir, Session: "take", Logger: logging.NewTestLogger()})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	pose := camera.Pose{Position: r3.Vector{X: 1, Y: 2, Z: 3}, Yaw: 0.5, Pitch: -0.1, FieldOfView: 45}
	for i, name := range []string{"front", "side"} {
		if err := recorder.Begin(events.Change{Sequence: uint64(i + 1), ViewpointID: i, ViewpointName: name, PreviousID: events.NoViewpoint, At: time.Now()}); err != nil {
			t.Fatalf("Begin %s: %v", name, err)
		}
		if err := recorder.RecordPose(uint64(10*(i+1)), pose); err != nil {
			t.Fatalf("RecordPose: %v", err)
		}
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Header.ViewpointName != "front" || entries[1].Header.ViewpointName != "side" {
		t.Fatalf("unexpected order %q, %q", entries[0].Header.ViewpointName, entries[1].Header.ViewpointName)
	}
	if filepath.Base(entries[0].ManifestPath) != "manifest.json" {
		t.Fatalf("unexpected manifest path %q", entries[0].ManifestPath)
	}

	samples, err := Poses(entries[1])
	if err != nil {
		t.Fatalf("Poses: %v", err)
	}
	if len(samples) != 1 || samples[0].Tick != 20 || samples[0].Pose != pose {
		t.Fatalf("unexpected samples %+v", samples)
	}

	payload, err := MarshalEntries(entries)
	if err != nil || len(payload) == 0 {
		t.Fatalf("MarshalEntries: %v", err)
	}
}

func TestListRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := List(file); err == nil {
		t.Fatal("expected an error for a non-directory root")
	}
	if _, err := List(" "); err == nil {
		t.Fatal("expected an error for a blank root")
	}
}
