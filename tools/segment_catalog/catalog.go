// Package segmentcatalog lists the capture segments found under a directory
// tree and decodes their recorded camera poses for inspection.
package segmentcatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"capturerig/director/internal/camera"
	"capturerig/director/internal/capture"
)

// Entry captures a segment header alongside its resolved manifest path.
type Entry struct {
	HeaderPath   string         `json:"header_path"`
	ManifestPath string         `json:"manifest_path"`
	Header       capture.Header `json:"header"`
}

// PoseSample is one decoded pose frame of a segment.
type PoseSample struct {
	Tick uint64      `json:"tick"`
	Pose camera.Pose `json:"pose"`
}

// List walks the directory tree and returns parsed segment headers ordered by
// session and sequence.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree searching for closed segment headers.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := capture.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		manifestPath := header.FilePointer
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(path), manifestPath)
		}
		entries = append(entries, Entry{HeaderPath: path, ManifestPath: manifestPath, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.Session == entries[j].Header.Session {
			return entries[i].Header.Sequence < entries[j].Header.Sequence
		}
		return entries[i].Header.Session < entries[j].Header.Session
	})
	return entries, nil
}

// Poses decodes every pose frame stored in the entry's segment.
func Poses(entry Entry) ([]PoseSample, error) {
	_, _, frames, err := capture.ReadSegment(filepath.Dir(entry.ManifestPath))
	if err != nil {
		return nil, err
	}
	samples := make([]PoseSample, 0, len(frames))
	for _, frame := range frames {
		pose, err := capture.DecodePose(frame.Payload)
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", frame.Tick, err)
		}
		samples = append(samples, PoseSample{Tick: frame.Tick, Pose: pose})
	}
	return samples, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
