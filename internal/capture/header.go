package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HeaderSchemaVersion tracks the schema version for segment header documents.
const HeaderSchemaVersion = 1

// Header is written next to a segment's manifest once the segment closes.
type Header struct {
	SchemaVersion int       `json:"schema_version"`
	Session       string    `json:"session"`
	SegmentID     string    `json:"segment_id"`
	Sequence      uint64    `json:"sequence"`
	ViewpointID   int       `json:"viewpoint_id"`
	ViewpointName string    `json:"viewpoint_name"`
	Reason        string    `json:"reason"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Frames        int       `json:"frames"`
	FilePointer   string    `json:"file_pointer"`
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.Session) == "" {
		return fmt.Errorf("session must not be empty")
	}
	//1.- Ensure catalogue tooling can locate the segment artefacts reliably.
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//1.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a segment header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
