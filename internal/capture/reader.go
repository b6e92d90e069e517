package capture

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ReadSegment decodes a segment directory written by the recorder.
func ReadSegment(dir string) (Manifest, []EventRecord, []Frame, error) {
	if dir == "" {
		return Manifest{}, nil, nil, fmt.Errorf("segment directory is required")
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, nil, nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, nil, nil, err
	}
	if manifest.Version != 1 {
		return Manifest{}, nil, nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	//1.- Decode events first so tooling can label the frames that follow.
	records, err := readEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return Manifest{}, nil, nil, err
	}
	frames, err := readFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return Manifest{}, nil, nil, err
	}
	return manifest, records, frames, nil
}

func readEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []EventRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("decode event line: %w", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func readFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	offset := 0
	for offset+frameHeaderSize <= len(payload) {
		//1.- Read the fixed header then hydrate the payload bytes.
		tick := binary.LittleEndian.Uint64(payload[offset : offset+8])
		captured := int64(binary.LittleEndian.Uint64(payload[offset+8 : offset+16]))
		size := int(binary.LittleEndian.Uint32(payload[offset+16 : offset+20]))
		offset += frameHeaderSize
		if offset+size > len(payload) {
			return nil, fmt.Errorf("frame payload truncated")
		}
		frames = append(frames, Frame{
			Tick:       tick,
			CapturedAt: time.Unix(0, captured).UTC(),
			Payload:    append([]byte(nil), payload[offset:offset+size]...),
		})
		offset += size
	}
	if offset != len(payload) {
		return nil, fmt.Errorf("trailing %d bytes after last frame", len(payload)-offset)
	}
	return frames, nil
}
