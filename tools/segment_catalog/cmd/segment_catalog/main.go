package main

import (
	"flag"
	"fmt"
	"os"

	"capturerig/director/tools/segment_catalog"
)

func main() {
	root := flag.String("dir", "captures", "directory containing capture segments")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	posesFlag := flag.Bool("poses", false, "print the recorded camera poses of every segment")
	flag.Parse()

	entries, err := segmentcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := segmentcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		h := entry.Header
		fmt.Printf("%s #%d %s (viewpoint %d, %s)\n", h.Session, h.Sequence, h.ViewpointName, h.ViewpointID, h.Reason)
		fmt.Printf("  span: %s .. %s, %d frames\n", h.StartedAt.Format("15:04:05.000"), h.EndedAt.Format("15:04:05.000"), h.Frames)
		fmt.Printf("  manifest: %s\n", entry.ManifestPath)
		if !*posesFlag {
			continue
		}
		samples, err := segmentcatalog.Poses(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  poses: %v\n", err)
			continue
		}
		for _, sample := range samples {
			p := sample.Pose
			fmt.Printf("    tick %d: pos=(%.3f, %.3f, %.3f) yaw=%.3f pitch=%.3f fov=%.2f\n",
				sample.Tick, p.Position.X, p.Position.Y, p.Position.Z, p.Yaw, p.Pitch, p.FieldOfView)
		}
	}
}
