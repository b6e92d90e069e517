package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
)

const sampleScene = `
objects:
  - handle: table
    center: [0, 0.4, 0]
    half_extents: [1, 0.4, 0.5]
    occluder: true
    surface: true
  - handle: tray
    parent: table
    center: [0.5, 0.85, 0]
    half_extents: [0.2, 0.05, 0.2]
    surface: true
  - handle: lamp
    center: [3, 0, 3]
static:
  - kind: plane
    point: [0, -0.01, 0]
    normal: [0, 1, 0]
`

func TestParseBuildsWorld(t *testing.T) {
	world, err := Parse([]byte(sampleScene))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b := world.GetBounds("table"); !b.Sized() || b.Max().Y != 0.8 {
		t.Fatalf("unexpected table bounds %+v", b)
	}
	if b := world.GetBounds("lamp"); b.Sized() || b.Center() != (r3.Vector{X: 3, Z: 3}) {
		t.Fatalf("expected unsized lamp anchor, got %+v", b)
	}
	if !world.BelongsTo("tray", "table") {
		t.Fatal("expected tray to belong to the table")
	}
	hit, surface, height := world.ProbeDownward(r3.Vector{X: 0.5, Y: 3, Z: 0})
	if !hit || surface != "tray" || height < 0.899 || height > 0.901 {
		t.Fatalf("unexpected probe hit=%v surface=%q height=%v", hit, surface, height)
	}
	//1.- The ground plane blocks sight lines that pass below it.
	if world.IsUnoccluded("lamp", r3.Vector{X: 3, Y: -5, Z: 3}) {
		t.Fatal("expected ground plane to occlude from below")
	}
}

func TestParseRejectsBadScenes(t *testing.T) {
	for name, doc := range map[string]string{
		"duplicate": "objects:\n  - handle: a\n  - handle: a\n",
		"kind":      "static:\n  - kind: cone\n",
		"normal":    "static:\n  - kind: plane\n",
		"radius":    "static:\n  - kind: sphere\n",
		"yaml":      "objects: [",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestLoadFileAndUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(sampleScene), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	world, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := world.Upsert("actor", box(1, 1, 1, 0.3, 1, 0.3)); err != nil {
		t.Fatalf("upsert new: %v", err)
	}
	if err := world.Upsert("actor", box(2, 1, 1, 0.3, 1, 0.3)); err != nil {
		t.Fatalf("upsert existing: %v", err)
	}
	if c := world.GetBounds("actor").Center(); c.X != 2 {
		t.Fatalf("expected actor moved, got %v", c)
	}
	if err := world.Upsert(" ", box(0, 0, 0, 1, 1, 1)); err == nil {
		t.Fatal("expected blank handle to be rejected")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}
