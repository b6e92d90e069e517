package simulation

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestSphereFieldSamplingMatchesAnalytic(t *testing.T) {
	field := SphereField{Center: r3.Vector{}, Radius: 2}
	cases := []struct {
		point    r3.Vector
		expected float64
	}{
		{point: r3.Vector{}, expected: -2},
		{point: r3.Vector{X: 2}, expected: 0},
		{point: r3.Vector{Y: 3}, expected: 1},
		{point: r3.Vector{X: 1, Y: 2, Z: 2}, expected: math.Sqrt(9) - 2},
	}
	for _, tc := range cases {
		//1.- Compare analytic distance with SDF sampling results.
		if got := field.Sample(tc.point); math.Abs(got-tc.expected) > 1e-7 {
			t.Fatalf("expected %f, got %f", tc.expected, got)
		}
	}
}

func TestBoxFieldSampling(t *testing.T) {
	box := BoxField{Center: r3.Vector{Y: 1}, HalfExtents: r3.Vector{X: 1, Y: 1, Z: 1}}
	if got := box.Sample(r3.Vector{Y: 1}); math.Abs(got+1) > 1e-9 {
		t.Fatalf("expected -1 at the center, got %f", got)
	}
	if got := box.Sample(r3.Vector{X: 3, Y: 1}); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected 2 off the +X face, got %f", got)
	}
	if got := box.Sample(r3.Vector{X: 2, Y: 3, Z: 1}); math.Abs(got-math.Sqrt(2)) > 1e-9 {
		t.Fatalf("expected edge distance sqrt(2), got %f", got)
	}
}

func TestUnionFieldTakesNearest(t *testing.T) {
	union := UnionField{SphereField{Center: r3.Vector{X: 10}, Radius: 1}, nil, SphereField{Center: r3.Vector{X: -3}, Radius: 1}}
	if got := union.Sample(r3.Vector{}); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected nearest surface at 2, got %f", got)
	}
	if !math.IsInf(UnionField{}.Sample(r3.Vector{}), 1) {
		t.Fatalf("empty union must be infinitely far")
	}
}

func TestRaycastHitsSphereSurface(t *testing.T) {
	field := SphereField{Center: r3.Vector{}, Radius: 2}
	hit, distance, position := Raycast(field, r3.Vector{Z: 5}, r3.Vector{Z: -1}, 100, 128, 1e-3)
	//1.- Ray should intersect three units along the negative Z axis.
	if !hit {
		t.Fatal("expected ray to hit sphere")
	}
	if math.Abs(distance-3) > 1e-3 {
		t.Fatalf("expected distance 3, got %f", distance)
	}
	if math.Abs(position.Z-2) > 1e-3 {
		t.Fatalf("expected hit at z=2, got %f", position.Z)
	}
	if hit, _, _ := Raycast(field, r3.Vector{Z: 5}, r3.Vector{}, 100, 128, 1e-3); hit {
		t.Fatal("zero direction must never hit")
	}
}

func TestSphereIntersectionDetectsPlanePenetration(t *testing.T) {
	plane := NewPlaneField(r3.Vector{}, r3.Vector{Y: 1})
	hit, separation := SphereIntersection(plane, r3.Vector{Y: 0.5}, 1)
	//1.- Sphere should intersect the plane with half unit penetration.
	if !hit {
		t.Fatal("expected intersection")
	}
	if math.Abs(separation+0.5) > 1e-7 {
		t.Fatalf("expected separation -0.5, got %f", separation)
	}
}
