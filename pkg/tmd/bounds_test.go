package tmd

import (
	"errors"
	"testing"

	"github.com/Faultbox/tmdkit/pkg/math"
)

func TestGeometryBounds(t *testing.T) {
	g := &Geometry{Vertices: []Vertex{
		{Position: math.Vec3{X: 1, Y: -2, Z: 3}},
		{Position: math.Vec3{X: -1, Y: 4, Z: 0}},
		{Position: math.Vec3{X: 0, Y: 0, Z: -3}},
	}}
	b, ok := g.Bounds()
	if !ok {
		t.Fatal("bounds not ok")
	}
	want := Bounds{Min: math.Vec3{X: -1, Y: -2, Z: -3}, Max: math.Vec3{X: 1, Y: 4, Z: 3}}
	if b != want {
		t.Errorf("Bounds = %+v, want %+v", b, want)
	}
	if c := b.Center(); c != (math.Vec3{X: 0, Y: 1, Z: 0}) {
		t.Errorf("Center = %v", c)
	}
	if s := b.Size(); s != (math.Vec3{X: 2, Y: 6, Z: 6}) {
		t.Errorf("Size = %v", s)
	}
	// diagonal of (2, 6, 6) is sqrt(76)
	if r := b.Radius(); !near(r*r, 19, 1e-4) {
		t.Errorf("Radius = %v", r)
	}
	if got := BoundsFromBox(b.Box()); got != b {
		t.Errorf("BoundsFromBox(Box()) = %+v", got)
	}

	if _, ok := (&Geometry{}).Bounds(); ok {
		t.Error("empty geometry reported bounds")
	}
	var nilGeom *Geometry
	if _, ok := nilGeom.Bounds(); ok {
		t.Error("nil geometry reported bounds")
	}
}

func TestRecomputeBounds(t *testing.T) {
	f := makeTestFile()
	empty := &Model{Name: "empty", BoundingBox: [6]float32{9, 9, 9, 9, 9, 9}}
	f.Models = append(f.Models, empty)
	f.RecomputeBounds()

	fb := BoundsFromBox(f.BoundingBox)
	for i, m := range f.Models[:len(f.Models)-1] {
		want, ok := m.Bounds()
		if !ok {
			t.Fatalf("model %d has no bounds", i)
		}
		if m.BoundingBox != want.Box() {
			t.Errorf("model %d box = %v, want %v", i, m.BoundingBox, want.Box())
		}
		if fb.Union(want) != fb {
			t.Errorf("file box %+v does not contain model %d box %+v", fb, i, want)
		}
	}
	if empty.BoundingBox != [6]float32{9, 9, 9, 9, 9, 9} {
		t.Errorf("model without vertices lost its stored box: %v", empty.BoundingBox)
	}
}

func TestBindPose(t *testing.T) {
	f := makeTestFile()
	f.Bones[2].Position = math.Vec3{X: 2}
	world, err := f.BindPose()
	if err != nil {
		t.Fatal(err)
	}
	want := []math.Vec3{{}, {Y: 1}, {X: 2, Y: 1}}
	for i, w := range want {
		if got := world[i].Translation(); got != w {
			t.Errorf("bone %d world position = %v, want %v", i, got, w)
		}
	}

	f.Bones[0].Parent = 2
	if _, err := f.BindPose(); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("cycle error = %v, want ErrInvalidFormat", err)
	}
	f.Bones[0].Parent = 7
	if _, err := f.BindPose(); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("bad parent error = %v, want ErrOutOfBounds", err)
	}
}
