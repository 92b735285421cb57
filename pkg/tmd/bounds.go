package tmd

import (
	"github.com/Faultbox/tmdkit/pkg/math"
)

// Bounds is an axis-aligned box.
type Bounds struct {
	Min, Max math.Vec3
}

// BoundsFromBox unpacks a stored min xyz, max xyz box.
func BoundsFromBox(b [6]float32) Bounds {
	return Bounds{
		Min: math.Vec3{X: b[0], Y: b[1], Z: b[2]},
		Max: math.Vec3{X: b[3], Y: b[4], Z: b[5]},
	}
}

// Box packs b in the stored min xyz, max xyz order.
func (b Bounds) Box() [6]float32 {
	return [6]float32{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z}
}

func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Radius is half the box diagonal.
func (b Bounds) Radius() float32 {
	return b.Min.Distance(b.Max) / 2
}

// Union returns the box covering both.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// Bounds returns the box around the geometry's vertices. ok is false for an
// empty geometry.
func (g *Geometry) Bounds() (b Bounds, ok bool) {
	if g == nil || len(g.Vertices) == 0 {
		return Bounds{}, false
	}
	b = Bounds{Min: g.Vertices[0].Position, Max: g.Vertices[0].Position}
	for _, v := range g.Vertices[1:] {
		b.Min = b.Min.Min(v.Position)
		b.Max = b.Max.Max(v.Position)
	}
	return b, true
}

// Bounds returns the box around every mesh of the model.
func (m *Model) Bounds() (b Bounds, ok bool) {
	for _, mesh := range m.Meshes {
		if mesh == nil {
			continue
		}
		gb, gok := mesh.Geometry.Bounds()
		if !gok {
			continue
		}
		if ok {
			b = b.Union(gb)
		} else {
			b, ok = gb, true
		}
	}
	return b, ok
}

// Bounds returns the box around every model.
func (f *File) Bounds() (b Bounds, ok bool) {
	for _, m := range f.Models {
		if m == nil {
			continue
		}
		mb, mok := m.Bounds()
		if !mok {
			continue
		}
		if ok {
			b = b.Union(mb)
		} else {
			b, ok = mb, true
		}
	}
	return b, ok
}

// RecomputeBounds replaces the stored file and model boxes with the boxes of
// their geometry. Models without vertices keep their stored box.
func (f *File) RecomputeBounds() {
	for _, m := range f.Models {
		if m == nil {
			continue
		}
		if b, ok := m.Bounds(); ok {
			m.BoundingBox = b.Box()
		}
	}
	if b, ok := f.Bounds(); ok {
		f.BoundingBox = b.Box()
	}
}
