package math

import (
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 6, 8}
	tests := []struct {
		name string
		got  Vec3
		want Vec3
	}{
		{"add", a.Add(b), Vec3{5, 8, 11}},
		{"sub", b.Sub(a), Vec3{3, 4, 5}},
		{"scale", a.Scale(2), Vec3{2, 4, 6}},
		{"min", Vec3{1, 9, -2}.Min(Vec3{3, 4, -5}), Vec3{1, 4, -5}},
		{"max", Vec3{1, 9, -2}.Max(Vec3{3, 4, -5}), Vec3{3, 9, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestVec3Dot(t *testing.T) {
	if got := (Vec3{1, 2, 3}).Dot(Vec3{4, 5, 6}); got != 32 {
		t.Errorf("Vec3.Dot() = %v, want 32", got)
	}
}

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3Length(t *testing.T) {
	if got := (Vec3{2, 3, 6}).Length(); got != 7 {
		t.Errorf("Vec3.Length() = %v, want 7", got)
	}
	if got := (Vec3{1, 1, 1}).Distance(Vec3{3, 4, 7}); got != 7 {
		t.Errorf("Vec3.Distance() = %v, want 7", got)
	}
}

func TestVec3Normalize(t *testing.T) {
	n := Vec3{3, 0, 4}.Normalize()
	if l := n.Length(); l < 0.999 || l > 1.001 {
		t.Errorf("Vec3.Normalize().Length() = %v, want ~1", l)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("zero Vec3.Normalize() = %v, want zero", got)
	}
}

func TestArrays(t *testing.T) {
	if got := (Vec3{1, 2, 3}).Array(); got != [3]float32{1, 2, 3} {
		t.Errorf("Vec3.Array() = %v", got)
	}
	if got := (Vec2{4, 5}).Array(); got != [2]float32{4, 5} {
		t.Errorf("Vec2.Array() = %v", got)
	}
}
