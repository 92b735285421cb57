package tmd

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/math"
)

// Attr names a vertex record field.
type Attr uint8

const (
	AttrPosition Attr = iota
	AttrBoneWeights
	AttrBoneIDs
	AttrBoneWeights2
	AttrBoneIDs2
	AttrNormal
	AttrTangent
	AttrBinormal
	AttrColor
	AttrNormal2
	AttrColor2
	AttrUV
	AttrUV2
	AttrUV3
)

var attrNames = [...]string{
	AttrPosition:     "position",
	AttrBoneWeights:  "boneWeights",
	AttrBoneIDs:      "boneIDs",
	AttrBoneWeights2: "boneWeights2",
	AttrBoneIDs2:     "boneIDs2",
	AttrNormal:       "normal",
	AttrTangent:      "tangent",
	AttrBinormal:     "binormal",
	AttrColor:        "color",
	AttrNormal2:      "normal2",
	AttrColor2:       "color2",
	AttrUV:           "uv",
	AttrUV2:          "uv2",
	AttrUV3:          "uv3",
}

func (a Attr) String() string {
	if int(a) < len(attrNames) {
		return attrNames[a]
	}
	return fmt.Sprintf("Attr(%d)", uint8(a))
}

// FieldType is the primitive type of a vertex field component.
type FieldType uint8

const (
	Float32 FieldType = iota
	Uint8
)

func (t FieldType) String() string {
	if t == Float32 {
		return "f32"
	}
	return "u8"
}

// Field is one entry of a vertex record layout.
type Field struct {
	Attr  Attr
	Type  FieldType
	Count int
}

// Size returns the field's byte length.
func (f Field) Size() int {
	if f.Type == Float32 {
		return 4 * f.Count
	}
	return f.Count
}

func (f Field) String() string {
	return fmt.Sprintf("%s:%s×%d", f.Attr, f.Type, f.Count)
}

// Layout returns the vertex record fields selected by flags, in record order.
func Layout(flags Flags) []Field {
	var fields []Field
	add := func(mask Flags, fs ...Field) {
		if flags.Has(mask) {
			fields = append(fields, fs...)
		}
	}
	add(FlagPosition, Field{AttrPosition, Float32, 3})
	add(FlagWeights, Field{AttrBoneWeights, Uint8, 4}, Field{AttrBoneIDs, Uint8, 4})
	add(FlagWeights2, Field{AttrBoneWeights2, Uint8, 4}, Field{AttrBoneIDs2, Uint8, 4})
	add(FlagNormal, Field{AttrNormal, Uint8, 4})
	add(FlagTangent, Field{AttrTangent, Uint8, 4}, Field{AttrBinormal, Uint8, 4})
	add(FlagColor, Field{AttrColor, Uint8, 4})
	add(FlagNormal2, Field{AttrNormal2, Uint8, 4})
	add(FlagColor2, Field{AttrColor2, Uint8, 4})
	add(FlagUV, Field{AttrUV, Float32, 2})
	add(FlagUV2, Field{AttrUV2, Float32, 2})
	add(FlagUV3, Field{AttrUV3, Float32, 2})
	return fields
}

// RecordSize returns the byte length of one vertex record.
func RecordSize(flags Flags) int {
	n := 0
	for _, f := range Layout(flags) {
		n += f.Size()
	}
	return n
}

// checkLayout rejects layouts that cannot carry count vertices.
func checkLayout(flags Flags, count int) error {
	if count == 0 {
		return nil
	}
	if RecordSize(flags) == 0 {
		return fmt.Errorf("%w: %d vertices with an empty record (flags %s)", ErrUnsupportedLayout, count, flags)
	}
	if !flags.Has(FlagPosition) {
		return fmt.Errorf("%w: vertex record without position (flags %s)", ErrUnsupportedLayout, flags)
	}
	return nil
}

func readVertices(r *binio.Reader, flags Flags, count int) ([]Vertex, error) {
	if err := checkLayout(flags, count); err != nil {
		return nil, err
	}
	if !r.Need(count * RecordSize(flags)) {
		return nil, r.Err()
	}

	fields := Layout(flags)
	vertices := make([]Vertex, count)
	for i := range vertices {
		v := &vertices[i]
		for _, f := range fields {
			readField(r, f.Attr, v)
		}
	}
	return vertices, r.Err()
}

func readField(r *binio.Reader, a Attr, v *Vertex) {
	switch a {
	case AttrPosition:
		v.Position = math.Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
	case AttrBoneWeights:
		v.BoneWeights = unpackUnit(r.Bytes(4))
	case AttrBoneIDs:
		copy(v.BoneIDs[:], r.Bytes(4))
	case AttrBoneWeights2:
		v.BoneWeights2 = unpackUnit(r.Bytes(4))
	case AttrBoneIDs2:
		copy(v.BoneIDs2[:], r.Bytes(4))
	case AttrNormal:
		v.Normal = unpackNormal(r.Bytes(4))
	case AttrTangent:
		v.Tangent = unpackNormal(r.Bytes(4))
	case AttrBinormal:
		v.Binormal = unpackNormal(r.Bytes(4))
	case AttrColor:
		v.Color = unpackUnit(r.Bytes(4))
	case AttrNormal2:
		v.Normal2 = unpackNormal(r.Bytes(4))
	case AttrColor2:
		v.Color2 = unpackUnit(r.Bytes(4))
	case AttrUV:
		v.UV[0] = math.Vec2{X: r.F32(), Y: r.F32()}
	case AttrUV2:
		v.UV[1] = math.Vec2{X: r.F32(), Y: r.F32()}
	case AttrUV3:
		v.UV[2] = math.Vec2{X: r.F32(), Y: r.F32()}
	}
}

func writeVertices(w *binio.Writer, flags Flags, vertices []Vertex) error {
	if err := checkLayout(flags, len(vertices)); err != nil {
		return err
	}
	fields := Layout(flags)
	for i := range vertices {
		v := &vertices[i]
		for _, f := range fields {
			if err := writeField(w, f.Attr, v); err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
		}
	}
	return nil
}

func writeField(w *binio.Writer, a Attr, v *Vertex) error {
	switch a {
	case AttrPosition:
		w.F32s(v.Position.X, v.Position.Y, v.Position.Z)
	case AttrBoneWeights:
		b, err := packWeights(v.BoneWeights)
		if err != nil {
			return err
		}
		w.Write(b[:])
	case AttrBoneIDs:
		w.Write(v.BoneIDs[:])
	case AttrBoneWeights2:
		b, err := packWeights(v.BoneWeights2)
		if err != nil {
			return err
		}
		w.Write(b[:])
	case AttrBoneIDs2:
		w.Write(v.BoneIDs2[:])
	case AttrNormal:
		b := packNormal(v.Normal, 255)
		w.Write(b[:])
	case AttrTangent:
		b := packNormal(v.Tangent, 0)
		w.Write(b[:])
	case AttrBinormal:
		b := packNormal(v.Binormal, 0)
		w.Write(b[:])
	case AttrColor:
		b := packUnit(v.Color)
		w.Write(b[:])
	case AttrNormal2:
		b := packNormal(v.Normal2, 255)
		w.Write(b[:])
	case AttrColor2:
		b := packUnit(v.Color2)
		w.Write(b[:])
	case AttrUV:
		w.F32s(v.UV[0].X, v.UV[0].Y)
	case AttrUV2:
		w.F32s(v.UV[1].X, v.UV[1].Y)
	case AttrUV3:
		w.F32s(v.UV[2].X, v.UV[2].Y)
	}
	return nil
}

// unpackNormal expands a signed-normalised byte triple and renormalises it.
// The fourth byte is ignored.
func unpackNormal(b []byte) math.Vec3 {
	if len(b) < 3 {
		return math.Vec3{}
	}
	v := math.Vec3{
		X: float32(b[0])/255*2 - 1,
		Y: float32(b[1])/255*2 - 1,
		Z: float32(b[2])/255*2 - 1,
	}
	if v.Length() == 0 {
		return v
	}
	return v.Normalize()
}

func unpackUnit(b []byte) math.Vec4 {
	var v math.Vec4
	for i := 0; i < len(b) && i < 4; i++ {
		v[i] = float32(b[i]) / 255
	}
	return v
}

func quantize(f float32) int {
	return int(gomath.Round(float64(f) * 255))
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func packNormal(v math.Vec3, w uint8) [4]byte {
	return [4]byte{
		clampByte(quantize(v.X*0.5 + 0.5)),
		clampByte(quantize(v.Y*0.5 + 0.5)),
		clampByte(quantize(v.Z*0.5 + 0.5)),
		w,
	}
}

func packUnit(v math.Vec4) [4]byte {
	var b [4]byte
	for i := range b {
		b[i] = clampByte(quantize(v[i]))
	}
	return b
}

// packWeights quantises a weight group so that its bytes sum to 255. The
// group is normalised first; negative weights count as zero and an all-zero
// group stays zero. The largest byte absorbs the rounding error.
func packWeights(v math.Vec4) ([4]byte, error) {
	var sum float32
	for _, w := range v {
		if gomath.IsNaN(float64(w)) || gomath.IsInf(float64(w), 0) {
			return [4]byte{}, fmt.Errorf("%w: bone weights %v are not finite", ErrRoundTripInvariant, v)
		}
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		return [4]byte{}, nil
	}

	var q [4]int
	total, largest := 0, 0
	for i, w := range v {
		if w > 0 {
			q[i] = int(clampByte(quantize(w / sum)))
		}
		total += q[i]
		if q[i] > q[largest] {
			largest = i
		}
	}

	q[largest] += 255 - total
	if q[largest] < 0 || q[largest] > 255 {
		return [4]byte{}, fmt.Errorf("%w: bone weights %v cannot be quantised to sum 255", ErrRoundTripInvariant, v)
	}

	var b [4]byte
	for i := range b {
		b[i] = uint8(q[i])
	}
	return b, nil
}
