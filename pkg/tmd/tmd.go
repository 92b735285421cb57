// Package tmd decodes and encodes "tmd0" model containers.
//
// A container holds a set of models built from a shared pool of submeshes,
// the materials and texture descriptors they reference, an optional skeleton
// and a name table. Decode turns an uncompressed buffer into a File; Encode
// turns a File back into a buffer that decodes to an equivalent graph.
package tmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/math"
)

// Magic is the leading tag of every model buffer.
const Magic = "tmd0"

// Header defaults written by new files.
const (
	DefaultVersion    = 0x209
	DefaultUnk1       = 200
	DefaultUnk2       = 0x28
	DefaultFrameCount = -1
)

const (
	sectionAlign = 16

	// Skeletons with at least this many bones address vertex bone ids
	// through per-mesh index tables.
	indexTableThreshold = 255

	// Wide indices are forced once the vertex pool outgrows 16 bits.
	maxNarrowVertices = 0xFFFF
)

// TMD format errors.
var (
	ErrInvalidFormat      = errors.New("invalid tmd data")
	ErrInvalidMagic       = fmt.Errorf("%w: bad magic, expected '%s'", ErrInvalidFormat, Magic)
	ErrOutOfBounds        = binio.ErrOutOfBounds
	ErrUnsupportedLayout  = errors.New("unsupported vertex layout")
	ErrRoundTripInvariant = errors.New("round-trip invariant violated")
)

// SectionError reports a failure while reading or writing one section.
type SectionError struct {
	Section string
	Offset  int64
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("tmd: %s section at 0x%x: %v", e.Section, e.Offset, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// Flags is the model-wide bit word selecting the vertex layout and the
// optional sections.
type Flags uint16

const (
	FlagPosition    Flags = 0x0002
	FlagNormal      Flags = 0x0004
	FlagTangent     Flags = 0x0008 // tangent + binormal
	FlagUV          Flags = 0x0010
	FlagUV2         Flags = 0x0020
	FlagUV3         Flags = 0x0040
	FlagColor       Flags = 0x0080
	FlagNormal2     Flags = 0x0100
	FlagColor2      Flags = 0x0200
	FlagWeights     Flags = 0x0400 // weights + bone ids
	FlagWideIndices Flags = 0x0800
	FlagSkeleton    Flags = 0x2000
	FlagWeights2    Flags = 0x8000 // second weights + bone ids
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagPosition, "position"},
	{FlagNormal, "normal"},
	{FlagTangent, "tangent"},
	{FlagUV, "uv"},
	{FlagUV2, "uv2"},
	{FlagUV3, "uv3"},
	{FlagColor, "color"},
	{FlagNormal2, "normal2"},
	{FlagColor2, "color2"},
	{FlagWeights, "weights"},
	{FlagWideIndices, "wide-indices"},
	{FlagSkeleton, "skeleton"},
	{FlagWeights2, "weights2"},
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String lists the set flags by name; unknown bits are printed in hex.
func (f Flags) String() string {
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%04x", uint16(rest)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// EntryKind is the opcode of a submesh entry.
type EntryKind uint8

const (
	EntryEnd           EntryKind = 16
	EntryEmitMesh      EntryKind = 48
	EntrySetIndexTable EntryKind = 64
	EntrySetMaterial   EntryKind = 96
)

func (k EntryKind) String() string {
	switch k {
	case EntryEnd:
		return "End"
	case EntryEmitMesh:
		return "EmitMesh"
	case EntrySetIndexTable:
		return "SetIndexTable"
	case EntrySetMaterial:
		return "SetMaterial"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Entry is one instruction of a model's entry stream.
type Entry struct {
	Kind  EntryKind
	Index uint8
}

// File is a decoded model container.
type File struct {
	Version     uint16
	Flags       Flags
	BoundingBox [6]float32 // min xyz, max xyz

	// Header fields with unknown meaning, preserved as read.
	Unk0       uint16
	Unk1       uint16
	Unk2       uint16
	FrameCount int16
	Unk3       uint32
	Unk4       uint64
	Unk5       uint64

	Models    []*Model
	Submeshes []*Geometry // decoded submesh pool, in file order
	Materials []*Material
	Textures  []*Texture
	Bones     []*Bone

	// IndexTables holds the tables as decoded. Encode rebuilds the table
	// pool from the meshes and ignores this field.
	IndexTables []IndexTable

	Trailer []TrailerRecord // len(Models)+1 records
}

// New returns an empty file carrying the default header values.
func New() *File {
	return &File{
		Version:    DefaultVersion,
		Flags:      FlagPosition,
		Unk1:       DefaultUnk1,
		Unk2:       DefaultUnk2,
		FrameCount: DefaultFrameCount,
		Trailer:    make([]TrailerRecord, 1),
	}
}

// Model is a named group of meshes.
type Model struct {
	Name        string
	Hash        uint32
	BoundingBox [6]float32
	Unk0        uint16
	Unk1        uint32

	Meshes []*Mesh

	// Materials lists the material selected by each SetMaterial entry, in
	// entry order. It is informational; Encode derives entries from Meshes.
	Materials []*Material
}

// Geometry is a self-contained vertex and triangle list. Triangle indices
// address Vertices.
type Geometry struct {
	Vertices  []Vertex
	Triangles [][3]uint32
}

// Mesh binds a geometry to a material and a bone index table. Meshes emitted
// from the same submesh share one *Geometry.
type Mesh struct {
	*Geometry
	Material     *Material
	IndexTable   []uint32 // vertex bone id -> skeleton bone index
	SubmeshIndex int      // position in File.Submeshes when decoded
}

// Vertex holds every attribute the format can store. Which ones are
// meaningful is decided by File.Flags.
type Vertex struct {
	Position     math.Vec3
	Normal       math.Vec3
	Normal2      math.Vec3
	Tangent      math.Vec3
	Binormal     math.Vec3
	Color        math.Vec4 // RGBA in 0..1
	Color2       math.Vec4
	UV           [3]math.Vec2
	BoneIDs      [4]uint8
	BoneWeights  math.Vec4 // 0..1, each group sums to 1
	BoneIDs2     [4]uint8
	BoneWeights2 math.Vec4
}

// Bone is one skeleton joint.
type Bone struct {
	Name     string
	Hash     uint32
	Parent   int32     // -1 for roots
	Position math.Vec3 // local position
	Matrix   math.Mat4
	Unk      uint16
	Extra    int16     // index into the auxiliary offsets, -1 for none
	Offset   math.Vec3 // auxiliary offset addressed by Extra
}

// IndexTable maps byte-sized vertex bone ids to skeleton bone indices.
type IndexTable struct {
	Indices []uint32
}

// Material is a shader binding with its textures and parameters.
type Material struct {
	Hash     uint32
	ShaderID string // 4 characters
	Textures []*MatTexture
	Params   []float32
	Unk      int32
}

// Name returns the decimal form of the material hash.
func (m *Material) Name() string {
	return strconv.FormatUint(uint64(m.Hash), 10)
}

// MatTexture binds a texture to a material slot.
type MatTexture struct {
	Hash    uint32
	Texture *Texture
	Unk1    int16
	Unk2    int16
	SlotLow uint8
	Slot    uint8
}

// Texture describes an image stored in the companion texture package.
type Texture struct {
	Hash   uint32
	Index  uint16 // blob index in the texture package
	Width  uint16
	Height uint16
	Format uint16
}

// TrailerRecord is one of the fixed-size records after the vertex data.
type TrailerRecord [24]float32

// hashName is the name an entity carries when the name table has none.
func hashName(hash uint32) string {
	return strconv.FormatUint(uint64(hash), 10)
}
