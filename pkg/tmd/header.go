package tmd

import (
	"fmt"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

// Header is the fixed-layout head of a model buffer. Offsets are absolute.
type Header struct {
	Unk0        uint16
	Flags       Flags
	Unk1        uint16
	Version     uint16
	Unk2        uint16
	FrameCount  int16
	BoundingBox [6]float32

	ModelsOffset      uint64
	Unk3              uint32
	EntriesOffset     uint32
	MaterialsOffset   uint32
	ParamsOffset      uint32
	NamesOffset       uint64
	SubmeshesOffset   uint32
	TrianglesOffset   uint32
	TexturesOffset    uint64
	MatTexturesOffset uint32
	VerticesOffset    uint32
	TrailerOffset     uint64

	ModelCount      uint32
	Unk4            uint64
	EntryCount      uint32
	MaterialCount   uint32
	ParamCount      uint32
	Unk5            uint64
	SubmeshCount    uint32
	TriangleCount   uint32
	TextureCount    uint64
	MatTextureCount uint32
	VertexCount     uint32

	// Skeleton is present only when Flags has FlagSkeleton.
	Skeleton *SkeletonHeader
}

// SkeletonHeader holds the offsets and counts of the skeleton sections.
type SkeletonHeader struct {
	IndexTablesOffset  uint32
	TableIndicesOffset uint32
	MatricesOffset     uint32
	HierarchyOffset    uint32
	IndexTableCount    uint32
	TableIndexCount    uint32
	BoneCount          uint32
	TotalBoneCount     uint32
	ExtraOffset        uint32
	AuxOffset          uint32
}

// ReadHeader parses only the header of a model buffer.
func ReadHeader(data []byte) (*Header, error) {
	return readHeader(binio.NewReader(data))
}

func readHeader(r *binio.Reader) (*Header, error) {
	magic := r.Bytes(4)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, magic)
	}

	h := &Header{}
	h.Unk0 = r.U16()
	h.Flags = Flags(r.U16())
	h.Unk1 = r.U16()
	h.Version = r.U16()
	h.Unk2 = r.U16()
	h.FrameCount = r.I16()
	r.F32s(h.BoundingBox[:])

	h.ModelsOffset = r.U64()
	h.Unk3 = r.U32()
	h.EntriesOffset = r.U32()
	h.MaterialsOffset = r.U32()
	h.ParamsOffset = r.U32()
	h.NamesOffset = r.U64()
	h.SubmeshesOffset = r.U32()
	h.TrianglesOffset = r.U32()
	h.TexturesOffset = r.U64()
	h.MatTexturesOffset = r.U32()
	h.VerticesOffset = r.U32()
	h.TrailerOffset = r.U64()

	h.ModelCount = r.U32()
	h.Unk4 = r.U64()
	h.EntryCount = r.U32()
	h.MaterialCount = r.U32()
	h.ParamCount = r.U32()
	h.Unk5 = r.U64()
	h.SubmeshCount = r.U32()
	h.TriangleCount = r.U32()
	h.TextureCount = r.U64()
	h.MatTextureCount = r.U32()
	h.VertexCount = r.U32()

	if h.Flags.Has(FlagSkeleton) {
		h.Skeleton = &SkeletonHeader{
			IndexTablesOffset:  r.U32(),
			TableIndicesOffset: r.U32(),
			MatricesOffset:     r.U32(),
			HierarchyOffset:    r.U32(),
			IndexTableCount:    r.U32(),
			TableIndexCount:    r.U32(),
			BoneCount:          r.U32(),
			TotalBoneCount:     r.U32(),
			ExtraOffset:        r.U32(),
			AuxOffset:          r.U32(),
		}
	}

	if err := r.Err(); err != nil {
		return nil, &SectionError{Section: "header", Offset: 0, Err: err}
	}
	return h, nil
}

// slot is the position of a placeholder written into the header.
type slot struct {
	pos  int
	wide bool
}

func (s slot) patch(w *binio.Writer, v int) {
	if s.wide {
		w.PatchU64(s.pos, uint64(v))
		return
	}
	w.PatchU32(s.pos, uint32(v))
}

func placeholder32(w *binio.Writer) slot {
	return slot{pos: w.Placeholder32()}
}

func placeholder64(w *binio.Writer) slot {
	return slot{pos: w.Placeholder64(), wide: true}
}

// headerSlots records every offset and count placeholder of a written header.
type headerSlots struct {
	models, entries, materials, params, names   slot
	submeshes, triangles, textures, matTextures slot
	vertices, trailer                           slot
	entryCount, materialCount, paramCount       slot
	submeshCount, triangleCount, textureCount   slot
	matTextureCount, vertexCount                slot
	skeleton                                    *skeletonSlots
}

type skeletonSlots struct {
	indexTables, tableIndices, matrices, hierarchy slot
	indexTableCount, tableIndexCount               slot
	boneCount, totalBoneCount                      slot
	extra, aux                                     slot
}

// writeHeader writes the header with zeroed offsets and counts and returns
// where each of them lives. Values known up front are written directly.
func writeHeader(w *binio.Writer, f *File, flags Flags) *headerSlots {
	s := &headerSlots{}

	w.Fixed([]byte(Magic), 4)
	w.U16(f.Unk0)
	w.U16(uint16(flags))
	w.U16(f.Unk1)
	w.U16(f.Version)
	w.U16(f.Unk2)
	w.I16(f.FrameCount)
	w.F32s(f.BoundingBox[:]...)

	s.models = placeholder64(w)
	w.U32(f.Unk3)
	s.entries = placeholder32(w)
	s.materials = placeholder32(w)
	s.params = placeholder32(w)
	s.names = placeholder64(w)
	s.submeshes = placeholder32(w)
	s.triangles = placeholder32(w)
	s.textures = placeholder64(w)
	s.matTextures = placeholder32(w)
	s.vertices = placeholder32(w)
	s.trailer = placeholder64(w)

	w.U32(uint32(len(f.Models)))
	w.U64(f.Unk4)
	s.entryCount = placeholder32(w)
	s.materialCount = placeholder32(w)
	s.paramCount = placeholder32(w)
	w.U64(f.Unk5)
	s.submeshCount = placeholder32(w)
	s.triangleCount = placeholder32(w)
	s.textureCount = placeholder64(w)
	s.matTextureCount = placeholder32(w)
	s.vertexCount = placeholder32(w)

	if flags.Has(FlagSkeleton) {
		s.skeleton = &skeletonSlots{
			indexTables:     placeholder32(w),
			tableIndices:    placeholder32(w),
			matrices:        placeholder32(w),
			hierarchy:       placeholder32(w),
			indexTableCount: placeholder32(w),
			tableIndexCount: placeholder32(w),
			boneCount:       placeholder32(w),
			totalBoneCount:  placeholder32(w),
			extra:           placeholder32(w),
			aux:             placeholder32(w),
		}
	}

	w.Align(sectionAlign)
	return s
}
