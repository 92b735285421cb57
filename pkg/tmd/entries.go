package tmd

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

const (
	modelRecordSize   = 44
	entryRecordSize   = 2
	submeshRecordSize = 8
	maxEntryIndex     = 0xFF
)

// modelRecord is the on-disk form of a model.
type modelRecord struct {
	BoundingBox [6]float32
	EntryCount  uint16
	Unk0        uint16
	EntryStart  uint32
	NameOffset  int32 // -1: name derived from hash
	Hash        uint32
	Unk1        uint32
}

func readModelRecords(r *binio.Reader, count int) ([]modelRecord, error) {
	if !r.Need(count * modelRecordSize) {
		return nil, r.Err()
	}
	recs := make([]modelRecord, count)
	for i := range recs {
		rec := &recs[i]
		r.F32s(rec.BoundingBox[:])
		rec.EntryCount = r.U16()
		rec.Unk0 = r.U16()
		rec.EntryStart = r.U32()
		rec.NameOffset = r.I32()
		rec.Hash = r.U32()
		rec.Unk1 = r.U32()
	}
	return recs, r.Err()
}

func (rec *modelRecord) write(w *binio.Writer) {
	w.F32s(rec.BoundingBox[:]...)
	w.U16(rec.EntryCount)
	w.U16(rec.Unk0)
	w.U32(rec.EntryStart)
	w.I32(rec.NameOffset)
	w.U32(rec.Hash)
	w.U32(rec.Unk1)
}

func readEntries(r *binio.Reader, count int) ([]Entry, error) {
	if !r.Need(count * entryRecordSize) {
		return nil, r.Err()
	}
	entries := make([]Entry, count)
	for i := range entries {
		entries[i].Index = r.U8()
		entries[i].Kind = EntryKind(r.U8())
	}
	return entries, r.Err()
}

// readSubmeshes resolves each submesh's triangle range against the global
// pools. Vertices are deduplicated per submesh in first-use order and the
// triangles rewritten to local indices.
func readSubmeshes(r *binio.Reader, count int, tris [][3]uint32, vertices []Vertex) ([]*Geometry, error) {
	if !r.Need(count * submeshRecordSize) {
		return nil, r.Err()
	}
	out := make([]*Geometry, count)
	for i := range out {
		triCount, triStart := int(r.U32()), int(r.U32())
		if err := r.Err(); err != nil {
			return nil, err
		}
		if triStart+triCount > len(tris) {
			return nil, fmt.Errorf("%w: submesh %d triangles [%d:+%d] of %d", ErrOutOfBounds, i, triStart, triCount, len(tris))
		}

		g := &Geometry{Triangles: make([][3]uint32, 0, triCount)}
		local := make(map[uint32]uint32)
		for _, t := range tris[triStart : triStart+triCount] {
			var lt [3]uint32
			for j, gi := range t {
				li, seen := local[gi]
				if !seen {
					if int(gi) >= len(vertices) {
						return nil, fmt.Errorf("%w: submesh %d references vertex %d of %d", ErrOutOfBounds, i, gi, len(vertices))
					}
					li = uint32(len(g.Vertices))
					local[gi] = li
					g.Vertices = append(g.Vertices, vertices[gi])
				}
				lt[j] = li
			}
			g.Triangles = append(g.Triangles, lt)
		}
		out[i] = g
	}
	return out, nil
}

// assembler runs model entry streams against the decoded pools.
type assembler struct {
	entries   []Entry
	materials []*Material
	tables    []IndexTable
	initial   []uint32
	submeshes []*Geometry
}

func (a *assembler) model(rec modelRecord) (*Model, error) {
	start, n := int(rec.EntryStart), int(rec.EntryCount)
	if start+n > len(a.entries) {
		return nil, fmt.Errorf("%w: entries [%d:+%d] of %d", ErrOutOfBounds, start, n, len(a.entries))
	}

	m := &Model{
		Hash:        rec.Hash,
		BoundingBox: rec.BoundingBox,
		Unk0:        rec.Unk0,
		Unk1:        rec.Unk1,
	}
	var material *Material
	table := a.initial

	for i, e := range a.entries[start : start+n] {
		idx := int(e.Index)
		switch e.Kind {
		case EntrySetMaterial:
			if idx >= len(a.materials) {
				return nil, fmt.Errorf("%w: entry %d selects material %d of %d", ErrOutOfBounds, start+i, idx, len(a.materials))
			}
			material = a.materials[idx]
			m.Materials = append(m.Materials, material)
		case EntrySetIndexTable:
			if idx >= len(a.tables) {
				return nil, fmt.Errorf("%w: entry %d selects index table %d of %d", ErrOutOfBounds, start+i, idx, len(a.tables))
			}
			table = a.tables[idx].Indices
		case EntryEmitMesh:
			if idx >= len(a.submeshes) {
				return nil, fmt.Errorf("%w: entry %d emits submesh %d of %d", ErrOutOfBounds, start+i, idx, len(a.submeshes))
			}
			m.Meshes = append(m.Meshes, &Mesh{
				Geometry:     a.submeshes[idx],
				Material:     material,
				IndexTable:   table,
				SubmeshIndex: idx,
			})
		case EntryEnd:
			return m, nil
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown kind %d", ErrInvalidFormat, start+i, uint8(e.Kind))
		}
	}
	return m, nil
}

// flattener is the encode-side inverse of assembler. It grows the global
// submesh, vertex, triangle, index table and entry pools model by model.
type flattener struct {
	useTables     bool
	materialIndex map[*Material]int
	geometryIndex map[*Geometry]int
	tableIndex    map[string]int
	names         *nameTable

	submeshes binio.Writer
	models    binio.Writer

	geometries []*Geometry
	vertices   []Vertex
	triangles  [][3]uint32
	tables     []IndexTable
	entries    []Entry
}

func newFlattener(materialIndex map[*Material]int, names *nameTable, useTables bool) *flattener {
	return &flattener{
		useTables:     useTables,
		materialIndex: materialIndex,
		geometryIndex: make(map[*Geometry]int),
		tableIndex:    make(map[string]int),
		names:         names,
	}
}

// geometry returns the submesh index of g, appending it to the pools on
// first use.
func (fl *flattener) geometry(g *Geometry) (int, error) {
	if idx, ok := fl.geometryIndex[g]; ok {
		return idx, nil
	}
	idx := len(fl.geometries)
	base := uint32(len(fl.vertices))
	triStart := len(fl.triangles)

	for i, t := range g.Triangles {
		var gt [3]uint32
		for j, li := range t {
			if int(li) >= len(g.Vertices) {
				return 0, fmt.Errorf("%w: submesh %d triangle %d references vertex %d of %d", ErrRoundTripInvariant, idx, i, li, len(g.Vertices))
			}
			gt[j] = base + li
		}
		fl.triangles = append(fl.triangles, gt)
	}
	fl.vertices = append(fl.vertices, g.Vertices...)

	fl.submeshes.U32(uint32(len(g.Triangles)))
	fl.submeshes.U32(uint32(triStart))
	fl.geometries = append(fl.geometries, g)
	fl.geometryIndex[g] = idx
	return idx, nil
}

// table returns the pool index of an index table, deduplicating by content.
func (fl *flattener) table(indices []uint32) int {
	key := make([]byte, 0, 4*len(indices))
	for _, v := range indices {
		key = binary.LittleEndian.AppendUint32(key, v)
	}
	if idx, ok := fl.tableIndex[string(key)]; ok {
		return idx
	}
	idx := len(fl.tables)
	fl.tables = append(fl.tables, IndexTable{Indices: slices.Clone(indices)})
	fl.tableIndex[string(key)] = idx
	return idx
}

func (fl *flattener) emit(local []Entry, kind EntryKind, idx int) ([]Entry, error) {
	if idx > maxEntryIndex {
		return nil, fmt.Errorf("%w: %s index %d does not fit an entry", ErrOutOfBounds, kind, idx)
	}
	return append(local, Entry{Kind: kind, Index: uint8(idx)}), nil
}

// model flattens one model's meshes into entries and writes its record.
func (fl *flattener) model(m *Model) error {
	var local []Entry
	var err error

	lastMaterial := -1
	var lastTable []uint32

	for i, mesh := range m.Meshes {
		if mesh == nil || mesh.Geometry == nil {
			return fmt.Errorf("%w: mesh %d has no geometry", ErrRoundTripInvariant, i)
		}

		if mesh.Material != nil {
			mi, ok := fl.materialIndex[mesh.Material]
			if !ok {
				return fmt.Errorf("%w: mesh %d material is not in the material list", ErrRoundTripInvariant, i)
			}
			if mi != lastMaterial {
				if local, err = fl.emit(local, EntrySetMaterial, mi); err != nil {
					return err
				}
				lastMaterial = mi
			}
		} else if lastMaterial != -1 {
			return fmt.Errorf("%w: mesh %d has no material after one was selected", ErrRoundTripInvariant, i)
		}

		if fl.useTables && len(mesh.IndexTable) == 0 && lastTable != nil {
			return fmt.Errorf("%w: mesh %d has no index table after one was selected", ErrRoundTripInvariant, i)
		}
		if fl.useTables && len(mesh.IndexTable) > 0 && (lastTable == nil || !slices.Equal(lastTable, mesh.IndexTable)) {
			if local, err = fl.emit(local, EntrySetIndexTable, fl.table(mesh.IndexTable)); err != nil {
				return err
			}
			lastTable = mesh.IndexTable
		}

		gi, err := fl.geometry(mesh.Geometry)
		if err != nil {
			return err
		}
		if local, err = fl.emit(local, EntryEmitMesh, gi); err != nil {
			return err
		}
	}
	if local, err = fl.emit(local, EntryEnd, 0); err != nil {
		return err
	}
	if len(local) > 0xFFFF {
		return fmt.Errorf("%w: %d entries exceed 16 bits", ErrOutOfBounds, len(local))
	}

	nameOff, err := fl.names.modelRef(m.Name, m.Hash)
	if err != nil {
		return err
	}
	rec := modelRecord{
		BoundingBox: m.BoundingBox,
		EntryCount:  uint16(len(local)),
		Unk0:        m.Unk0,
		EntryStart:  uint32(len(fl.entries)),
		NameOffset:  nameOff,
		Hash:        m.Hash,
		Unk1:        m.Unk1,
	}
	rec.write(&fl.models)
	fl.entries = append(fl.entries, local...)
	return nil
}

func writeEntries(w *binio.Writer, entries []Entry) {
	for _, e := range entries {
		w.U8(e.Index)
		w.U8(uint8(e.Kind))
	}
}

func writeIndexTables(tables []IndexTable) (headers, indices binio.Writer, indexCount int) {
	for _, t := range tables {
		headers.U32(uint32(len(t.Indices)))
		headers.U32(uint32(indexCount))
		for _, v := range t.Indices {
			indices.U32(v)
		}
		indexCount += len(t.Indices)
	}
	return headers, indices, indexCount
}
