package tmd

import (
	"fmt"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/math"
)

const (
	boneRecordSize       = 24
	matrixRecordSize     = 64
	indexTableRecordSize = 8
	auxRecordSize        = 12
	noExtra              = -1
)

func readTableIndices(r *binio.Reader, count int) ([]uint32, error) {
	if !r.Need(count * 4) {
		return nil, r.Err()
	}
	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = r.U32()
	}
	return indices, r.Err()
}

func readIndexTables(r *binio.Reader, count int, indices []uint32) ([]IndexTable, error) {
	if !r.Need(count * indexTableRecordSize) {
		return nil, r.Err()
	}
	tables := make([]IndexTable, count)
	for i := range tables {
		n, start := int(r.U32()), int(r.U32())
		if err := r.Err(); err != nil {
			return nil, err
		}
		if start+n > len(indices) {
			return nil, fmt.Errorf("%w: index table %d spans [%d:+%d] of %d indices", ErrOutOfBounds, i, start, n, len(indices))
		}
		tables[i].Indices = append([]uint32(nil), indices[start:start+n]...)
	}
	return tables, nil
}

// identityTable maps every bone id to itself.
func identityTable(boneCount int) IndexTable {
	t := IndexTable{Indices: make([]uint32, boneCount)}
	for i := range t.Indices {
		t.Indices[i] = uint32(i)
	}
	return t
}

// nameFunc resolves a name table offset for an entity hash.
type nameFunc func(off int64, hash uint32) (string, error)

func readBones(r *binio.Reader, count int, name nameFunc) ([]*Bone, error) {
	if !r.Need(count * boneRecordSize) {
		return nil, r.Err()
	}
	bones := make([]*Bone, count)
	for i := range bones {
		b := &Bone{Hash: r.U32(), Extra: noExtra}
		b.Position = math.Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
		b.Parent = r.I32()
		b.Unk = r.U16()
		nameOff := r.U16()
		if err := r.Err(); err != nil {
			return nil, err
		}

		b.Name = hashName(b.Hash)
		if nameOff != noBoneName {
			n, err := name(int64(nameOff), b.Hash)
			if err != nil {
				return nil, fmt.Errorf("bone %d name: %w", i, err)
			}
			b.Name = n
		}
		bones[i] = b
	}
	return bones, nil
}

func readMatrices(r *binio.Reader, bones []*Bone) error {
	if !r.Need(len(bones) * matrixRecordSize) {
		return r.Err()
	}
	for _, b := range bones {
		r.F32s(b.Matrix[:])
	}
	return r.Err()
}

// readExtras reads the per-bone extra indices.
func readExtras(r *binio.Reader, bones []*Bone) error {
	if !r.Need(len(bones) * 2) {
		return r.Err()
	}
	for _, b := range bones {
		b.Extra = r.I16()
	}
	return r.Err()
}

// auxCount is the number of auxiliary offsets: one per bone with an extra
// index.
func auxCount(bones []*Bone) int {
	n := 0
	for _, b := range bones {
		if b != nil && b.Extra != noExtra {
			n++
		}
	}
	return n
}

// readAux reads count auxiliary offsets and hands them to the bones that
// index them.
func readAux(r *binio.Reader, bones []*Bone, count int) error {
	if !r.Need(count * auxRecordSize) {
		return r.Err()
	}
	aux := make([]math.Vec3, count)
	for i := range aux {
		aux[i] = math.Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
	}
	if err := r.Err(); err != nil {
		return err
	}

	for i, b := range bones {
		if b.Extra < 0 {
			continue
		}
		if int(b.Extra) >= count {
			return fmt.Errorf("%w: bone %d extra index %d of %d", ErrOutOfBounds, i, b.Extra, count)
		}
		b.Offset = aux[b.Extra]
	}
	return nil
}

// skeletonSections holds the serialised bone sections.
type skeletonSections struct {
	hierarchy binio.Writer
	matrices  binio.Writer
	extra     binio.Writer
	aux       binio.Writer
}

func buildSkeleton(bones []*Bone, names *nameTable) (*skeletonSections, error) {
	s := &skeletonSections{}

	n := auxCount(bones)
	aux := make([]math.Vec3, n)
	filled := make([]bool, n)

	for i, b := range bones {
		if b == nil {
			return nil, fmt.Errorf("%w: bone %d is nil", ErrRoundTripInvariant, i)
		}
		nameOff, err := names.boneRef(b.Name, b.Hash)
		if err != nil {
			return nil, fmt.Errorf("bone %d: %w", i, err)
		}

		s.hierarchy.U32(b.Hash)
		s.hierarchy.F32s(b.Position.X, b.Position.Y, b.Position.Z)
		s.hierarchy.I32(b.Parent)
		s.hierarchy.U16(b.Unk)
		s.hierarchy.U16(nameOff)

		s.matrices.F32s(b.Matrix[:]...)
		s.extra.I16(b.Extra)

		if b.Extra < 0 {
			continue
		}
		e := int(b.Extra)
		if e >= n {
			return nil, fmt.Errorf("%w: bone %d extra index %d outside %d auxiliary offsets", ErrRoundTripInvariant, i, e, n)
		}
		if filled[e] && aux[e] != b.Offset {
			return nil, fmt.Errorf("%w: bones share extra index %d with different offsets", ErrRoundTripInvariant, e)
		}
		aux[e], filled[e] = b.Offset, true
	}

	for _, v := range aux {
		s.aux.F32s(v.X, v.Y, v.Z)
	}
	return s, nil
}

// BindPose returns the world transform of every bone, composed from the local
// positions along the parent chain.
func (f *File) BindPose() ([]math.Mat4, error) {
	const (
		pending = iota
		visiting
		done
	)
	world := make([]math.Mat4, len(f.Bones))
	state := make([]uint8, len(f.Bones))

	var resolve func(i int) error
	resolve = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: bone %d is its own ancestor", ErrInvalidFormat, i)
		}
		state[i] = visiting
		b := f.Bones[i]
		local := math.Translate(b.Position.X, b.Position.Y, b.Position.Z)
		parent := math.Identity()
		if b.Parent >= 0 {
			if int(b.Parent) >= len(f.Bones) {
				return fmt.Errorf("%w: bone %d has parent %d", ErrOutOfBounds, i, b.Parent)
			}
			if err := resolve(int(b.Parent)); err != nil {
				return err
			}
			parent = world[b.Parent]
		}
		world[i] = parent.Mul(local)
		state[i] = done
		return nil
	}

	for i := range f.Bones {
		if err := resolve(i); err != nil {
			return nil, err
		}
	}
	return world, nil
}
