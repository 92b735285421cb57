package tmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/encoding"
)

const trailerRecordSize = 96

// Parse decodes model data with default options.
func Parse(data []byte) (*File, error) {
	return Decode(data)
}

// ParseFile decodes an uncompressed model file from disk.
func ParseFile(path string, opts ...Option) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return Decode(data, opts...)
}

// Decode parses an uncompressed model buffer. Every section is reached through
// its header offset, so the physical order of sections does not matter.
// Nothing is returned on failure.
func Decode(data []byte, opts ...Option) (*File, error) {
	o, text, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	r := binio.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	o.log.Debug("tmd header",
		zap.Uint16("version", h.Version),
		zap.Stringer("flags", h.Flags),
		zap.Int("size", len(data)),
	)

	d := &decoder{r: r, h: h, log: o.log, text: text}
	return d.decode()
}

type decoder struct {
	r    *binio.Reader
	h    *Header
	log  *zap.Logger
	text *encoding.Text
}

// section positions the reader at off and runs read with the record count.
func (d *decoder) section(name string, off, count uint64, read func(n int) error) error {
	fail := func(err error) error {
		return &SectionError{Section: name, Offset: int64(off), Err: err}
	}
	size := uint64(d.r.Len())
	if off > size {
		return fail(fmt.Errorf("%w: offset 0x%x past end of 0x%x-byte buffer", ErrOutOfBounds, off, size))
	}
	if count > size {
		return fail(fmt.Errorf("%w: %d records cannot fit a 0x%x-byte buffer", ErrOutOfBounds, count, size))
	}
	if err := d.r.Seek(int(off)); err != nil {
		return fail(err)
	}
	if err := read(int(count)); err != nil {
		return fail(err)
	}
	d.log.Debug("tmd section",
		zap.String("section", name),
		zap.Uint64("offset", off),
		zap.Uint64("count", count),
	)
	return nil
}

func (d *decoder) name(off int64, hash uint32) (string, error) {
	return lookupName(d.r, d.text, d.h.NamesOffset, off, hash)
}

// sectionStep is one offset-addressed read of the decode pass.
type sectionStep struct {
	name  string
	off   uint64
	count uint64
	read  func(n int) error
}

func (d *decoder) run(steps ...sectionStep) error {
	for _, s := range steps {
		if err := d.section(s.name, s.off, s.count, s.read); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) decode() (*File, error) {
	h := d.h
	f := &File{
		Version:     h.Version,
		Flags:       h.Flags,
		BoundingBox: h.BoundingBox,
		Unk0:        h.Unk0,
		Unk1:        h.Unk1,
		Unk2:        h.Unk2,
		FrameCount:  h.FrameCount,
		Unk3:        h.Unk3,
		Unk4:        h.Unk4,
		Unk5:        h.Unk5,
	}
	var (
		err         error
		matTextures []*MatTexture
		params      []float32
		vertices    []Vertex
		triangles   [][3]uint32
		entries     []Entry
		initial     []uint32
	)

	err = d.run(
		sectionStep{"textures", h.TexturesOffset, h.TextureCount, func(n int) error {
			f.Textures, err = readTextures(d.r, n)
			return err
		}},
		sectionStep{"material textures", uint64(h.MatTexturesOffset), uint64(h.MatTextureCount), func(n int) error {
			matTextures, err = readMatTextures(d.r, n, f.Textures)
			return err
		}},
		sectionStep{"shader params", uint64(h.ParamsOffset), uint64(h.ParamCount), func(n int) error {
			params, err = readParams(d.r, n)
			return err
		}},
		sectionStep{"materials", uint64(h.MaterialsOffset), uint64(h.MaterialCount), func(n int) error {
			f.Materials, err = readMaterials(d.r, n, matTextures, params)
			return err
		}},
		sectionStep{"vertices", uint64(h.VerticesOffset), uint64(h.VertexCount), func(n int) error {
			vertices, err = readVertices(d.r, h.Flags, n)
			return err
		}},
		sectionStep{"triangles", uint64(h.TrianglesOffset), uint64(h.TriangleCount), func(n int) error {
			triangles, err = readTriangles(d.r, h.Flags.Has(FlagWideIndices), n)
			return err
		}},
	)
	if err != nil {
		return nil, err
	}

	if h.Skeleton != nil {
		if err := d.skeleton(f); err != nil {
			return nil, err
		}
		initial = f.IndexTables[0].Indices
	}

	err = d.run(
		sectionStep{"entries", uint64(h.EntriesOffset), uint64(h.EntryCount), func(n int) error {
			entries, err = readEntries(d.r, n)
			return err
		}},
		sectionStep{"submeshes", uint64(h.SubmeshesOffset), uint64(h.SubmeshCount), func(n int) error {
			f.Submeshes, err = readSubmeshes(d.r, n, triangles, vertices)
			return err
		}},
		sectionStep{"models", h.ModelsOffset, uint64(h.ModelCount), func(n int) error {
			records, err := readModelRecords(d.r, n)
			if err != nil {
				return err
			}
			a := &assembler{
				entries:   entries,
				materials: f.Materials,
				tables:    f.IndexTables,
				initial:   initial,
				submeshes: f.Submeshes,
			}
			f.Models = make([]*Model, len(records))
			for i, rec := range records {
				m, err := a.model(rec)
				if err != nil {
					return fmt.Errorf("model %d: %w", i, err)
				}
				m.Name = hashName(rec.Hash)
				if rec.NameOffset != noModelName {
					if m.Name, err = d.name(int64(rec.NameOffset), rec.Hash); err != nil {
						return fmt.Errorf("model %d name: %w", i, err)
					}
				}
				f.Models[i] = m
			}
			return nil
		}},
		sectionStep{"trailer", h.TrailerOffset, uint64(h.ModelCount) + 1, func(n int) error {
			if !d.r.Need(n * trailerRecordSize) {
				return d.r.Err()
			}
			f.Trailer = make([]TrailerRecord, n)
			for i := range f.Trailer {
				d.r.F32s(f.Trailer[i][:])
			}
			return d.r.Err()
		}},
	)
	if err != nil {
		return nil, err
	}

	d.log.Debug("tmd decoded",
		zap.Int("models", len(f.Models)),
		zap.Int("submeshes", len(f.Submeshes)),
		zap.Int("materials", len(f.Materials)),
		zap.Int("bones", len(f.Bones)),
	)
	return f, nil
}

// skeleton reads the bone sections. When the file has no index tables an
// identity table over the bones stands in for them.
func (d *decoder) skeleton(f *File) error {
	sh := d.h.Skeleton
	var (
		err     error
		indices []uint32
	)
	err = d.run(
		sectionStep{"table indices", uint64(sh.TableIndicesOffset), uint64(sh.TableIndexCount), func(n int) error {
			indices, err = readTableIndices(d.r, n)
			return err
		}},
		sectionStep{"index tables", uint64(sh.IndexTablesOffset), uint64(sh.IndexTableCount), func(n int) error {
			f.IndexTables, err = readIndexTables(d.r, n, indices)
			return err
		}},
		sectionStep{"bone hierarchy", uint64(sh.HierarchyOffset), uint64(sh.BoneCount), func(n int) error {
			f.Bones, err = readBones(d.r, n, d.name)
			return err
		}},
		sectionStep{"bone matrices", uint64(sh.MatricesOffset), uint64(sh.BoneCount), func(int) error {
			return readMatrices(d.r, f.Bones)
		}},
		sectionStep{"bone extras", uint64(sh.ExtraOffset), uint64(sh.BoneCount), func(int) error {
			return readExtras(d.r, f.Bones)
		}},
	)
	if err != nil {
		return err
	}

	// The aux array sits at the next 16-byte boundary after the extras;
	// it is still reached through its own header offset.
	if n := auxCount(f.Bones); n > 0 {
		err = d.run(sectionStep{"bone aux", uint64(sh.AuxOffset), uint64(n), func(n int) error {
			return readAux(d.r, f.Bones, n)
		}})
		if err != nil {
			return err
		}
	}

	if len(f.IndexTables) == 0 {
		f.IndexTables = []IndexTable{identityTable(len(f.Bones))}
	}
	return nil
}
