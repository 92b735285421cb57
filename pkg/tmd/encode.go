package tmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

// Marshal encodes f with default options.
func Marshal(f *File) ([]byte, error) {
	return f.Encode()
}

// Encode serialises the file. Every section is built into its own buffer
// first; the sections are then appended in a fixed order, each padded to 16
// bytes, and the header placeholders are patched with the final offsets and
// counts.
//
// The skeleton flag follows len(Bones), and wide indices are switched on
// when the flattened vertex pool no longer fits 16-bit indices. f itself is
// not modified.
func (f *File) Encode(opts ...Option) ([]byte, error) {
	o, text, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	flags := f.Flags &^ FlagSkeleton
	if len(f.Bones) > 0 {
		flags |= FlagSkeleton
	}
	useTables := len(f.Bones) >= indexTableThreshold

	mats, err := buildMaterials(f)
	if err != nil {
		return nil, fmt.Errorf("encoding materials: %w", err)
	}

	names := newNameTable(text)
	fl := newFlattener(mats.materialIndex, names, useTables)
	for i, g := range f.Submeshes {
		if g == nil {
			continue
		}
		if _, err := fl.geometry(g); err != nil {
			return nil, fmt.Errorf("encoding submesh %d: %w", i, err)
		}
	}
	for i, m := range f.Models {
		if m == nil {
			return nil, fmt.Errorf("encoding model %d: %w: nil model", i, ErrRoundTripInvariant)
		}
		if err := fl.model(m); err != nil {
			return nil, fmt.Errorf("encoding model %d (%s): %w", i, m.Name, err)
		}
	}

	if len(fl.vertices) > maxNarrowVertices {
		flags |= FlagWideIndices
	}

	var vertices, triangles, entries binio.Writer
	if err := writeVertices(&vertices, flags, fl.vertices); err != nil {
		return nil, fmt.Errorf("encoding vertices: %w", err)
	}
	if err := writeTriangles(&triangles, flags.Has(FlagWideIndices), fl.triangles); err != nil {
		return nil, fmt.Errorf("encoding triangles: %w", err)
	}
	writeEntries(&entries, fl.entries)

	var skel *skeletonSections
	if len(f.Bones) > 0 {
		if skel, err = buildSkeleton(f.Bones, names); err != nil {
			return nil, fmt.Errorf("encoding skeleton: %w", err)
		}
	}
	tableHeaders, tableIndices, tableIndexCount := writeIndexTables(fl.tables)

	var trailer binio.Writer
	for i := 0; i <= len(f.Models); i++ {
		var rec TrailerRecord
		if i < len(f.Trailer) {
			rec = f.Trailer[i]
		}
		trailer.F32s(rec[:]...)
	}

	w := binio.NewWriter()
	slots := writeHeader(w, f, flags)
	put := func(name string, s slot, b []byte) {
		off := w.AppendSection(b, sectionAlign)
		s.patch(w, off)
		o.log.Debug("tmd section",
			zap.String("section", name),
			zap.Int("offset", off),
			zap.Int("size", len(b)),
		)
	}

	put("models", slots.models, fl.models.Bytes())
	put("entries", slots.entries, entries.Bytes())
	put("materials", slots.materials, mats.materials.Bytes())
	put("shader params", slots.params, mats.params.Bytes())
	put("submeshes", slots.submeshes, fl.submeshes.Bytes())
	put("triangles", slots.triangles, triangles.Bytes())
	put("textures", slots.textures, mats.textures.Bytes())
	put("material textures", slots.matTextures, mats.matTextures.Bytes())
	put("vertices", slots.vertices, vertices.Bytes())
	put("trailer", slots.trailer, trailer.Bytes())

	if ss := slots.skeleton; ss != nil {
		if useTables {
			put("index tables", ss.indexTables, tableHeaders.Bytes())
			put("table indices", ss.tableIndices, tableIndices.Bytes())
			ss.indexTableCount.patch(w, len(fl.tables))
			ss.tableIndexCount.patch(w, tableIndexCount)
		}
		put("bone matrices", ss.matrices, skel.matrices.Bytes())
		put("bone hierarchy", ss.hierarchy, skel.hierarchy.Bytes())
		put("bone extras", ss.extra, skel.extra.Bytes())
		put("bone aux", ss.aux, skel.aux.Bytes())
		ss.boneCount.patch(w, len(f.Bones))
		ss.totalBoneCount.patch(w, len(f.Bones))
	}
	put("names", slots.names, names.bytes())

	slots.entryCount.patch(w, len(fl.entries))
	slots.materialCount.patch(w, mats.materialCount)
	slots.paramCount.patch(w, mats.paramCount)
	slots.submeshCount.patch(w, len(fl.geometries))
	slots.triangleCount.patch(w, len(fl.triangles))
	slots.textureCount.patch(w, mats.textureCount)
	slots.matTextureCount.patch(w, mats.matTextureCount)
	slots.vertexCount.patch(w, len(fl.vertices))

	o.log.Debug("tmd encoded",
		zap.Stringer("flags", flags),
		zap.Int("size", w.Len()),
		zap.Int("vertices", len(fl.vertices)),
		zap.Int("entries", len(fl.entries)),
	)
	return w.Bytes(), nil
}
