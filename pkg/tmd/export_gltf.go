package tmd

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/tmdkit/pkg/lds"
)

// ExportOptions controls ExportGLTF.
type ExportOptions struct {
	// TextureURI names the image file of a texture. The default matches the
	// blob names written when a texture package is extracted.
	TextureURI func(t *Texture) string

	// SkipSkin exports geometry only, without joints or weights.
	SkipSkin bool
}

// TextureFileName is the default image name of a texture: the blob index in
// the companion texture package.
func TextureFileName(t *Texture) string {
	return lds.TextureName(int(t.Index))
}

// ExportGLTF converts the file into a glTF document: one mesh and node per
// model, one primitive per mesh, one material per material, and a skin over
// the bone nodes when the file has a skeleton.
func (f *File) ExportGLTF(opts ExportOptions) (*gltf.Document, error) {
	if opts.TextureURI == nil {
		opts.TextureURI = TextureFileName
	}
	doc := gltf.NewDocument()

	textures := make(map[*Texture]uint32, len(f.Textures))
	for _, t := range f.Textures {
		doc.Images = append(doc.Images, &gltf.Image{
			Name: hashName(t.Hash),
			URI:  opts.TextureURI(t),
		})
		textures[t] = uint32(len(doc.Textures))
		doc.Textures = append(doc.Textures, &gltf.Texture{
			Name:   hashName(t.Hash),
			Source: gltf.Index(uint32(len(doc.Images) - 1)),
		})
	}

	materials := make(map[*Material]uint32, len(f.Materials))
	for _, m := range f.Materials {
		color := &[4]float32{1, 1, 1, 1}
		gm := &gltf.Material{
			Name:        m.Name() + "_" + m.ShaderID,
			DoubleSided: true,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: color,
			},
		}
		for _, mt := range m.Textures {
			if ti, ok := textures[mt.Texture]; ok {
				gm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: ti}
				break
			}
		}
		materials[m] = uint32(len(doc.Materials))
		doc.Materials = append(doc.Materials, gm)
	}

	var skin *uint32
	if len(f.Bones) > 0 && !opts.SkipSkin {
		idx, err := f.exportSkeleton(doc)
		if err != nil {
			return nil, err
		}
		skin = gltf.Index(idx)
	}

	for mi, model := range f.Models {
		gmesh := &gltf.Mesh{Name: model.Name}
		for _, mesh := range model.Meshes {
			if mesh.Geometry == nil || len(mesh.Triangles) == 0 {
				continue
			}
			prim, err := f.exportPrimitive(doc, mesh, skin != nil)
			if err != nil {
				return nil, fmt.Errorf("model %d: %w", mi, err)
			}
			if idx, ok := materials[mesh.Material]; ok {
				prim.Material = gltf.Index(idx)
			}
			gmesh.Primitives = append(gmesh.Primitives, prim)
		}

		node := &gltf.Node{
			Name:     model.Name,
			Rotation: [4]float32{0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
		}
		if len(gmesh.Primitives) > 0 {
			doc.Meshes = append(doc.Meshes, gmesh)
			node.Mesh = gltf.Index(uint32(len(doc.Meshes) - 1))
			node.Skin = skin
		}
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)))
		doc.Nodes = append(doc.Nodes, node)
	}

	return doc, nil
}

// exportSkeleton adds one node per bone, parented as in the file, and a skin
// whose inverse bind matrices are the inverses of the bone matrices.
func (f *File) exportSkeleton(doc *gltf.Document) (uint32, error) {
	first := uint32(len(doc.Nodes))
	joints := make([]uint32, len(f.Bones))
	ibm := make([][4][4]float32, len(f.Bones))

	for i, b := range f.Bones {
		joints[i] = first + uint32(i)
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        b.Name,
			Translation: b.Position.Array(),
			Rotation:    [4]float32{0, 0, 0, 1},
			Scale:       [3]float32{1, 1, 1},
		})
		inv := b.Matrix.Inverse()
		for c := 0; c < 4; c++ {
			copy(ibm[i][c][:], inv[c*4:c*4+4])
		}
	}

	for i, b := range f.Bones {
		switch {
		case b.Parent < 0:
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, joints[i])
		case int(b.Parent) < len(f.Bones) && int(b.Parent) != i:
			parent := doc.Nodes[joints[b.Parent]]
			parent.Children = append(parent.Children, joints[i])
		default:
			return 0, fmt.Errorf("%w: bone %d has parent %d", ErrOutOfBounds, i, b.Parent)
		}
	}

	doc.Skins = append(doc.Skins, &gltf.Skin{
		Name:                "skeleton",
		Joints:              joints,
		InverseBindMatrices: gltf.Index(modeler.WriteAccessor(doc, gltf.TargetNone, ibm)),
	})
	return uint32(len(doc.Skins) - 1), nil
}

func (f *File) exportPrimitive(doc *gltf.Document, mesh *Mesh, skinned bool) (*gltf.Primitive, error) {
	n := len(mesh.Vertices)
	positions := make([][3]float32, n)
	normals := make([][3]float32, n)
	tangents := make([][4]float32, n)
	colors := make([][4]uint8, n)
	var uvs [3][][2]float32
	for i := range uvs {
		uvs[i] = make([][2]float32, n)
	}

	for i, v := range mesh.Vertices {
		positions[i] = v.Position.Array()
		normals[i] = v.Normal.Array()
		tangents[i] = tangentWithHandedness(v)
		colors[i] = packUnit(v.Color)
		for j := range uvs {
			uvs[j][i] = v.UV[j].Array()
		}
	}

	attrs := map[string]uint32{
		"POSITION": modeler.WritePosition(doc, positions),
	}
	if f.Flags.Has(FlagNormal) {
		attrs["NORMAL"] = modeler.WriteNormal(doc, normals)
	}
	if f.Flags.Has(FlagTangent) {
		attrs["TANGENT"] = modeler.WriteTangent(doc, tangents)
	}
	for j, flag := range []Flags{FlagUV, FlagUV2, FlagUV3} {
		if f.Flags.Has(flag) {
			attrs[fmt.Sprintf("TEXCOORD_%d", j)] = modeler.WriteTextureCoord(doc, uvs[j])
		}
	}
	if f.Flags.Has(FlagColor) {
		attrs["COLOR_0"] = modeler.WriteColor(doc, colors)
	}

	if skinned {
		groups := []struct {
			flag    Flags
			set     int
			ids     func(v *Vertex) [4]uint8
			weights func(v *Vertex) [4]float32
		}{
			{FlagWeights, 0, func(v *Vertex) [4]uint8 { return v.BoneIDs }, func(v *Vertex) [4]float32 { return v.BoneWeights }},
			{FlagWeights2, 1, func(v *Vertex) [4]uint8 { return v.BoneIDs2 }, func(v *Vertex) [4]float32 { return v.BoneWeights2 }},
		}
		for _, g := range groups {
			if !f.Flags.Has(g.flag) {
				continue
			}
			joints := make([][4]uint16, n)
			weights := make([][4]float32, n)
			for i := range mesh.Vertices {
				v := &mesh.Vertices[i]
				ids, ws := g.ids(v), g.weights(v)
				for k := 0; k < 4; k++ {
					if ws[k] == 0 {
						continue
					}
					bone, err := resolveBone(mesh.IndexTable, ids[k], len(f.Bones))
					if err != nil {
						return nil, err
					}
					joints[i][k] = bone
					weights[i][k] = ws[k]
				}
			}
			attrs[fmt.Sprintf("JOINTS_%d", g.set)] = modeler.WriteJoints(doc, joints)
			attrs[fmt.Sprintf("WEIGHTS_%d", g.set)] = modeler.WriteWeights(doc, weights)
		}
	}

	indices := make([]uint32, 0, 3*len(mesh.Triangles))
	for _, t := range mesh.Triangles {
		indices = append(indices, t[0], t[1], t[2])
	}

	return &gltf.Primitive{
		Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
		Attributes: attrs,
	}, nil
}

// tangentWithHandedness packs the tangent with w = -1 when the stored
// binormal points against normal x tangent.
func tangentWithHandedness(v Vertex) [4]float32 {
	w := float32(1)
	if v.Normal.Cross(v.Tangent).Dot(v.Binormal) < 0 {
		w = -1
	}
	return [4]float32{v.Tangent.X, v.Tangent.Y, v.Tangent.Z, w}
}

// resolveBone maps a vertex bone id through the mesh index table.
func resolveBone(table []uint32, id uint8, boneCount int) (uint16, error) {
	bone := uint32(id)
	if len(table) > 0 {
		if int(id) >= len(table) {
			return 0, fmt.Errorf("%w: bone id %d outside index table of %d", ErrOutOfBounds, id, len(table))
		}
		bone = table[id]
	}
	if int(bone) >= boneCount {
		return 0, fmt.Errorf("%w: bone %d of %d", ErrOutOfBounds, bone, boneCount)
	}
	return uint16(bone), nil
}

// WriteGLB writes doc as a binary glTF container.
func WriteGLB(w io.Writer, doc *gltf.Document) error {
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}
