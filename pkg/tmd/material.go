package tmd

import (
	"fmt"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

const (
	textureRecordSize    = 12
	matTextureRecordSize = 12
	paramRecordSize      = 8
	materialRecordSize   = 20
)

func readTextures(r *binio.Reader, count int) ([]*Texture, error) {
	if !r.Need(count * textureRecordSize) {
		return nil, r.Err()
	}
	textures := make([]*Texture, count)
	for i := range textures {
		textures[i] = &Texture{
			Hash:   r.U32(),
			Index:  r.U16(),
			Width:  r.U16(),
			Height: r.U16(),
			Format: r.U16(),
		}
	}
	return textures, r.Err()
}

func readMatTextures(r *binio.Reader, count int, textures []*Texture) ([]*MatTexture, error) {
	if !r.Need(count * matTextureRecordSize) {
		return nil, r.Err()
	}
	out := make([]*MatTexture, count)
	for i := range out {
		mt := &MatTexture{Hash: r.U32()}
		idx := int(r.U16())
		mt.Unk1 = r.I16()
		mt.Unk2 = r.I16()
		mt.SlotLow = r.U8()
		mt.Slot = r.U8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if idx >= len(textures) {
			return nil, fmt.Errorf("%w: material texture %d references texture %d of %d", ErrOutOfBounds, i, idx, len(textures))
		}
		mt.Texture = textures[idx]
		out[i] = mt
	}
	return out, nil
}

func readParams(r *binio.Reader, count int) ([]float32, error) {
	if !r.Need(count * paramRecordSize) {
		return nil, r.Err()
	}
	params := make([]float32, count)
	for i := range params {
		r.Skip(4)
		params[i] = r.F32()
	}
	return params, r.Err()
}

func readMaterials(r *binio.Reader, count int, matTextures []*MatTexture, params []float32) ([]*Material, error) {
	if !r.Need(count * materialRecordSize) {
		return nil, r.Err()
	}
	materials := make([]*Material, count)
	for i := range materials {
		m := &Material{Hash: r.U32()}
		m.ShaderID = string(r.Fixed(4))
		texStart, texCount := int(r.U16()), int(r.U16())
		paramStart, paramCount := int(r.U16()), int(r.U16())
		m.Unk = r.I32()
		if err := r.Err(); err != nil {
			return nil, err
		}

		if texStart+texCount > len(matTextures) {
			return nil, fmt.Errorf("%w: material %d textures [%d:+%d] of %d", ErrOutOfBounds, i, texStart, texCount, len(matTextures))
		}
		if paramStart+paramCount > len(params) {
			return nil, fmt.Errorf("%w: material %d params [%d:+%d] of %d", ErrOutOfBounds, i, paramStart, paramCount, len(params))
		}
		m.Textures = append([]*MatTexture(nil), matTextures[texStart:texStart+texCount]...)
		m.Params = append([]float32(nil), params[paramStart:paramStart+paramCount]...)
		materials[i] = m
	}
	return materials, nil
}

// materialSections holds the serialised material-related sections.
type materialSections struct {
	materials   binio.Writer
	params      binio.Writer
	matTextures binio.Writer
	textures    binio.Writer

	materialCount, paramCount, matTextureCount, textureCount int

	materialIndex map[*Material]int
}

// buildMaterials serialises materials, their parameters and texture bindings,
// and the texture descriptors. Material texture and parameter ranges are laid
// out in material order.
func buildMaterials(f *File) (*materialSections, error) {
	s := &materialSections{materialIndex: make(map[*Material]int, len(f.Materials))}

	textureIndex := make(map[*Texture]int, len(f.Textures))
	for i, t := range f.Textures {
		if t == nil {
			return nil, fmt.Errorf("%w: texture %d is nil", ErrRoundTripInvariant, i)
		}
		textureIndex[t] = i
		s.textures.U32(t.Hash)
		s.textures.U16(t.Index)
		s.textures.U16(t.Width)
		s.textures.U16(t.Height)
		s.textures.U16(t.Format)
	}
	s.textureCount = len(f.Textures)
	if s.textureCount > 0xFFFF+1 {
		return nil, fmt.Errorf("%w: %d textures exceed 16-bit references", ErrOutOfBounds, s.textureCount)
	}

	for i, m := range f.Materials {
		if m == nil {
			return nil, fmt.Errorf("%w: material %d is nil", ErrRoundTripInvariant, i)
		}
		if _, dup := s.materialIndex[m]; !dup {
			s.materialIndex[m] = i
		}
		if len(m.ShaderID) > 4 {
			return nil, fmt.Errorf("%w: material %d shader id %q longer than 4 bytes", ErrRoundTripInvariant, i, m.ShaderID)
		}

		texStart, paramStart := s.matTextureCount, s.paramCount
		if texStart+len(m.Textures) > 0xFFFF || paramStart+len(m.Params) > 0xFFFF {
			return nil, fmt.Errorf("%w: material %d ranges exceed 16 bits", ErrOutOfBounds, i)
		}

		s.materials.U32(m.Hash)
		s.materials.Fixed([]byte(m.ShaderID), 4)
		s.materials.U16(uint16(texStart))
		s.materials.U16(uint16(len(m.Textures)))
		s.materials.U16(uint16(paramStart))
		s.materials.U16(uint16(len(m.Params)))
		s.materials.I32(m.Unk)

		for j, mt := range m.Textures {
			if mt == nil || mt.Texture == nil {
				return nil, fmt.Errorf("%w: material %d texture %d has no texture", ErrRoundTripInvariant, i, j)
			}
			idx, ok := textureIndex[mt.Texture]
			if !ok {
				return nil, fmt.Errorf("%w: material %d texture %d references a texture outside the file", ErrRoundTripInvariant, i, j)
			}
			hash := mt.Hash
			if hash == 0 {
				hash = mt.Texture.Hash
			}
			s.matTextures.U32(hash)
			s.matTextures.U16(uint16(idx))
			s.matTextures.I16(mt.Unk1)
			s.matTextures.I16(mt.Unk2)
			s.matTextures.U8(mt.SlotLow)
			s.matTextures.U8(mt.Slot)
		}
		s.matTextureCount += len(m.Textures)

		for _, p := range m.Params {
			s.params.Pad(4)
			s.params.F32(p)
		}
		s.paramCount += len(m.Params)
	}
	s.materialCount = len(f.Materials)
	return s, nil
}
