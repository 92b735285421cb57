// Package lds reads and writes LDS texture packages: a count-prefixed offset
// table followed by raw texture blobs (DDS files in practice). Pixel data is
// not interpreted.
package lds

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

// ErrOutOfBounds reports an offset table entry outside the buffer.
var ErrOutOfBounds = binio.ErrOutOfBounds

// Package is a parsed texture package.
type Package struct {
	Unk      uint32
	Textures [][]byte
}

// Parse reads a package. Blob i runs from offset i to offset i+1; the last
// blob runs to the end of the buffer. Offsets are relative to the end of the
// offset table.
func Parse(data []byte) (*Package, error) {
	r := binio.NewReader(data)
	p := &Package{Unk: r.U32()}
	count := int(r.U32())
	r.U32() // total size, not needed for reading
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("lds: reading header: %w", err)
	}
	if !r.Need(4 * count) {
		return nil, fmt.Errorf("lds: %d offsets: %w", count, r.Err())
	}

	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = int(r.U32())
	}
	base := r.Pos()

	p.Textures = make([][]byte, count)
	for i, off := range offsets {
		end := len(data) - base
		if i+1 < count {
			end = offsets[i+1]
		}
		if end < off {
			return nil, fmt.Errorf("lds: texture %d spans 0x%x..0x%x: %w", i, off, end, ErrOutOfBounds)
		}
		blob, err := r.Slice(base+off, end-off)
		if err != nil {
			return nil, fmt.Errorf("lds: texture %d: %w", i, err)
		}
		p.Textures[i] = blob
	}
	return p, nil
}

// ParseFile reads a package from disk.
func ParseFile(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal writes the package. Each offset is the start of its blob and the
// size field holds the total length of the output.
func (p *Package) Marshal() []byte {
	w := binio.NewWriter()
	w.U32(p.Unk)
	w.U32(uint32(len(p.Textures)))
	sizePos := w.Placeholder32()

	off := 0
	for _, t := range p.Textures {
		w.U32(uint32(off))
		off += len(t)
	}
	for _, t := range p.Textures {
		w.Write(t)
	}
	w.PatchU32(sizePos, uint32(w.Len()))
	return w.Bytes()
}

// TextureName is the file name a blob is extracted to.
func TextureName(i int) string {
	return fmt.Sprintf("texture_%d.dds", i)
}

// Extract writes every blob into dir and returns the written paths.
func (p *Package) Extract(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(p.Textures))
	for i, t := range p.Textures {
		target := filepath.Join(dir, TextureName(i))
		if err := os.WriteFile(target, t, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, target)
	}
	return paths, nil
}
