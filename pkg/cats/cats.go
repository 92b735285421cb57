// Package cats reads CATS archives: a flat table of named blobs, any of which
// may itself be a CATS archive. Nested entries are addressed as "outer/inner".
package cats

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/encoding"
	"github.com/Faultbox/tmdkit/pkg/pzze"
)

const (
	Magic      = "CATS"
	headerSize = 16
	entryAlign = 16
	maxDepth   = 16
)

var (
	ErrInvalidMagic = errors.New("cats: invalid magic")
	ErrNotFound     = errors.New("cats: entry not found")
	ErrOutOfBounds  = binio.ErrOutOfBounds
	ErrTooDeep      = errors.New("cats: archives nested too deeply")
)

// Archive is a parsed CATS archive. Entry data aliases the parsed buffer.
type Archive struct {
	Unk uint32

	entries []*Entry
	index   map[string]*Entry
}

// Entry is one blob of an archive or of a nested archive.
type Entry struct {
	Path   string // slash-joined names from the outermost archive
	Offset uint64 // start within the directly enclosing archive
	Size   uint64
	Nested bool // payload is itself an archive
	Depth  int

	data []byte
}

// Data returns the entry's raw bytes.
func (e *Entry) Data() []byte {
	return e.data
}

// IsArchive reports whether buf starts with the CATS magic.
func IsArchive(buf []byte) bool {
	return len(buf) >= len(Magic) && string(buf[:len(Magic)]) == Magic
}

// Parse reads an archive and every archive nested inside it.
func Parse(data []byte) (*Archive, error) {
	a := &Archive{index: make(map[string]*Entry)}
	unk, err := a.parse(data, "", 0)
	if err != nil {
		return nil, err
	}
	a.Unk = unk
	return a, nil
}

// Open reads an archive from disk, decompressing it first when it is
// PZZE-wrapped.
func Open(name string) (*Archive, error) {
	c, err := pzze.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a, err := Parse(c.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

func (a *Archive) parse(data []byte, prefix string, depth int) (uint32, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: %s", ErrTooDeep, prefix)
	}
	if !IsArchive(data) {
		return 0, ErrInvalidMagic
	}

	r := binio.NewReader(data)
	r.Skip(len(Magic))
	unk := r.U32()
	count := r.U32()
	tableOff := r.U32()
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	if err := r.Seek(headerSize + int(tableOff)); err != nil {
		return 0, fmt.Errorf("entry table: %w", err)
	}

	text := encoding.Default()
	for i := uint32(0); i < count; i++ {
		nameOff, dataOff, size := r.U64(), r.U64(), r.U64()
		if err := r.Err(); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		r.Align(entryAlign)

		if nameOff > uint64(len(data)) || dataOff > uint64(len(data)) || size > uint64(len(data))-dataOff {
			return 0, fmt.Errorf("%w: entry %d name 0x%x data 0x%x+0x%x in 0x%x bytes", ErrOutOfBounds, i, nameOff, dataOff, size, len(data))
		}
		raw, err := r.CStringAt(int(nameOff))
		if err != nil {
			return 0, fmt.Errorf("entry %d name: %w", i, err)
		}

		e := &Entry{
			Path:   path.Join(prefix, text.Decode(raw)),
			Offset: dataOff,
			Size:   size,
			Depth:  depth,
			data:   data[dataOff : dataOff+size : dataOff+size],
		}
		e.Nested = IsArchive(e.data)
		a.entries = append(a.entries, e)
		a.index[encoding.NormalizePath(e.Path)] = e

		if e.Nested {
			if _, err := a.parse(e.data, e.Path, depth+1); err != nil {
				return 0, fmt.Errorf("nested archive %s: %w", e.Path, err)
			}
		}
	}
	return unk, nil
}

// List returns every entry path in table order, nested archives followed by
// their contents.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		result = append(result, e.Path)
	}
	return result
}

// Files returns the leaf entry paths sorted by name.
func (a *Archive) Files() []string {
	var result []string
	for _, e := range a.entries {
		if !e.Nested {
			result = append(result, e.Path)
		}
	}
	sort.Strings(result)
	return result
}

// Contains checks if an entry exists. Lookups ignore case and accept
// backslash separators.
func (a *Archive) Contains(name string) bool {
	_, ok := a.index[encoding.NormalizePath(name)]
	return ok
}

// Entry returns the entry at name.
func (a *Archive) Entry(name string) (*Entry, error) {
	e, ok := a.index[encoding.NormalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Read returns a copy of an entry's bytes. Reading a nested archive returns
// the archive itself.
func (a *Archive) Read(name string) ([]byte, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Walk calls fn for every entry in table order and stops at the first error.
func (a *Archive) Walk(fn func(e *Entry) error) error {
	for _, e := range a.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Extract writes every leaf entry below dir, recreating nested archives as
// directories.
func (a *Archive) Extract(dir string) (int, error) {
	n := 0
	err := a.Walk(func(e *Entry) error {
		if e.Nested {
			return nil
		}
		if !fs.ValidPath(e.Path) {
			return fmt.Errorf("cats: unsafe entry path %q", e.Path)
		}
		target := filepath.Join(dir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, e.data, 0o644); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
