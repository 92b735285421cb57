// Package cat reads CAT containers. A CAT holds a table of groups; each group
// is a small sub-archive of blobs, and a group of type 0 with a header longer
// than 16 bytes holds further CATs instead of blobs. When bit 1 of a CAT's
// flags is set its groups carry per-item name tables.
package cat

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
	FlagNamed Flags = 1 << 1 // groups and items carry name offsets

	maxDepth = 16
)

var (
	ErrNotFound    = errors.New("cat: entry not found")
	ErrOutOfBounds = binio.ErrOutOfBounds
	ErrTooDeep     = errors.New("cat: containers nested too deeply")
)

// Flags is the CAT header flag word.
type Flags uint32

// Kind classifies an entry.
type Kind uint8

const (
	KindFile    Kind = iota // leaf blob
	KindGroup               // a group of the enclosing CAT
	KindArchive             // a CAT nested inside a group
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindGroup:
		return "group"
	case KindArchive:
		return "cat"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Archive is a parsed CAT with all of its groups and nested containers
// flattened into one entry list. Entry data aliases the parsed buffer.
type Archive struct {
	Flags Flags
	Type  uint32

	entries []*Entry
	index   map[string]*Entry
}

// Entry is a group, a nested CAT or a blob.
type Entry struct {
	Path   string
	Kind   Kind
	Type   uint32 // group type from the CAT table, or the group's own type word
	Offset uint32 // start within the directly enclosing container
	Size   uint32
	Depth  int

	data []byte
}

// Data returns the entry's raw bytes.
func (e *Entry) Data() []byte {
	return e.data
}

// Parse reads a CAT and everything nested inside it.
func Parse(data []byte) (*Archive, error) {
	a := &Archive{index: make(map[string]*Entry)}
	flags, typ, err := a.parseCat(data, "", 0)
	if err != nil {
		return nil, err
	}
	a.Flags, a.Type = flags, typ
	return a, nil
}

// Open reads a CAT from disk, decompressing it first when it is PZZE-wrapped.
func Open(name string) (*Archive, error) {
	c, err := pzze.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	a, err := Parse(c.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

func (a *Archive) add(e *Entry) {
	a.entries = append(a.entries, e)
	a.index[encoding.NormalizePath(e.Path)] = e
}

// readTable reads count u32 values.
func readTable(r *binio.Reader, count uint32) []uint32 {
	if !r.Need(int(count) * 4) {
		return nil
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = r.U32()
	}
	return out
}

func blobRange(data []byte, off, size uint32) ([]byte, error) {
	if uint64(off)+uint64(size) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: 0x%x+0x%x in 0x%x bytes", ErrOutOfBounds, off, size, len(data))
	}
	end := off + size
	return data[off:end:end], nil
}

func readName(r *binio.Reader, off uint32) (string, error) {
	raw, err := r.CStringAt(int(off))
	if err != nil {
		return "", err
	}
	return encoding.Default().Decode(raw), nil
}

func (a *Archive) parseCat(data []byte, prefix string, depth int) (Flags, uint32, error) {
	if depth > maxDepth {
		return 0, 0, fmt.Errorf("%w: %s", ErrTooDeep, prefix)
	}

	r := binio.NewReader(data)
	flags := Flags(r.U32())
	count := r.U32()
	typ := r.U32()
	offsets := readTable(r, count)
	sizes := readTable(r, count)
	types := readTable(r, count)
	readTable(r, count) // per-group item counts, repeated in each group header
	var names []uint32
	if flags&FlagNamed != 0 {
		names = readTable(r, count)
	}
	if err := r.Err(); err != nil {
		return 0, 0, fmt.Errorf("reading header: %w", err)
	}

	for i := range offsets {
		g, err := blobRange(data, offsets[i], sizes[i])
		if err != nil {
			return 0, 0, fmt.Errorf("group %d: %w", i, err)
		}
		seg := fmt.Sprintf("%03d", i)
		if names != nil {
			if seg, err = readName(r, names[i]); err != nil {
				return 0, 0, fmt.Errorf("group %d name: %w", i, err)
			}
		}
		e := &Entry{
			Path:   path.Join(prefix, seg),
			Kind:   KindGroup,
			Type:   types[i],
			Offset: offsets[i],
			Size:   sizes[i],
			Depth:  depth,
			data:   g,
		}
		a.add(e)
		if err := a.parseGroup(g, flags, e.Path, depth); err != nil {
			return 0, 0, fmt.Errorf("group %s: %w", e.Path, err)
		}
	}
	return flags, typ, nil
}

// parseGroup reads a group. Item names are present when the enclosing CAT is
// named; their offsets are relative to the group.
func (a *Archive) parseGroup(data []byte, parent Flags, prefix string, depth int) error {
	r := binio.NewReader(data)
	r.U32() // flags
	count := r.U32()
	typ := r.U32()
	headerSize := r.U64()
	offsets := readTable(r, count)
	sizes := readTable(r, count)
	var names []uint32
	if parent&FlagNamed != 0 {
		names = readTable(r, count)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	nested := typ == 0 && headerSize > 16
	for i := range offsets {
		b, err := blobRange(data, offsets[i], sizes[i])
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		var seg string
		if names != nil {
			if seg, err = readName(r, names[i]); err != nil {
				return fmt.Errorf("item %d name: %w", i, err)
			}
		} else {
			seg = fmt.Sprintf("%03d%s", i, sniffExt(b, nested))
		}

		e := &Entry{
			Path:   path.Join(prefix, seg),
			Kind:   KindFile,
			Type:   typ,
			Offset: offsets[i],
			Size:   sizes[i],
			Depth:  depth,
			data:   b,
		}
		if nested {
			e.Kind = KindArchive
		}
		a.add(e)
		if nested {
			if _, _, err := a.parseCat(b, e.Path, depth+1); err != nil {
				return fmt.Errorf("nested container %s: %w", e.Path, err)
			}
		}
	}
	return nil
}

// sniffExt picks a file extension for an unnamed item from its magic.
func sniffExt(b []byte, nested bool) string {
	if nested {
		return ""
	}
	if len(b) < 4 {
		return ".bin"
	}
	switch string(b[:4]) {
	case "tmd0":
		return ".tmd"
	case pzze.Magic:
		return ".pzz"
	case "CATS":
		return ".cats"
	case "DDS ":
		return ".dds"
	}
	return ".bin"
}

// List returns every entry path in table order, containers followed by their
// contents.
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
		if e.Kind == KindFile {
			result = append(result, e.Path)
		}
	}
	sort.Strings(result)
	return result
}

// Entry returns the entry at name. Lookups ignore case and accept backslash
// separators.
func (a *Archive) Entry(name string) (*Entry, error) {
	e, ok := a.index[encoding.NormalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Read returns a copy of an entry's bytes.
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

// Extract writes every leaf below dir, with groups and nested containers as
// directories.
func (a *Archive) Extract(dir string) (int, error) {
	n := 0
	err := a.Walk(func(e *Entry) error {
		if e.Kind != KindFile {
			return nil
		}
		if !fs.ValidPath(e.Path) {
			return fmt.Errorf("cat: unsafe entry path %q", e.Path)
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
