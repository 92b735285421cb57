package cat

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/pzze"
)

type testItem struct {
	name string
	data []byte
}

// buildGroup lays out a group header, its offset and size tables, the
// optional name table and the 16-byte aligned payloads.
func buildGroup(typ uint32, headerSize uint64, named bool, items ...testItem) []byte {
	var w binio.Writer
	w.U32(0)
	w.U32(uint32(len(items)))
	w.U32(typ)
	w.U64(headerSize)

	offs := w.Len()
	w.Pad(4 * len(items))
	sizes := w.Len()
	w.Pad(4 * len(items))
	names := w.Len()
	if named {
		w.Pad(4 * len(items))
	}

	for i, it := range items {
		if named {
			w.PatchU32(names+4*i, uint32(w.Len()))
			w.CString([]byte(it.name))
		}
	}
	w.Align(16)
	for i, it := range items {
		w.PatchU32(offs+4*i, uint32(w.AppendSection(it.data, 16)))
		w.PatchU32(sizes+4*i, uint32(len(it.data)))
	}
	return w.Bytes()
}

type testGroup struct {
	name  string
	typ   uint32
	count uint32
	data  []byte
}

func buildCat(flags Flags, typ uint32, groups ...testGroup) []byte {
	var w binio.Writer
	w.U32(uint32(flags))
	w.U32(uint32(len(groups)))
	w.U32(typ)

	n := len(groups)
	offs := w.Len()
	w.Pad(4 * n)
	sizes := w.Len()
	w.Pad(4 * n)
	types := w.Len()
	w.Pad(4 * n)
	counts := w.Len()
	w.Pad(4 * n)
	names := w.Len()
	if flags&FlagNamed != 0 {
		w.Pad(4 * n)
		for i, g := range groups {
			w.PatchU32(names+4*i, uint32(w.Len()))
			w.CString([]byte(g.name))
		}
	}
	w.Align(16)

	for i, g := range groups {
		w.PatchU32(offs+4*i, uint32(w.AppendSection(g.data, 16)))
		w.PatchU32(sizes+4*i, uint32(len(g.data)))
		w.PatchU32(types+4*i, g.typ)
		w.PatchU32(counts+4*i, g.count)
	}
	return w.Bytes()
}

func testCat() []byte {
	inner := buildCat(FlagNamed, 1, testGroup{
		name: "tex", typ: 2, count: 1,
		data: buildGroup(3, 20, true, testItem{"face.dds", []byte("DDS face")}),
	})
	return buildCat(FlagNamed, 0,
		testGroup{
			name: "model", typ: 1, count: 2,
			data: buildGroup(1, 20, true,
				testItem{"body.tmd2", []byte("PZZEbody")},
				testItem{"hair.tmd2", []byte("PZZEhair")},
			),
		},
		testGroup{
			name: "sub", typ: 0, count: 1,
			data: buildGroup(0, 24, true, testItem{"inner", inner}),
		},
	)
}

func TestParse(t *testing.T) {
	a, err := Parse(testCat())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Flags != FlagNamed || a.Type != 0 {
		t.Errorf("Flags/Type = %d/%d", a.Flags, a.Type)
	}

	wantList := []string{
		"model", "model/body.tmd2", "model/hair.tmd2",
		"sub", "sub/inner", "sub/inner/tex", "sub/inner/tex/face.dds",
	}
	if got := a.List(); !slices.Equal(got, wantList) {
		t.Errorf("List = %v, want %v", got, wantList)
	}
	wantFiles := []string{"model/body.tmd2", "model/hair.tmd2", "sub/inner/tex/face.dds"}
	if got := a.Files(); !slices.Equal(got, wantFiles) {
		t.Errorf("Files = %v, want %v", got, wantFiles)
	}

	tests := []struct {
		path  string
		kind  Kind
		typ   uint32
		depth int
		data  string
	}{
		{"model", KindGroup, 1, 0, ""},
		{"MODEL\\Hair.tmd2", KindFile, 1, 0, "PZZEhair"},
		{"sub/inner", KindArchive, 0, 0, ""},
		{"sub/inner/tex", KindGroup, 2, 1, ""},
		{"sub/inner/tex/face.dds", KindFile, 3, 1, "DDS face"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, err := a.Entry(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if e.Kind != tt.kind || e.Type != tt.typ || e.Depth != tt.depth {
				t.Errorf("kind/type/depth = %v/%d/%d, want %v/%d/%d", e.Kind, e.Type, e.Depth, tt.kind, tt.typ, tt.depth)
			}
			if tt.data != "" && string(e.Data()) != tt.data {
				t.Errorf("data = %q, want %q", e.Data(), tt.data)
			}
		})
	}
}

func TestParseUnnamed(t *testing.T) {
	data := buildCat(0, 0, testGroup{
		typ: 5, count: 3,
		data: buildGroup(5, 20, false,
			testItem{data: []byte("tmd0....")},
			testItem{data: []byte("DDS ....")},
			testItem{data: []byte("xy")},
		),
	})
	a, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"000", "000/000.tmd", "000/001.dds", "000/002.bin"}
	if got := a.List(); !slices.Equal(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
}

// A type-0 group with a 16-byte header holds blobs, not containers.
func TestShortHeaderGroupIsLeaf(t *testing.T) {
	data := buildCat(FlagNamed, 0, testGroup{
		name: "g", count: 1,
		data: buildGroup(0, 16, true, testItem{"x.bin", []byte("not a cat")}),
	})
	a, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	e, err := a.Entry("g/x.bin")
	if err != nil {
		t.Fatal(err)
	}
	if e.Kind != KindFile {
		t.Errorf("Kind = %v, want file", e.Kind)
	}
}

func TestReadCopies(t *testing.T) {
	a, err := Parse(testCat())
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Read("model/body.tmd2")
	if err != nil {
		t.Fatal(err)
	}
	b[0] = 'X'
	e, _ := a.Entry("model/body.tmd2")
	if e.Data()[0] != 'P' {
		t.Error("Read returned aliased bytes")
	}
	if _, err := a.Read("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing entry error = %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	good := testCat()

	tests := []struct {
		name    string
		data    func() []byte
		wantErr error
	}{
		{"empty", func() []byte { return nil }, ErrOutOfBounds},
		{"huge count", func() []byte {
			b := bytes.Clone(good)
			b[4], b[5], b[6], b[7] = 0xFF, 0xFF, 0xFF, 0x0F
			return b
		}, ErrOutOfBounds},
		{"group past end", func() []byte {
			b := bytes.Clone(good)
			// size of group 0
			b[12+4*2], b[12+4*2+1] = 0xFF, 0xFF
			return b
		}, ErrOutOfBounds},
		{"truncated", func() []byte { return good[:len(good)-20] }, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data()); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTooDeep(t *testing.T) {
	data := buildCat(0, 0, testGroup{data: buildGroup(9, 20, false, testItem{data: []byte("leaf")})})
	for i := 0; i < maxDepth+1; i++ {
		data = buildCat(0, 0, testGroup{data: buildGroup(0, 20, false, testItem{data: data})})
	}
	if _, err := Parse(data); !errors.Is(err, ErrTooDeep) {
		t.Errorf("error = %v, want ErrTooDeep", err)
	}
}

func TestOpenExtract(t *testing.T) {
	dir := t.TempDir()
	packed, err := pzze.Compress(testCat(), "cat")
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "pl00.cat")
	if err := os.WriteFile(src, packed, 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Open(src)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out := filepath.Join(dir, "out")
	n, err := a.Extract(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("extracted %d files, want 3", n)
	}
	got, err := os.ReadFile(filepath.Join(out, "sub", "inner", "tex", "face.dds"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "DDS face" {
		t.Errorf("face.dds = %q", got)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	data := buildCat(FlagNamed, 0, testGroup{
		name: "g", count: 1,
		data: buildGroup(1, 20, true, testItem{"../../escape", []byte("x")}),
	})
	a, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Extract(t.TempDir()); err == nil {
		t.Error("expected unsafe path error")
	}
}
