package cats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/pzze"
)

type testEntry struct {
	name string
	data []byte
}

// buildArchive lays out a header, a 32-byte-stride entry table, the names
// and then the 16-byte aligned payloads.
func buildArchive(entries ...testEntry) []byte {
	var w binio.Writer
	w.Fixed([]byte(Magic), 4)
	w.U32(7)
	w.U32(uint32(len(entries)))
	w.U32(0)

	table := w.Len()
	w.Pad(32 * len(entries))

	nameOffs := make([]int, len(entries))
	for i, e := range entries {
		nameOffs[i] = w.Len()
		w.CString([]byte(e.name))
	}
	w.Align(16)

	for i, e := range entries {
		pos := table + 32*i
		w.PatchU64(pos, uint64(nameOffs[i]))
		w.PatchU64(pos+8, uint64(w.AppendSection(e.data, 16)))
		w.PatchU64(pos+16, uint64(len(e.data)))
	}
	return w.Bytes()
}

func testArchive() []byte {
	inner := buildArchive(
		testEntry{"body.tmd2", []byte("model")},
		testEntry{"body.lds", []byte("textures")},
	)
	return buildArchive(
		testEntry{"readme.txt", []byte("hello")},
		testEntry{"chr", inner},
		testEntry{"Empty.bin", nil},
	)
}

func TestParse(t *testing.T) {
	a, err := Parse(testArchive())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Unk != 7 {
		t.Errorf("Unk = %d", a.Unk)
	}

	wantList := []string{"readme.txt", "chr", "chr/body.tmd2", "chr/body.lds", "Empty.bin"}
	if got := a.List(); !slices.Equal(got, wantList) {
		t.Errorf("List = %v, want %v", got, wantList)
	}
	wantFiles := []string{"Empty.bin", "chr/body.lds", "chr/body.tmd2", "readme.txt"}
	if got := a.Files(); !slices.Equal(got, wantFiles) {
		t.Errorf("Files = %v, want %v", got, wantFiles)
	}

	tests := []struct {
		path string
		want []byte
	}{
		{"readme.txt", []byte("hello")},
		{"chr/body.tmd2", []byte("model")},
		{`CHR\Body.LDS`, []byte("textures")},
		{"empty.bin", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if !a.Contains(tt.path) {
				t.Fatal("Contains = false")
			}
			got, err := a.Read(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Read = %q, want %q", got, tt.want)
			}
		})
	}

	e, err := a.Entry("chr")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Nested || !IsArchive(e.Data()) {
		t.Error("chr should be a nested archive")
	}
	if inner, _ := a.Entry("chr/body.tmd2"); inner.Depth != 1 {
		t.Errorf("Depth = %d, want 1", inner.Depth)
	}
}

func TestReadMissing(t *testing.T) {
	a, err := Parse(testArchive())
	if err != nil {
		t.Fatal(err)
	}
	if a.Contains("nonexistent/file.txt") {
		t.Error("Contains returned true for missing entry")
	}
	if _, err := a.Read("chr/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	a, err := Parse(testArchive())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := a.Read("readme.txt")
	b[0] = 'J'
	again, _ := a.Read("readme.txt")
	if string(again) != "hello" {
		t.Errorf("archive data modified through Read: %q", again)
	}
}

func TestParseErrors(t *testing.T) {
	good := testArchive()
	patched := func(pos int, v uint64) []byte {
		b := bytes.Clone(good)
		binary.LittleEndian.PutUint64(b[pos:], v)
		return b
	}

	badInner := buildArchive(testEntry{"x", []byte("CATS broken")})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"bad magic", append([]byte("CATZ"), good[4:]...), ErrInvalidMagic},
		{"truncated header", good[:10], ErrOutOfBounds},
		{"data offset past end", patched(16+8, uint64(len(good)+1)), ErrOutOfBounds},
		{"size past end", patched(16+16, uint64(len(good))), ErrOutOfBounds},
		{"name offset past end", patched(16, uint64(len(good)+100)), ErrOutOfBounds},
		{"broken nested archive", badInner, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.data)
			if a != nil {
				t.Error("expected nil archive")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWalkStops(t *testing.T) {
	a, err := Parse(testArchive())
	if err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	var seen []string
	err = a.Walk(func(e *Entry) error {
		seen = append(seen, e.Path)
		if e.Nested {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Walk error = %v", err)
	}
	if !slices.Equal(seen, []string{"readme.txt", "chr"}) {
		t.Errorf("visited %v", seen)
	}
}

func TestOpenAndExtract(t *testing.T) {
	dir := t.TempDir()
	packed, err := pzze.Compress(testArchive(), "cats")
	if err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(dir, "bg000.cat")
	if err := os.WriteFile(archivePath, packed, 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Open(archivePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	out := filepath.Join(dir, "out")
	n, err := a.Extract(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("extracted %d files, want 4", n)
	}
	got, err := os.ReadFile(filepath.Join(out, "chr", "body.lds"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "textures" {
		t.Errorf("extracted %q", got)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	a, err := Parse(buildArchive(testEntry{"../escape.txt", []byte("x")}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Extract(t.TempDir()); err == nil {
		t.Error("expected error for path outside the target directory")
	}
}
