package lds

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMarshalParse(t *testing.T) {
	tests := []struct {
		name     string
		textures [][]byte
	}{
		{"empty", nil},
		{"single", [][]byte{[]byte("DDS one")}},
		{"several", [][]byte{[]byte("DDS a"), {}, []byte("DDS ccc")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Package{Unk: 3, Textures: tt.textures}
			data := p.Marshal()

			if got := binary.LittleEndian.Uint32(data[8:]); got != uint32(len(data)) {
				t.Errorf("size field = %d, want %d", got, len(data))
			}

			got, err := Parse(data)
			if err != nil {
				t.Fatal(err)
			}
			if got.Unk != 3 || len(got.Textures) != len(tt.textures) {
				t.Fatalf("got unk=%d textures=%d", got.Unk, len(got.Textures))
			}
			for i := range tt.textures {
				if !bytes.Equal(got.Textures[i], tt.textures[i]) {
					t.Errorf("texture %d = %q, want %q", i, got.Textures[i], tt.textures[i])
				}
			}
		})
	}
}

func TestParseHandBuilt(t *testing.T) {
	// two blobs of 3 and 2 bytes after a two-entry offset table
	data := []byte{
		1, 0, 0, 0,
		2, 0, 0, 0,
		25, 0, 0, 0,
		0, 0, 0, 0,
		3, 0, 0, 0,
		'a', 'b', 'c', 'd', 'e',
	}
	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Textures[0]) != "abc" || string(p.Textures[1]) != "de" {
		t.Errorf("textures = %q", p.Textures)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 0, 0}},
		{"offset table past end", []byte{0, 0, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0}},
		{"offset past end", []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 50, 0, 0, 0}},
		{"decreasing offsets", []byte{0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 'x', 'y'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	p := &Package{Textures: [][]byte{[]byte("first"), []byte("second")}}
	src := filepath.Join(dir, "pack.lds")
	if err := os.WriteFile(src, p.Marshal(), 0o644); err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseFile(src)
	if err != nil {
		t.Fatal(err)
	}
	paths, err := parsed.Extract(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[1]) != "texture_1.dds" {
		t.Fatalf("paths = %v", paths)
	}
	got, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("texture_1.dds = %q", got)
	}
}
