package binio

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderTypedReads(t *testing.T) {
	w := NewWriter()
	w.U8(0xAB)
	w.I8(-2)
	w.U16(0x1234)
	w.I16(-1)
	w.U32(0xDEADBEEF)
	w.I32(-5)
	w.U64(0x0102030405060708)
	w.F32(1.5)
	w.F32s(2, 3)

	r := NewReader(w.Bytes())
	if got := r.U8(); got != 0xAB {
		t.Errorf("U8 = %#x", got)
	}
	if got := r.I8(); got != -2 {
		t.Errorf("I8 = %d", got)
	}
	if got := r.U16(); got != 0x1234 {
		t.Errorf("U16 = %#x", got)
	}
	if got := r.I16(); got != -1 {
		t.Errorf("I16 = %d", got)
	}
	if got := r.U32(); got != 0xDEADBEEF {
		t.Errorf("U32 = %#x", got)
	}
	if got := r.I32(); got != -5 {
		t.Errorf("I32 = %d", got)
	}
	if got := r.U64(); got != 0x0102030405060708 {
		t.Errorf("U64 = %#x", got)
	}
	if got := r.F32(); got != 1.5 {
		t.Errorf("F32 = %v", got)
	}
	fs := make([]float32, 2)
	r.F32s(fs)
	if fs[0] != 2 || fs[1] != 3 {
		t.Errorf("F32s = %v", fs)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_ = r.U16()
	_ = r.U32() // fails
	if got := r.U8(); got != 0 {
		t.Errorf("read after failure returned %d, want 0", got)
	}
	err := r.Err()
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RangeError, got %T", err)
	}
	if re.Pos != 2 || re.Size != 4 || re.Len != 3 {
		t.Errorf("RangeError = %+v", re)
	}
}

func TestReaderSeekAndAlign(t *testing.T) {
	r := NewReader(make([]byte, 32))

	tests := []struct {
		name    string
		op      func() error
		wantPos int
		wantErr bool
	}{
		{"seek", func() error { return r.Seek(5) }, 5, false},
		{"align", func() error { return r.Align(16) }, 16, false},
		{"align noop", func() error { return r.Align(16) }, 16, false},
		{"skip", func() error { return r.Skip(16) }, 32, false},
		{"seek past end", func() error { return r.Seek(33) }, 32, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if r.Pos() != tt.wantPos {
				t.Errorf("Pos = %d, want %d", r.Pos(), tt.wantPos)
			}
		})
	}
}

func TestReaderStrings(t *testing.T) {
	buf := []byte("abc\x00de\x00\x00\x00fgh")
	r := NewReader(buf)

	if got := r.Fixed(6); string(got) != "abc" {
		t.Errorf("Fixed = %q", got)
	}
	s, err := r.CStringAt(4)
	if err != nil || string(s) != "de" {
		t.Errorf("CStringAt(4) = %q, %v", s, err)
	}
	s, err = r.CStringAt(9)
	if err != nil || string(s) != "fgh" {
		t.Errorf("CStringAt(9) = %q, %v", s, err)
	}
	if _, err := r.CStringAt(len(buf)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("CStringAt(len) err = %v", err)
	}
	if r.Pos() != 6 {
		t.Errorf("CStringAt moved the cursor to %d", r.Pos())
	}
}

func TestReaderSubAndSlice(t *testing.T) {
	r := NewReader([]byte{0, 1, 2, 3, 4, 5})

	sub, err := r.Sub(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 3 || sub.U8() != 2 {
		t.Errorf("unexpected sub reader contents")
	}

	b, err := r.Slice(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	b[0] = 99
	if r.buf[4] != 4 {
		t.Error("Slice result aliases the source buffer")
	}

	if _, err := r.Sub(4, 3); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Sub past end err = %v", err)
	}
	if _, err := r.Slice(-1, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Slice negative err = %v", err)
	}
}

func TestReaderNeed(t *testing.T) {
	r := NewReader(make([]byte, 8))
	if !r.Need(8) {
		t.Error("Need(8) = false on 8-byte buffer")
	}
	if r.Need(9) {
		t.Error("Need(9) = true on 8-byte buffer")
	}
	if !errors.Is(r.Err(), ErrOutOfBounds) {
		t.Errorf("Need did not record error: %v", r.Err())
	}
}

func TestWriterPatchAndAlign(t *testing.T) {
	w := NewWriter()
	w.Fixed([]byte("tmd0"), 4)
	p32 := w.Placeholder32()
	p64 := w.Placeholder64()
	w.Align(16)
	if w.Len() != 16 {
		t.Fatalf("Len after Align = %d, want 16", w.Len())
	}
	off := w.AppendSection([]byte{1, 2, 3}, 16)
	if off != 16 || w.Len() != 32 {
		t.Fatalf("AppendSection off=%d len=%d", off, w.Len())
	}
	w.PatchU32(p32, uint32(off))
	w.PatchU64(p64, 0x1122334455667788)

	r := NewReader(w.Bytes())
	if string(r.Fixed(4)) != "tmd0" {
		t.Error("magic mismatch")
	}
	if got := r.U32(); got != 16 {
		t.Errorf("patched u32 = %d", got)
	}
	if got := r.U64(); got != 0x1122334455667788 {
		t.Errorf("patched u64 = %#x", got)
	}
}

func TestWriterFixedAndCString(t *testing.T) {
	w := NewWriter()
	w.Fixed([]byte("abcdef"), 4)
	w.Fixed([]byte("x"), 3)
	w.CString([]byte("yz"))
	want := []byte("abcdx\x00\x00yz\x00")
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %q, want %q", w.Bytes(), want)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, n, want int
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{7, 1, 7},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.n); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.want)
		}
	}
}
