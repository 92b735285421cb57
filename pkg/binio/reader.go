// Package binio provides positioned little-endian readers and writers over
// in-memory byte buffers.
//
// Reader keeps the first failure and turns every later read into a no-op
// returning zero values, so a decoder can read a whole record and check Err
// once at the end of it.
package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned (wrapped in a *RangeError) when a read, seek or
// sub-range falls outside the buffer.
var ErrOutOfBounds = errors.New("out of bounds")

// RangeError describes an access that does not fit into the buffer.
type RangeError struct {
	Op   string
	Pos  int
	Size int
	Len  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %d bytes at 0x%x exceed buffer of 0x%x bytes: %v", e.Op, e.Size, e.Pos, e.Len, ErrOutOfBounds)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfBounds
}

// Reader reads little-endian values from a byte slice.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Pos returns the current absolute position.
func (r *Reader) Pos() int {
	return r.pos
}

// Len returns the total buffer length.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Remaining returns the number of bytes after the current position.
func (r *Reader) Remaining() int {
	if r.pos >= len(r.buf) {
		return 0
	}
	return len(r.buf) - r.pos
}

func (r *Reader) fail(op string, pos, size int) {
	if r.err == nil {
		r.err = &RangeError{Op: op, Pos: pos, Size: size, Len: len(r.buf)}
	}
}

// Seek moves to an absolute offset. Seeking to the very end is allowed.
func (r *Reader) Seek(off int) error {
	if r.err != nil {
		return r.err
	}
	if off < 0 || off > len(r.buf) {
		r.fail("seek", off, 0)
		return r.err
	}
	r.pos = off
	return nil
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	return r.Seek(r.pos + n)
}

// Align advances the position to the next multiple of n.
func (r *Reader) Align(n int) error {
	if n <= 1 {
		return r.err
	}
	return r.Seek(AlignUp(r.pos, n))
}

func (r *Reader) read(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail(op, r.pos, n)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// U8 reads an unsigned byte.
func (r *Reader) U8() uint8 {
	b := r.read("u8", 1)
	if b == nil {
		return 0
	}
	return b[0]
}

// I8 reads a signed byte.
func (r *Reader) I8() int8 {
	return int8(r.U8())
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.read("u16", 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// I16 reads a little-endian int16.
func (r *Reader) I16() int16 {
	return int16(r.U16())
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.read("u32", 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// I32 reads a little-endian int32.
func (r *Reader) I32() int32 {
	return int32(r.U32())
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() uint64 {
	b := r.read("u64", 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// F32 reads a little-endian IEEE 754 float.
func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

// F32s fills dst with consecutive floats.
func (r *Reader) F32s(dst []float32) {
	b := r.read("f32s", 4*len(dst))
	if b == nil {
		return
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
}

// Bytes returns the next n bytes. The result aliases the underlying buffer.
func (r *Reader) Bytes(n int) []byte {
	return r.read("bytes", n)
}

// Fixed reads an n-byte field and returns it up to the first zero byte.
func (r *Reader) Fixed(n int) []byte {
	b := r.read("fixed", n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// CStringAt returns the zero-terminated byte string starting at the absolute
// offset off without moving the cursor. A string running to the end of the
// buffer is returned as is.
func (r *Reader) CStringAt(off int) ([]byte, error) {
	if off < 0 || off >= len(r.buf) {
		return nil, &RangeError{Op: "cstring", Pos: off, Size: 1, Len: len(r.buf)}
	}
	b := r.buf[off:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i], nil
	}
	return b, nil
}

// Slice returns the n bytes at absolute offset off as an independent copy.
func (r *Reader) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		return nil, &RangeError{Op: "slice", Pos: off, Size: n, Len: len(r.buf)}
	}
	out := make([]byte, n)
	copy(out, r.buf[off:off+n])
	return out, nil
}

// Sub returns a reader over the n bytes at absolute offset off.
func (r *Reader) Sub(off, n int) (*Reader, error) {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		return nil, &RangeError{Op: "sub", Pos: off, Size: n, Len: len(r.buf)}
	}
	return NewReader(r.buf[off : off+n]), nil
}

// Need reports whether n more bytes are available, recording an error if not.
// It is used before allocating count-sized slices from untrusted headers.
func (r *Reader) Need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail("need", r.pos, n)
		return false
	}
	return true
}

// AlignUp rounds v up to a multiple of n.
func AlignUp(v, n int) int {
	if n <= 1 {
		return v
	}
	return (v + n - 1) / n * n
}
