package binio

import (
	"encoding/binary"
	"math"
)

// Writer builds a little-endian buffer. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) I8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) I16(v int16) {
	w.U16(uint16(v))
}

func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// F32s writes every value in order.
func (w *Writer) F32s(vs ...float32) {
	for _, v := range vs {
		w.F32(v)
	}
}

// Fixed writes b into an n-byte field, truncating or zero padding it.
func (w *Writer) Fixed(b []byte, n int) {
	if len(b) > n {
		b = b[:n]
	}
	w.buf = append(w.buf, b...)
	w.Pad(n - len(b))
}

// CString writes b followed by a zero byte.
func (w *Writer) CString(b []byte) {
	w.buf = append(w.buf, b...)
	w.buf = append(w.buf, 0)
}

// Pad writes n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align pads with zeros up to the next multiple of n.
func (w *Writer) Align(n int) {
	w.Pad(AlignUp(len(w.buf), n) - len(w.buf))
}

// Placeholder32 writes a zero uint32 and returns its position for PatchU32.
func (w *Writer) Placeholder32() int {
	pos := len(w.buf)
	w.U32(0)
	return pos
}

// Placeholder64 writes a zero uint64 and returns its position for PatchU64.
func (w *Writer) Placeholder64() int {
	pos := len(w.buf)
	w.U64(0)
	return pos
}

// PatchU32 overwrites the uint32 at pos.
func (w *Writer) PatchU32(pos int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[pos:], v)
}

// PatchU64 overwrites the uint64 at pos.
func (w *Writer) PatchU64(pos int, v uint64) {
	binary.LittleEndian.PutUint64(w.buf[pos:], v)
}

// AppendSection writes b, pads to align and returns the offset b starts at.
func (w *Writer) AppendSection(b []byte, align int) int {
	off := len(w.buf)
	w.buf = append(w.buf, b...)
	w.Align(align)
	return off
}
