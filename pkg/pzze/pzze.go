// Package pzze reads and writes the PZZE compression wrapper: a 24-byte
// header naming the payload format, followed by a zlib stream.
package pzze

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

const (
	Magic      = "PZZE"
	HeaderSize = 24

	// DefaultFormat is the format tag of model files.
	DefaultFormat = "tmd2"
)

var (
	ErrInvalidMagic  = errors.New("pzze: invalid magic")
	ErrCorruptStream = errors.New("pzze: corrupt zlib stream")
	ErrSizeMismatch  = errors.New("pzze: decompressed size mismatch")
)

// Container is a decompressed PZZE file.
type Container struct {
	Format string // four-character payload tag, e.g. "tmd2"
	Data   []byte
}

// IsCompressed reports whether buf starts with the PZZE magic.
func IsCompressed(buf []byte) bool {
	return len(buf) >= len(Magic) && string(buf[:len(Magic)]) == Magic
}

// Decompress validates the header and inflates the payload.
func Decompress(buf []byte) (*Container, error) {
	if !IsCompressed(buf) {
		return nil, ErrInvalidMagic
	}
	r := binio.NewReader(buf)
	r.Skip(len(Magic))
	format := string(r.Fixed(4))
	size := r.U64()
	dataOffset := r.U64()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("pzze: reading header: %w", err)
	}
	if dataOffset > uint64(len(buf)) {
		return nil, fmt.Errorf("pzze: data offset 0x%x past end of 0x%x-byte buffer: %w", dataOffset, len(buf), binio.ErrOutOfBounds)
	}

	zr, err := zlib.NewReader(bytes.NewReader(buf[dataOffset:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	defer zr.Close()

	var out bytes.Buffer
	if size <= uint64(len(buf))*1024 {
		out.Grow(int(size))
	}
	// Read one byte past the declared size so an oversized stream is caught.
	if _, err := io.Copy(&out, io.LimitReader(zr, int64(size)+1)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	if uint64(out.Len()) != size {
		return nil, fmt.Errorf("%w: header says %d bytes, stream has %d", ErrSizeMismatch, size, out.Len())
	}

	return &Container{Format: format, Data: out.Bytes()}, nil
}

// Compress wraps payload with a PZZE header. An empty format selects
// DefaultFormat; longer tags are rejected.
func Compress(payload []byte, format string) ([]byte, error) {
	if format == "" {
		format = DefaultFormat
	}
	if len(format) > 4 {
		return nil, fmt.Errorf("pzze: format tag %q longer than 4 bytes", format)
	}

	w := binio.NewWriter()
	w.Fixed([]byte(Magic), 4)
	w.Fixed([]byte(format), 4)
	w.U64(uint64(len(payload)))
	w.U64(HeaderSize)

	zw := zlib.NewWriter(w)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("pzze: compressing: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pzze: compressing: %w", err)
	}
	return w.Bytes(), nil
}

// Open reads path and returns its contents, decompressed when the file is
// PZZE-wrapped. Raw files come back with an empty Format.
func Open(path string) (*Container, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !IsCompressed(buf) {
		return &Container{Data: buf}, nil
	}
	c, err := Decompress(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
