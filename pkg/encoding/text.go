// Package encoding provides legacy text encoding utilities for model name
// tables and archive entry names.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultName is the encoding used by name tables when none is configured.
const DefaultName = "cp932"

// ErrUnknownEncoding is returned by Lookup for an unrecognised label.
var ErrUnknownEncoding = errors.New("unknown text encoding")

// aliases covers code-page style names that the WHATWG index does not know.
var aliases = map[string]xenc.Encoding{
	"cp932":  japanese.ShiftJIS,
	"sjis":   japanese.ShiftJIS,
	"cp949":  korean.EUCKR,
	"euckr":  korean.EUCKR,
	"utf8":   unicode.UTF8,
	"binary": xenc.Nop,
}

// Text converts between UTF-8 strings and one legacy encoding.
type Text struct {
	name string
	enc  xenc.Encoding
}

// Lookup resolves an encoding label such as "cp932", "shift_jis" or "euc-kr".
// An empty label selects DefaultName.
func Lookup(name string) (*Text, error) {
	if name == "" {
		name = DefaultName
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if enc, ok := aliases[key]; ok {
		return &Text{name: key, enc: enc}, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return &Text{name: key, enc: enc}, nil
}

// MustLookup is like Lookup but panics on an unknown label.
func MustLookup(name string) *Text {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the default name-table encoding.
func Default() *Text {
	return MustLookup(DefaultName)
}

// Name returns the label the encoding was looked up with.
func (t *Text) Name() string {
	return t.name
}

// Decode converts encoded bytes to a UTF-8 string.
// Returns the input as-is if conversion fails.
func (t *Text) Decode(data []byte) string {
	result, _, err := transform.Bytes(t.enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// Encode converts a UTF-8 string to the legacy encoding. Characters the
// encoding cannot represent produce an error.
func (t *Text) Encode(s string) ([]byte, error) {
	result, _, err := transform.Bytes(t.enc.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding %q as %s: %w", s, t.name, err)
	}
	return result, nil
}

// DecodeFixed decodes a fixed-size field up to its first null byte.
func (t *Text) DecodeFixed(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return t.Decode(data)
}

// NormalizePath normalizes an archive path for case-insensitive lookup.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "/")
	return strings.ToLower(path)
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// TrimNullString removes trailing null bytes and converts to string.
func TrimNullString(data []byte) string {
	return string(TrimNullBytes(data))
}
