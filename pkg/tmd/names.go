package tmd

import (
	"fmt"

	"github.com/Faultbox/tmdkit/pkg/binio"
	"github.com/Faultbox/tmdkit/pkg/encoding"
)

// Name offset sentinels.
const (
	noModelName = -1
	noBoneName  = 0xFFFF
)

// nameTable is the append-only string pool written after every other
// section. Identical names share one entry.
type nameTable struct {
	w       binio.Writer
	offsets map[string]int
	text    *encoding.Text
}

func newNameTable(text *encoding.Text) *nameTable {
	return &nameTable{offsets: make(map[string]int), text: text}
}

// ref returns the table offset for name, or ok=false when the name is derived
// from the hash and nothing needs to be stored.
func (t *nameTable) ref(name string, hash uint32) (off int, ok bool, err error) {
	if name == "" || name == hashName(hash) {
		return 0, false, nil
	}
	if off, found := t.offsets[name]; found {
		return off, true, nil
	}
	b, err := t.text.Encode(name)
	if err != nil {
		return 0, false, err
	}
	off = t.w.Len()
	t.w.CString(b)
	t.offsets[name] = off
	return off, true, nil
}

// modelRef returns the i32 name field of a model record.
func (t *nameTable) modelRef(name string, hash uint32) (int32, error) {
	off, ok, err := t.ref(name, hash)
	if err != nil || !ok {
		return noModelName, err
	}
	return int32(off), nil
}

// boneRef returns the u16 name field of a bone record.
func (t *nameTable) boneRef(name string, hash uint32) (uint16, error) {
	off, ok, err := t.ref(name, hash)
	if err != nil || !ok {
		return noBoneName, err
	}
	if off >= noBoneName {
		return 0, fmt.Errorf("%w: bone name %q at table offset %d exceeds 16 bits", ErrOutOfBounds, name, off)
	}
	return uint16(off), nil
}

func (t *nameTable) bytes() []byte {
	return t.w.Bytes()
}

// lookupName resolves a name table reference. A table offset of zero in the
// header means the file has no table.
func lookupName(r *binio.Reader, text *encoding.Text, tableOff uint64, off int64, hash uint32) (string, error) {
	if tableOff == 0 {
		return hashName(hash), nil
	}
	b, err := r.CStringAt(int(tableOff) + int(off))
	if err != nil {
		return "", err
	}
	return text.Decode(b), nil
}
