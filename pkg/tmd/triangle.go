package tmd

import (
	"fmt"

	"github.com/Faultbox/tmdkit/pkg/binio"
)

func indexSize(wide bool) int {
	if wide {
		return 4
	}
	return 2
}

func readTriangles(r *binio.Reader, wide bool, count int) ([][3]uint32, error) {
	if !r.Need(count * 3 * indexSize(wide)) {
		return nil, r.Err()
	}
	tris := make([][3]uint32, count)
	for i := range tris {
		for j := 0; j < 3; j++ {
			if wide {
				tris[i][j] = r.U32()
			} else {
				tris[i][j] = uint32(r.U16())
			}
		}
	}
	return tris, r.Err()
}

func writeTriangles(w *binio.Writer, wide bool, tris [][3]uint32) error {
	for i, t := range tris {
		for _, idx := range t {
			if wide {
				w.U32(idx)
				continue
			}
			if idx > maxNarrowVertices {
				return fmt.Errorf("%w: triangle %d index %d needs wide indices", ErrOutOfBounds, i, idx)
			}
			w.U16(uint16(idx))
		}
	}
	return nil
}
