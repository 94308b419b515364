package lazyref

import (
	"fmt"
	"strconv"
	"strings"
)

// Grid describes one field's chunking: paired Shape and Chunks arrays
// of equal length d (possibly zero, for a scalar field). The
// chunk-grid dimensions are G[i] = ceil(Shape[i] / Chunks[i]).
type Grid struct {
	Shape  []int64
	Chunks []int64
}

// Dims returns d, the number of chunked dimensions.
func (g Grid) Dims() int {
	return len(g.Shape)
}

// dimSizes returns G, the per-axis chunk-grid dimensions.
func (g Grid) dimSizes() []int64 {
	out := make([]int64, len(g.Shape))
	for i := range g.Shape {
		out[i] = ceilDiv(g.Shape[i], g.Chunks[i])
	}
	return out
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Count returns N, the total number of chunks in the grid. A
// zero-dimensional grid has exactly one chunk.
func (g Grid) Count() int64 {
	if g.Dims() == 0 {
		return 1
	}
	n := int64(1)
	for _, d := range g.dimSizes() {
		n *= d
	}
	return n
}

// Ravel converts a chunk coordinate into a flat, row-major (C-order)
// index over the grid.
func (g Grid) Ravel(coord []int64) (int64, error) {
	d := g.Dims()
	if d == 0 {
		if len(coord) != 1 || coord[0] != 0 {
			return 0, fmt.Errorf("lazyref: zero-dimensional grid only has chunk id \"0\"")
		}
		return 0, nil
	}
	if len(coord) != d {
		return 0, fmt.Errorf("lazyref: chunk id has %d components, grid has %d dimensions", len(coord), d)
	}
	sizes := g.dimSizes()
	var flat int64
	for i := 0; i < d; i++ {
		if coord[i] < 0 || coord[i] >= sizes[i] {
			return 0, fmt.Errorf("lazyref: chunk coordinate %v out of bounds for grid %v", coord, sizes)
		}
		flat = flat*sizes[i] + coord[i]
	}
	return flat, nil
}

// Unravel is the inverse of Ravel: it converts a flat index back into
// a chunk coordinate.
func (g Grid) Unravel(flat int64) []int64 {
	d := g.Dims()
	if d == 0 {
		return []int64{0}
	}
	sizes := g.dimSizes()
	coord := make([]int64, d)
	for i := d - 1; i >= 0; i-- {
		coord[i] = flat % sizes[i]
		flat /= sizes[i]
	}
	return coord
}

// EncodeChunkID renders a chunk coordinate as a dot-separated id
// ("x.y.z"), or "0" for the zero-dimensional case.
func EncodeChunkID(coord []int64) string {
	if len(coord) == 0 {
		return "0"
	}
	parts := make([]string, len(coord))
	for i, c := range coord {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ".")
}

// DecodeChunkID parses a dot-separated chunk id into its coordinate.
// It returns an error (classified as refmap.BadSpec by callers) if the
// id is not exactly d dot-separated non-negative integers (or "0" for
// d == 0).
func DecodeChunkID(id string, d int) ([]int64, error) {
	if d == 0 {
		if id != "0" {
			return nil, fmt.Errorf("lazyref: zero-dimensional chunk id must be \"0\", got %q", id)
		}
		return nil, nil
	}
	parts := strings.Split(id, ".")
	if len(parts) != d {
		return nil, fmt.Errorf("lazyref: chunk id %q has %d components, want %d", id, len(parts), d)
	}
	coord := make([]int64, d)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("lazyref: chunk id %q: component %q is not a non-negative integer", id, p)
		}
		coord[i] = v
	}
	return coord, nil
}

// Locate maps a chunk id to its (record, row) position given the
// configured record size R.
func Locate(id string, d int, g Grid, recordSize int64) (record, row int64, err error) {
	coord, err := DecodeChunkID(id, d)
	if err != nil {
		return 0, 0, err
	}
	var flat int64
	if d == 0 {
		flat = 0
	} else {
		flat, err = g.Ravel(coord)
		if err != nil {
			return 0, 0, err
		}
	}
	return flat / recordSize, flat % recordSize, nil
}
