package lazyref

import (
	"reflect"
	"testing"
)

func TestGridRavelUnravelRoundTrip(t *testing.T) {
	g := Grid{Shape: []int64{9, 9, 9}, Chunks: []int64{3, 3, 3}} // G = (3,3,3)
	for x := int64(0); x < 3; x++ {
		for y := int64(0); y < 3; y++ {
			for z := int64(0); z < 3; z++ {
				coord := []int64{x, y, z}
				flat, err := g.Ravel(coord)
				if err != nil {
					t.Fatal(err)
				}
				back := g.Unravel(flat)
				if !reflect.DeepEqual(coord, back) {
					t.Fatalf("Unravel(Ravel(%v)) = %v", coord, back)
				}
			}
		}
	}
}

func TestGridRavelRowMajorOrder(t *testing.T) {
	g := Grid{Shape: []int64{6, 4}, Chunks: []int64{2, 2}} // G = (3,2)
	// row-major: (1,0) -> 1*2+0 = 2 (column-major would give 1)
	flat, err := g.Ravel([]int64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if flat != 2 {
		t.Fatalf("flat = %d, want 2", flat)
	}
}

func TestGridZeroDimensional(t *testing.T) {
	g := Grid{}
	if g.Count() != 1 {
		t.Fatalf("zero-dimensional grid count = %d, want 1", g.Count())
	}
	flat, err := g.Ravel([]int64{0})
	if err != nil || flat != 0 {
		t.Fatalf("zero-dimensional Ravel = %d, %v", flat, err)
	}
}

func TestEncodeDecodeChunkID(t *testing.T) {
	id := EncodeChunkID([]int64{2, 0, 5})
	if id != "2.0.5" {
		t.Fatalf("got %q", id)
	}
	coord, err := DecodeChunkID(id, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(coord, []int64{2, 0, 5}) {
		t.Fatalf("got %v", coord)
	}
}

func TestDecodeChunkIDWrongArity(t *testing.T) {
	if _, err := DecodeChunkID("1.2", 3); err == nil {
		t.Fatal("expected error for wrong number of components")
	}
}

func TestDecodeChunkIDZeroDimensional(t *testing.T) {
	if id, err := DecodeChunkID("0", 0); err != nil || id != nil {
		t.Fatalf("got %v, %v", id, err)
	}
	if _, err := DecodeChunkID("1", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocate(t *testing.T) {
	g := Grid{Shape: []int64{9, 9}, Chunks: []int64{3, 3}} // G = (3,3), N = 9
	record, row, err := Locate("2.2", 2, g, 4)
	if err != nil {
		t.Fatal(err)
	}
	// flat(2,2) = 2*3+2 = 8; record = 8/4 = 2, row = 8%4 = 0
	if record != 2 || row != 0 {
		t.Fatalf("got record=%d row=%d", record, row)
	}
}
