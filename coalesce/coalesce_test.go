package coalesce

import "testing"

func TestCoalesceBasicMerge(t *testing.T) {
	ranges := []Range{
		{URL: "u", Start: Ptr(0), End: Ptr(100)},
		{URL: "u", Start: Ptr(150), End: Ptr(200)},
	}
	merged, assign := Coalesce(ranges, 64, 1_000_000)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged range, got %d", len(merged))
	}
	if *merged[0].Start != 0 || *merged[0].End != 200 {
		t.Fatalf("unexpected merged range %+v", merged[0])
	}
	if assign[0] != 0 || assign[1] != 0 {
		t.Fatalf("unexpected assignment %v", assign)
	}
}

func TestCoalesceDisabledWithNegativeGap(t *testing.T) {
	ranges := []Range{
		{URL: "u", Start: Ptr(0), End: Ptr(100)},
		{URL: "u", Start: Ptr(150), End: Ptr(200)},
	}
	merged, _ := Coalesce(ranges, -1, 1_000_000)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged ranges with merging disabled, got %d", len(merged))
	}
}

func TestCoalesceZeroGapOnlyAdjacent(t *testing.T) {
	ranges := []Range{
		{URL: "u", Start: Ptr(0), End: Ptr(10)},
		{URL: "u", Start: Ptr(10), End: Ptr(20)}, // adjacent
		{URL: "u", Start: Ptr(21), End: Ptr(30)}, // not adjacent
	}
	merged, assign := Coalesce(ranges, 0, 1_000_000)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged ranges, got %d: %+v", len(merged), merged)
	}
	if assign[0] != assign[1] {
		t.Fatalf("expected first two ranges merged")
	}
	if assign[2] == assign[1] {
		t.Fatalf("expected third range to stay separate")
	}
}

func TestCoalesceWholeFileSubsumesSlice(t *testing.T) {
	ranges := []Range{
		{URL: "u"}, // whole file
		{URL: "u", Start: Ptr(0), End: Ptr(10)},
	}
	merged, assign := Coalesce(ranges, 64, 1_000_000)
	if len(merged) != 1 || !merged[0].Whole {
		t.Fatalf("expected a single whole-file merged range, got %+v", merged)
	}
	if assign[0] != 0 || assign[1] != 0 {
		t.Fatalf("expected both inputs mapped to the whole-file range")
	}
}

func TestCoalesceRespectsMaxBlock(t *testing.T) {
	ranges := []Range{
		{URL: "u", Start: Ptr(0), End: Ptr(100)},
		{URL: "u", Start: Ptr(100), End: Ptr(1000)},
	}
	// adjacent (gap=0) but combined block size 1000 > maxBlock 500
	merged, _ := Coalesce(ranges, 64, 500)
	if len(merged) != 2 {
		t.Fatalf("expected merge to be rejected due to max_block, got %+v", merged)
	}
}

func TestCoalesceInvariantsFuzzLite(t *testing.T) {
	ranges := []Range{
		{URL: "a", Start: Ptr(0), End: Ptr(50)},
		{URL: "b", Start: Ptr(5), End: Ptr(55)},
		{URL: "a", Start: Ptr(40), End: Ptr(90)},
		{URL: "a", Start: Ptr(200), End: Ptr(250)},
	}
	merged, assign := Coalesce(ranges, 10, 1_000_000)
	for i, r := range ranges {
		m := merged[assign[i]]
		if m.URL != r.URL {
			t.Fatalf("range %d assigned to wrong url", i)
		}
		if !m.Whole {
			if *r.Start < *m.Start || *r.End > *m.End {
				t.Fatalf("range %d (%d,%d) not contained in merged (%d,%d)", i, *r.Start, *r.End, *m.Start, *m.End)
			}
		}
	}
	// no two merged ranges on the same url should overlap
	for i := range merged {
		for j := range merged {
			if i == j || merged[i].URL != merged[j].URL || merged[i].Whole || merged[j].Whole {
				continue
			}
			if *merged[i].Start < *merged[j].End && *merged[j].Start < *merged[i].End {
				t.Fatalf("merged ranges %d and %d overlap: %+v %+v", i, j, merged[i], merged[j])
			}
		}
	}
}
