package lazyref

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// zmetadataFile is the on-disk shape of "{root}/.zmetadata": a page
// size and a flat mapping from metadata path to its already-decoded
// JSON value.
type zmetadataFile struct {
	RecordSize int64                      `json:"record_size"`
	Metadata   map[string]json.RawMessage `json:"metadata"`
}

const zarraySuffix = "/.zarray"

// zarray is the subset of a field's ".zarray" metadata entry the
// chunk grid needs.
type zarray struct {
	Shape  []int64 `json:"shape"`
	Chunks []int64 `json:"chunks"`
}

// gridFor parses the {field}/.zarray metadata entry into a Grid.
func (m *LazyMap) gridFor(field string) (Grid, error) {
	if g, ok := m.grids[field]; ok {
		return g, nil
	}
	raw, ok := m.meta[field+zarraySuffix]
	if !ok {
		return Grid{}, fmt.Errorf("lazyref: no %s%s metadata entry for field %q", field, zarraySuffix, field)
	}
	var za zarray
	if err := json.Unmarshal(raw, &za); err != nil {
		return Grid{}, fmt.Errorf("lazyref: decoding %s%s: %w", field, zarraySuffix, err)
	}
	if len(za.Shape) != len(za.Chunks) {
		return Grid{}, fmt.Errorf("lazyref: field %q: shape and chunks have different lengths", field)
	}
	g := Grid{Shape: za.Shape, Chunks: za.Chunks}
	m.grids[field] = g
	return g, nil
}

// fields returns the set of fields known from metadata entries, i.e.
// every key of the form "<field>/.zarray", sorted for deterministic
// iteration.
func (m *LazyMap) fields() []string {
	var out []string
	for k := range m.meta {
		if f, ok := strings.CutSuffix(k, zarraySuffix); ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
