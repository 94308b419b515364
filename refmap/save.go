package refmap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pbchekin/filesystem-spec/ref"
)

// SaveJSON serializes m back to a version-1 JSON reference spec:
// {"version": 1, "refs": {...}}. Inline bytes that decode as ASCII
// are emitted as plain strings; otherwise as "base64:"+b64. Whole and
// Slice references round-trip as 1- or 3-element arrays. Absent
// entries are omitted (a tombstone has no JSON representation), and
// so are keys the map enumerates but cannot resolve: a lazy map's
// Keys() lists every expected chunk, present or not.
func SaveJSON(m Map) ([]byte, error) {
	refs := make(map[string]any, m.Len())
	for _, path := range m.Keys() {
		r, err := m.Get(path)
		if err != nil {
			var nf *NotFound
			if errors.As(err, &nf) {
				continue
			}
			return nil, fmt.Errorf("refmap: SaveJSON: %q: %w", path, err)
		}
		v, ok, err := encodeRefValue(r)
		if err != nil {
			return nil, fmt.Errorf("refmap: SaveJSON: %q: %w", path, err)
		}
		if ok {
			refs[path] = v
		}
	}
	out := map[string]any{
		"version": 1,
		"refs":    refs,
	}
	return json.Marshal(out)
}

// encodeRefValue returns the JSON-ready value for r, and false if r
// has no JSON representation (Absent).
func encodeRefValue(r ref.Reference) (any, bool, error) {
	switch r.Kind {
	case ref.Inline:
		return ref.EncodeInline(r.Data), true, nil
	case ref.Whole:
		return []any{r.URL}, true, nil
	case ref.Slice:
		return []any{r.URL, r.Offset, r.Size}, true, nil
	case ref.Absent:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unknown reference kind %v", r.Kind)
	}
}
