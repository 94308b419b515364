package refmap

import "github.com/pbchekin/filesystem-spec/ref"

// EagerMap is the in-memory reference map built from a parsed JSON
// spec after template/generator expansion. Mutation is direct: Put
// writes through, and Delete removes the key outright (this layer has
// no tombstone representation; only the lazy map distinguishes
// "explicitly deleted" from "never existed").
type EagerMap struct {
	entries map[string]ref.Reference
}

// NewEagerMap builds an EagerMap from a set of already-decoded
// path->Reference entries. The caller retains no reference to the
// passed-in map.
func NewEagerMap(entries map[string]ref.Reference) *EagerMap {
	m := &EagerMap{entries: make(map[string]ref.Reference, len(entries))}
	for k, v := range entries {
		m.entries[k] = v
	}
	return m
}

func (m *EagerMap) Get(path string) (ref.Reference, error) {
	v, ok := m.entries[path]
	if !ok {
		return ref.Reference{}, &NotFound{Path: path}
	}
	return v, nil
}

func (m *EagerMap) Put(path string, value ref.Reference) error {
	m.entries[path] = value
	return nil
}

func (m *EagerMap) Delete(path string) error {
	delete(m.entries, path)
	return nil
}

func (m *EagerMap) Contains(path string) bool {
	_, ok := m.entries[path]
	return ok
}

func (m *EagerMap) Keys() []string {
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}

func (m *EagerMap) Len() int {
	return len(m.entries)
}

var _ Map = (*EagerMap)(nil)
