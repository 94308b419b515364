// Package lazyref implements the on-disk, columnar-paged reference
// map: references are not loaded eagerly but fetched one page
// ("record") at a time through a bounded LRU cache, and mutations are
// staged in memory until a page fills or Flush is called. It is meant
// for catalogs too large to hold in memory as a plain dictionary.
package lazyref

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pbchekin/filesystem-spec/ref"
	"github.com/pbchekin/filesystem-spec/refmap"
)

const metadataFileName = ".zmetadata"

// LazyMap is a refmap.Map backed by a directory of .zmetadata plus
// per-field columnar pages. The zero value is not usable; construct
// with Open.
type LazyMap struct {
	root string
	in   InputFS
	out  OutputFS // nil for a read-only map

	recordSize int64

	mu    sync.Mutex
	meta  map[string]json.RawMessage     // decoded metadata values, keyed by path
	grids map[string]Grid                // memoized per-field chunk grids
	dirty map[fieldRecord]map[string]any // uninterpreted staged values per (field, record)
	cache *pageCache
}

var _ refmap.Map = (*LazyMap)(nil)

// Open reads "{root}/.zmetadata" through in and returns a LazyMap
// ready for Get/Put/Delete. out may be nil to open read-only;
// mutating calls then fail with *ReadOnly. cacheCapacity bounds the
// page LRU cache, in records.
func Open(root string, in InputFS, out OutputFS, cacheCapacity int) (*LazyMap, error) {
	f, err := in.Open(path.Join(root, metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("lazyref: opening %s: %w", metadataFileName, err)
	}
	defer f.Close()
	var zm zmetadataFile
	if err := json.NewDecoder(f).Decode(&zm); err != nil {
		return nil, fmt.Errorf("lazyref: decoding %s: %w", metadataFileName, err)
	}
	if zm.RecordSize <= 0 {
		return nil, &refmap.BadSpec{Reason: "record_size must be a positive integer"}
	}
	meta := zm.Metadata
	if meta == nil {
		meta = make(map[string]json.RawMessage)
	}
	return &LazyMap{
		root:       root,
		in:         in,
		out:        out,
		recordSize: zm.RecordSize,
		meta:       meta,
		grids:      make(map[string]Grid),
		dirty:      make(map[fieldRecord]map[string]any),
		cache:      newPageCache(cacheCapacity),
	}, nil
}

// Get implements refmap.Map.
func (m *LazyMap) Get(key string) (ref.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key)
}

func (m *LazyMap) get(key string) (ref.Reference, error) {
	if ref.IsMetadata(key) || !hasSlash(key) {
		raw, ok := m.meta[key]
		if !ok {
			return ref.Reference{}, &refmap.NotFound{Path: key}
		}
		return ref.NewInline([]byte(raw)), nil
	}

	field, chunkID := splitFieldChunk(key)
	grid, err := m.gridFor(field)
	if err != nil {
		return ref.Reference{}, err
	}
	record, row, err := Locate(chunkID, grid.Dims(), grid, m.recordSize)
	if err != nil {
		return ref.Reference{}, &refmap.BadSpec{Reason: fmt.Sprintf("chunk key %q: %s", key, err)}
	}

	if staged, ok := m.dirty[fieldRecord{field, record}]; ok {
		if v, ok := staged[chunkID]; ok {
			return decodeStaged(v)
		}
	}

	if grid.Dims() == 0 {
		return ref.NewInline(nil), nil
	}

	rec, err := m.loadPage(field, record)
	if err != nil {
		return ref.Reference{}, err
	}
	if row >= int64(rec.NumRows()) {
		return ref.Reference{}, &refmap.NotFound{Path: key}
	}
	return decodeRow(rec, int(row)), nil
}

func decodeRow(rec Record, row int) ref.Reference {
	if rec.Raw[row] != nil {
		return ref.NewInline(rec.Raw[row])
	}
	if rec.Path[row] == nil {
		return ref.NewAbsent()
	}
	if rec.Offset[row] == 0 && rec.Size[row] == 0 {
		return ref.NewWhole(*rec.Path[row])
	}
	return ref.NewSlice(*rec.Path[row], rec.Offset[row], rec.Size[row])
}

func decodeStaged(v any) (ref.Reference, error) {
	switch x := v.(type) {
	case nil:
		return ref.NewAbsent(), nil
	case []byte:
		return ref.NewInline(x), nil
	case []any:
		if len(x) == 1 {
			url, _ := x[0].(string)
			return ref.NewWhole(url), nil
		}
		if len(x) == 3 {
			url, _ := x[0].(string)
			offset, _ := toInt64(x[1])
			size, _ := toInt64(x[2])
			return ref.NewSlice(url, offset, size), nil
		}
	}
	return ref.Reference{}, fmt.Errorf("lazyref: unrecognized staged value shape %#v", v)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	}
	return 0, false
}

func encodeStaged(v ref.Reference) (any, error) {
	switch v.Kind {
	case ref.Absent:
		return nil, nil
	case ref.Inline:
		return v.Data, nil
	case ref.Whole:
		return []any{v.URL}, nil
	case ref.Slice:
		return []any{v.URL, v.Offset, v.Size}, nil
	default:
		return nil, fmt.Errorf("lazyref: unknown reference kind %v", v.Kind)
	}
}

func (m *LazyMap) loadPage(field string, record int64) (Record, error) {
	key := fieldRecord{field, record}
	if rec, ok := m.cache.get(key); ok {
		return rec, nil
	}
	p := path.Join(m.root, field, fmt.Sprintf("refs.%d.parq", record))
	f, err := m.in.Open(p)
	if err != nil {
		return Record{}, &refmap.NotFound{Path: p}
	}
	defer f.Close()
	rec, err := ReadRecord(f)
	if err != nil {
		return Record{}, fmt.Errorf("lazyref: reading %s: %w", p, err)
	}
	m.cache.put(key, rec)
	return rec, nil
}

// Put implements refmap.Map.
func (m *LazyMap) Put(key string, value ref.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return &ReadOnly{Op: "put"}
	}

	if ref.IsMetadata(key) || !hasSlash(key) {
		if value.Kind != ref.Inline {
			return fmt.Errorf("lazyref: metadata key %q must be set to an inline JSON value", key)
		}
		if !json.Valid(value.Data) {
			return fmt.Errorf("lazyref: metadata key %q: value is not valid JSON", key)
		}
		m.meta[key] = append(json.RawMessage(nil), value.Data...)
		delete(m.grids, fieldFromZarrayKey(key))
		return nil
	}

	return m.stage(key, value)
}

// Delete implements refmap.Map.
func (m *LazyMap) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return &ReadOnly{Op: "delete"}
	}

	if ref.IsMetadata(key) || !hasSlash(key) {
		delete(m.meta, key)
		return nil
	}
	return m.stage(key, ref.NewAbsent())
}

func (m *LazyMap) stage(key string, value ref.Reference) error {
	field, chunkID := splitFieldChunk(key)
	grid, err := m.gridFor(field)
	if err != nil {
		return err
	}
	record, _, err := Locate(chunkID, grid.Dims(), grid, m.recordSize)
	if err != nil {
		return &refmap.BadSpec{Reason: fmt.Sprintf("chunk key %q: %s", key, err)}
	}
	staged, err := encodeStaged(value)
	if err != nil {
		return err
	}

	fr := fieldRecord{field, record}
	partition := m.dirty[fr]
	if partition == nil {
		partition = make(map[string]any)
		m.dirty[fr] = partition
	}
	partition[chunkID] = staged

	expected, err := m.expectedRows(field, grid, record)
	if err != nil {
		return err
	}
	if int64(len(partition)) >= expected {
		return m.write(field, record)
	}
	return nil
}

// expectedRows returns the number of valid rows for (field, record):
// recordSize for every record but the last, which holds N mod
// recordSize rows (or recordSize if that remainder is zero and N > 0).
func (m *LazyMap) expectedRows(field string, grid Grid, record int64) (int64, error) {
	n := grid.Count()
	if n <= 0 {
		return 0, fmt.Errorf("lazyref: field %q has no chunks", field)
	}
	lastRecord := (n - 1) / m.recordSize
	if record < lastRecord {
		return m.recordSize, nil
	}
	rem := n - lastRecord*m.recordSize
	return rem, nil
}

// write serializes the dirty partition (field, record) into one
// columnar page with exactly the expected number of rows, then clears
// the partition and evicts any cached copy of the page.
func (m *LazyMap) write(field string, record int64) error {
	if m.out == nil {
		return &ReadOnly{Op: "write"}
	}
	fr := fieldRecord{field, record}
	partition := m.dirty[fr]

	grid, err := m.gridFor(field)
	if err != nil {
		return err
	}
	expected, err := m.expectedRows(field, grid, record)
	if err != nil {
		return err
	}

	rec := Record{
		Path:   make([]*string, m.recordSize),
		Offset: make([]int64, m.recordSize),
		Size:   make([]int64, m.recordSize),
		Raw:    make([][]byte, m.recordSize),
	}
	for chunkID, v := range partition {
		flat, lerr := localFlat(chunkID, grid)
		if lerr != nil {
			return fmt.Errorf("lazyref: writing %s/%s: %w", field, chunkID, lerr)
		}
		j := flat % m.recordSize
		switch x := v.(type) {
		case nil:
			// leave path/raw null: encodes Absent.
		case []byte:
			rec.Raw[j] = append([]byte(nil), x...)
		case []any:
			url, _ := x[0].(string)
			rec.Path[j] = &url
			if len(x) == 3 {
				off, _ := toInt64(x[1])
				sz, _ := toInt64(x[2])
				rec.Offset[j] = off
				rec.Size[j] = sz
			}
		}
	}
	rec.Path = rec.Path[:expected]
	rec.Offset = rec.Offset[:expected]
	rec.Size = rec.Size[:expected]
	rec.Raw = rec.Raw[:expected]

	var buf bytes.Buffer
	if err := WriteRecord(&buf, rec); err != nil {
		return fmt.Errorf("lazyref: encoding page %s/%d: %w", field, record, err)
	}
	p := path.Join(m.root, field, fmt.Sprintf("refs.%d.parq", record))
	if err := m.out.WriteFile(p, buf.Bytes()); err != nil {
		return fmt.Errorf("lazyref: writing %s: %w", p, err)
	}

	delete(m.dirty, fr)
	m.cache.evict(fr)
	return nil
}

func localFlat(chunkID string, grid Grid) (int64, error) {
	coord, err := DecodeChunkID(chunkID, grid.Dims())
	if err != nil {
		return 0, err
	}
	if grid.Dims() == 0 {
		return 0, nil
	}
	return grid.Ravel(coord)
}

// Flush writes every dirty partition, rewrites .zmetadata from the
// current metadata map, and clears the page cache. In-memory state
// (the metadata map itself) is otherwise retained, so a second,
// immediate Flush writes only an unchanged .zmetadata.
func (m *LazyMap) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out == nil {
		return &ReadOnly{Op: "flush"}
	}
	for fr := range m.dirty {
		if err := m.write(fr.field, fr.record); err != nil {
			return err
		}
	}

	zm := zmetadataFile{RecordSize: m.recordSize, Metadata: m.meta}
	buf, err := json.Marshal(zm)
	if err != nil {
		return fmt.Errorf("lazyref: marshaling %s: %w", metadataFileName, err)
	}
	if err := m.out.WriteFile(path.Join(m.root, metadataFileName), buf); err != nil {
		return fmt.Errorf("lazyref: writing %s: %w", metadataFileName, err)
	}
	m.cache.clear()
	return nil
}

// Contains implements refmap.Map.
func (m *LazyMap) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.get(key)
	return err == nil
}

// Len implements refmap.Map. It counts *expected* chunk keys (every
// coordinate in every field's chunk grid) plus metadata keys, not the
// subset that would actually resolve without a NotFound error.
func (m *LazyMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.meta)
	for _, field := range m.fields() {
		grid, err := m.gridFor(field)
		if err != nil {
			continue
		}
		total += int(grid.Count())
	}
	return total
}

// Keys implements refmap.Map, with the same "expected, not present"
// semantics as Len.
func (m *LazyMap) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.meta))
	for k := range m.meta {
		keys = append(keys, k)
	}
	for _, field := range m.fields() {
		grid, err := m.gridFor(field)
		if err != nil {
			continue
		}
		n := grid.Count()
		for flat := int64(0); flat < n; flat++ {
			var id string
			if grid.Dims() == 0 {
				id = "0"
			} else {
				id = EncodeChunkID(grid.Unravel(flat))
			}
			keys = append(keys, field+"/"+id)
		}
	}
	sort.Strings(keys)
	return keys
}

// Items yields every known key alongside its resolved Reference,
// skipping keys whose Get fails for any reason (e.g. NotFound for a
// page file that was never written). It stops early if yield returns
// false.
func (m *LazyMap) Items(yield func(string, ref.Reference) bool) {
	for _, k := range m.Keys() {
		r, err := m.Get(k)
		if err != nil {
			continue
		}
		if !yield(k, r) {
			return
		}
	}
}

// Values iterates like Items but yields only each reference's inline
// encoded form (the bytes that would appear in a JSON spec's refs
// value): raw bytes for Inline, and the JSON array encoding for Whole
// and Slice. Absent entries are skipped.
func (m *LazyMap) Values(yield func([]byte) bool) {
	m.Items(func(_ string, r ref.Reference) bool {
		switch r.Kind {
		case ref.Inline:
			return yield(r.Data)
		case ref.Whole:
			b, _ := json.Marshal([]any{r.URL})
			return yield(b)
		case ref.Slice:
			b, _ := json.Marshal([]any{r.URL, r.Offset, r.Size})
			return yield(b)
		default:
			return true
		}
	})
}

func hasSlash(s string) bool {
	return strings.Contains(s, "/")
}

func splitFieldChunk(key string) (field, chunk string) {
	i := strings.LastIndexByte(key, '/')
	return key[:i], key[i+1:]
}

func fieldFromZarrayKey(key string) string {
	if f, ok := strings.CutSuffix(key, zarraySuffix); ok {
		return f
	}
	return key
}
