package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/pbchekin/filesystem-spec/coalesce"
	"github.com/pbchekin/filesystem-spec/lazyref"
	"github.com/pbchekin/filesystem-spec/ref"
	"github.com/pbchekin/filesystem-spec/refmap"
)

// Default coalescer budgets: merge ranges up to 64 KiB apart, never
// building a fetch larger than 256 MB.
const (
	DefaultMaxGap   = 64 * 1024
	DefaultMaxBlock = 256 * 1024 * 1024
)

// Options configures an FS at construction time.
type Options struct {
	// Target is the default backing URL substituted when a
	// reference's URL is empty.
	Target string
	// MaxGap and MaxBlock bound the range coalescer. Zero values
	// are replaced with DefaultMaxGap/DefaultMaxBlock.
	MaxGap, MaxBlock int64
}

func (o Options) withDefaults() Options {
	if o.MaxGap == 0 {
		o.MaxGap = DefaultMaxGap
	}
	if o.MaxBlock == 0 {
		o.MaxBlock = DefaultMaxBlock
	}
	return o
}

// FS is the dispatcher: it resolves virtual paths through a
// refmap.Map and forwards byte ranges to backing filesystems keyed by
// URL protocol. The "" protocol key is the fallback used for
// unqualified URLs (local paths) and any protocol without a specific
// entry.
type FS struct {
	refs     refmap.Map
	backends map[string]Backend
	opts     Options
	dc       *dirCache
}

// New builds a dispatcher directly from an already-constructed
// reference map (an EagerMap or a lazyref.LazyMap) and a set of
// backing filesystems keyed by protocol. A nil backends map gets the
// DefaultBackends set.
func New(refs refmap.Map, backends map[string]Backend, opts Options) *FS {
	if backends == nil {
		backends = DefaultBackends()
	}
	return &FS{
		refs:     refs,
		backends: backends,
		opts:     opts.withDefaults(),
		dc:       newDirCache(),
	}
}

// DefaultBackends returns the backend set used when none is supplied:
// a local-filesystem fallback plus plain HTTP/HTTPS range readers.
func DefaultBackends() map[string]Backend {
	httpb := &HTTPBackend{}
	return map[string]Backend{
		"":      &LocalBackend{Root: "."},
		"file":  &LocalBackend{Root: "."},
		"http":  httpb,
		"https": httpb,
	}
}

// NewFromJSON parses a version-0 or version-1 JSON reference spec
// into an eager map and builds a dispatcher over it.
func NewFromJSON(data []byte, overrides map[string]string, simpleTemplates bool, backends map[string]Backend, opts Options) (*FS, error) {
	m, err := refmap.ParseSpec(data, overrides, simpleTemplates)
	if err != nil {
		return nil, err
	}
	return New(m, backends, opts), nil
}

// NewFromSpecURL fetches a JSON reference spec from url through the
// matching backend and builds a dispatcher over the parsed result.
func NewFromSpecURL(ctx context.Context, url string, overrides map[string]string, simpleTemplates bool, backends map[string]Backend, opts Options) (*FS, error) {
	if backends == nil {
		backends = DefaultBackends()
	}
	b, ok := backends[protocolOf(url)]
	if !ok {
		b, ok = backends[""]
	}
	if !ok {
		return nil, fmt.Errorf("vfs: no backend registered for spec url %q", url)
	}
	data, err := b.CatFile(ctx, url, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vfs: fetching reference spec %s: %w", url, err)
	}
	return NewFromJSON(data, overrides, simpleTemplates, backends, opts)
}

// NewFromLazyDir builds a dispatcher over a directory of
// columnar-paged references.
func NewFromLazyDir(root string, in lazyref.InputFS, out lazyref.OutputFS, cacheCapacity int, backends map[string]Backend, opts Options) (*FS, error) {
	m, err := lazyref.Open(root, in, out, cacheCapacity)
	if err != nil {
		return nil, err
	}
	return New(m, backends, opts), nil
}

// Invalidate drops the synthesized directory cache, forcing a rebuild
// on the next Ls/Info call. Call this after mutating the underlying
// reference map directly (Put/Delete).
func (f *FS) Invalidate() {
	f.dc.invalidate()
}

// WriteFile always fails with ReadOnly: the virtual filesystem never
// writes through to backing storage. Catalog authoring happens one
// layer down, through the reference map's own Put/Delete, not through
// this dispatcher surface; this method exists so that boundary is an
// explicit, reachable error rather than an absent method.
func (f *FS) WriteFile(path string, data []byte) error {
	return &ReadOnly{Op: fmt.Sprintf("write_file %q", path)}
}

func protocolOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i]
	}
	return ""
}

func (f *FS) backendFor(protocol string) (Backend, error) {
	if b, ok := f.backends[protocol]; ok {
		return b, nil
	}
	if b, ok := f.backends[""]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("vfs: no backend registered for protocol %q", protocol)
}

// CatFile resolves path to its reference and returns the [start, end)
// bytes: sliced directly for an inline reference, fetched from the
// matching backend otherwise.
func (f *FS) CatFile(ctx context.Context, path string, start, end *int64) ([]byte, error) {
	r, err := f.refs.Get(path)
	if err != nil {
		return nil, &fs.PathError{Op: "cat_file", Path: path, Err: fs.ErrNotExist}
	}
	switch r.Kind {
	case ref.Absent:
		return nil, &fs.PathError{Op: "cat_file", Path: path, Err: fs.ErrNotExist}
	case ref.Inline:
		return sliceInline(r.Data, start, end), nil
	case ref.Whole:
		url := r.URL
		if url == "" {
			url = f.opts.Target
		}
		b, err := f.fetch(ctx, url, start, end)
		if err != nil {
			return nil, &ReferenceNotReachable{Path: path, Target: url, Err: err}
		}
		return b, nil
	case ref.Slice:
		url := r.URL
		if url == "" {
			url = f.opts.Target
		}
		s2, e2 := absoluteSubrange(r.Offset, r.Size, start, end)
		b, err := f.fetch(ctx, url, s2, e2)
		if err != nil {
			return nil, &ReferenceNotReachable{Path: path, Target: url, Err: err}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("vfs: unknown reference kind %v", r.Kind)
	}
}

func (f *FS) fetch(ctx context.Context, url string, start, end *int64) ([]byte, error) {
	backend, err := f.backendFor(protocolOf(url))
	if err != nil {
		return nil, err
	}
	return backend.CatFile(ctx, url, start, end)
}

// sliceInline selects [start, end) of b; negative indices count from
// the end, nil means "to the bound", and out-of-range indices clamp.
func sliceInline(b []byte, start, end *int64) []byte {
	n := int64(len(b))
	s := clampIndex(start, 0, n)
	e := clampIndex(end, n, n)
	if e < s {
		e = s
	}
	return b[s:e]
}

func clampIndex(v *int64, deflt, n int64) int64 {
	if v == nil {
		return deflt
	}
	x := *v
	if x < 0 {
		x += n
	}
	if x < 0 {
		x = 0
	}
	if x > n {
		x = n
	}
	return x
}

// absoluteSubrange computes the absolute byte range that a caller's
// (start, end) selects within a byte-range reference covering
// [o, o+sz): non-negative endpoints are relative to o, negative ones
// to o+sz.
func absoluteSubrange(o, sz int64, start, end *int64) (*int64, *int64) {
	e0 := o + sz
	s2 := subrangeEndpoint(start, o, e0, o)
	e2 := subrangeEndpoint(end, o, e0, e0)
	return &s2, &e2
}

func subrangeEndpoint(v *int64, base, whole, deflt int64) int64 {
	if v == nil {
		return deflt
	}
	if *v >= 0 {
		return base + *v
	}
	return whole + *v
}

// CatOptions configures a bulk Cat call.
type CatOptions struct {
	// OnError selects the per-path error policy: "raise" (default,
	// aborts the whole batch on first error), "omit" (drops errored
	// paths from the result), or "return" (places the error as the
	// result value for that path).
	OnError string

	// Recursive requests that every path be expanded to its full
	// subtree before fetching. This dispatcher does not synthesize
	// that expansion: callers wanting a recursive fetch must expand
	// paths with Find first and pass the expanded list with Recursive
	// left false.
	Recursive bool
}

type catEntry struct {
	path       string
	kind       ref.Kind
	url        string
	start, end *int64 // nil, nil means "whole object"
}

// Cat is the bulk read path: it groups paths by protocol, coalesces
// ranges, issues one batched fetch per group, and unbundles results
// back to per-path byte slices. The result maps each path to []byte,
// or to the error itself under the "return" on-error policy.
//
// A recursive request, or a glob-looking path ("*" in any element),
// is rejected with NotImplemented rather than silently fetching only
// the literal paths given.
func (f *FS) Cat(ctx context.Context, paths []string, opts CatOptions) (map[string]any, error) {
	if opts.Recursive {
		return nil, &NotImplemented{Op: "cat(recursive=true)"}
	}
	for _, p := range paths {
		if strings.Contains(p, "*") {
			return nil, &NotImplemented{Op: fmt.Sprintf("cat(glob %q)", p)}
		}
	}

	batchID := uuid.New().String()
	onErr := opts.OnError
	if onErr == "" {
		onErr = "raise"
	}
	result := make(map[string]any, len(paths))

	var entries []catEntry
	for _, p := range paths {
		r, err := f.refs.Get(p)
		if err != nil || r.Kind == ref.Absent {
			e := &fs.PathError{Op: "cat", Path: p, Err: fs.ErrNotExist}
			if aerr := f.gate(p, e, result, onErr); aerr != nil {
				return nil, aerr
			}
			continue
		}
		switch r.Kind {
		case ref.Inline:
			result[p] = append([]byte(nil), r.Data...)
		case ref.Whole:
			url := r.URL
			if url == "" {
				url = f.opts.Target
			}
			entries = append(entries, catEntry{path: p, kind: ref.Whole, url: url})
		case ref.Slice:
			url := r.URL
			if url == "" {
				url = f.opts.Target
			}
			s, e := r.Offset, r.Offset+r.Size
			entries = append(entries, catEntry{path: p, kind: ref.Slice, url: url, start: &s, end: &e})
		}
	}

	byProto := make(map[string][]int)
	for i, e := range entries {
		proto := protocolOf(e.url)
		byProto[proto] = append(byProto[proto], i)
	}

	for proto, idxs := range byProto {
		backend, err := f.backendFor(proto)
		if err != nil {
			for _, i := range idxs {
				if aerr := f.gate(entries[i].path, err, result, onErr); aerr != nil {
					return nil, aerr
				}
			}
			continue
		}
		if err := f.catGroup(ctx, backend, entries, idxs, result, onErr, batchID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (f *FS) catGroup(ctx context.Context, backend Backend, entries []catEntry, idxs []int, result map[string]any, onErr, batchID string) error {
	ranges := make([]coalesce.Range, len(idxs))
	for j, i := range idxs {
		ranges[j] = coalesce.Range{URL: entries[i].url, Start: entries[i].start, End: entries[i].end}
	}
	merged, assignment := coalesce.Coalesce(ranges, f.opts.MaxGap, f.opts.MaxBlock)

	urls := make([]string, len(merged))
	starts := make([]*int64, len(merged))
	ends := make([]*int64, len(merged))
	for k, m := range merged {
		urls[k], starts[k], ends[k] = m.URL, m.Start, m.End
	}
	log.Printf("vfs: cat[%s]: fetching %d merged range(s) for %d path(s)", batchID, len(merged), len(idxs))
	results := catRanges(ctx, backend, urls, starts, ends)

	for j, i := range idxs {
		e := entries[i]
		mi := assignment[j]
		rr := results[mi]
		if rr.Err != nil {
			werr := &ReferenceNotReachable{Path: e.path, Target: e.url, Err: rr.Err}
			if aerr := f.gate(e.path, werr, result, onErr); aerr != nil {
				return aerr
			}
			continue
		}
		m := merged[mi]
		switch {
		case m.Whole && e.kind == ref.Whole:
			result[e.path] = rr.Data
		case m.Whole:
			result[e.path] = sliceClip(rr.Data, *e.start, *e.end)
		default:
			ns := *m.Start
			result[e.path] = sliceClip(rr.Data, *e.start-ns, *e.end-ns)
		}
	}
	return nil
}

func sliceClip(b []byte, s, e int64) []byte {
	n := int64(len(b))
	if s < 0 {
		s = 0
	}
	if e > n {
		e = n
	}
	if e < s {
		e = s
	}
	return b[s:e]
}

// gate applies the on_error policy to a per-path failure. A non-nil
// return aborts the whole batch (the "raise" policy).
func (f *FS) gate(path string, err error, result map[string]any, onErr string) error {
	switch onErr {
	case "raise":
		return err
	case "omit":
		return nil
	case "return":
		result[path] = err
		return nil
	default:
		return fmt.Errorf("vfs: unknown on_error policy %q", onErr)
	}
}
