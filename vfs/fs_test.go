package vfs

import (
	"context"
	"fmt"
	"testing"

	"github.com/pbchekin/filesystem-spec/refmap"
)

func refmapParseSpec(t *testing.T, data []byte) (refmap.Map, error) {
	t.Helper()
	return refmap.ParseSpec(data, nil, false)
}

type rangeReq struct {
	url        string
	start, end *int64
}

// fakeBackend is an in-memory BatchBackend that records every batch
// of ranges it was asked to serve, so tests can assert on how many
// fetches the coalescer produced.
type fakeBackend struct {
	data  map[string][]byte
	calls [][]rangeReq
}

func (b *fakeBackend) CatFile(ctx context.Context, url string, start, end *int64) ([]byte, error) {
	out := b.CatRanges(ctx, []string{url}, []*int64{start}, []*int64{end})
	return out[0].Data, out[0].Err
}

func (b *fakeBackend) CatRanges(_ context.Context, urls []string, starts, ends []*int64) []RangeResult {
	reqs := make([]rangeReq, len(urls))
	out := make([]RangeResult, len(urls))
	for i, u := range urls {
		reqs[i] = rangeReq{u, starts[i], ends[i]}
		full, ok := b.data[u]
		if !ok {
			out[i] = RangeResult{Err: fmt.Errorf("not found: %s", u)}
			continue
		}
		s, e := resolveBounds(starts[i], ends[i], int64(len(full)))
		out[i] = RangeResult{Data: append([]byte(nil), full[s:e]...)}
	}
	b.calls = append(b.calls, reqs)
	return out
}

func mustPtr(v int64) *int64 { return &v }

func linearBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestCatFileInlineBase64(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"base64:aGVsbG8="}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})
	got, err := f.CatFile(context.Background(), "a", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestCatFileSliceNegativeEndpoints(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":["http://h/x",10,5]}}`))
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{data: map[string][]byte{"http://h/x": linearBytes(64)}}
	f := New(m, map[string]Backend{"http": backend}, Options{})

	// start=-3 counts from the slice end (offset 10 + size 5 = 15), so
	// the issued absolute range is [12, 15).
	got, err := f.CatFile(context.Background(), "a", mustPtr(-3), nil)
	if err != nil {
		t.Fatal(err)
	}
	req := backend.calls[0][0]
	if *req.start != 12 || *req.end != 15 {
		t.Fatalf("expected range (12,15), got (%d,%d)", *req.start, *req.end)
	}
	want := linearBytes(64)[12:15]
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNewFromSpecURLFetchesThroughBackend(t *testing.T) {
	spec := []byte(`{"version":1,"refs":{"a":"hello"}}`)
	backend := &fakeBackend{data: map[string][]byte{"http://h/spec.json": spec}}
	f, err := NewFromSpecURL(context.Background(), "http://h/spec.json", nil, false,
		map[string]Backend{"http": backend}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.CatFile(context.Background(), "a", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestCatFileSliceIssuesAbsoluteRange(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":["http://h/x",10,5]}}`))
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{data: map[string][]byte{"http://h/x": linearBytes(64)}}
	f := New(m, map[string]Backend{"http": backend}, Options{})

	got, err := f.CatFile(context.Background(), "a", mustPtr(1), mustPtr(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(backend.calls) != 1 || len(backend.calls[0]) != 1 {
		t.Fatalf("expected exactly one range request, got %+v", backend.calls)
	}
	req := backend.calls[0][0]
	if *req.start != 11 || *req.end != 14 {
		t.Fatalf("expected range (11,14), got (%d,%d)", *req.start, *req.end)
	}
	want := linearBytes(64)[11:14]
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCatCoalescesNearbyRanges(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{
		"p0":["u", 0, 100],
		"p1":["u", 150, 50]
	}}`))
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{data: map[string][]byte{"u": linearBytes(300)}}
	f := New(m, map[string]Backend{"": backend}, Options{MaxGap: 64, MaxBlock: 1_000_000})

	res, err := f.Cat(context.Background(), []string{"p0", "p1"}, CatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(backend.calls) != 1 || len(backend.calls[0]) != 1 {
		t.Fatalf("expected one merged range request, got %+v", backend.calls)
	}
	full := linearBytes(300)
	if string(res["p0"].([]byte)) != string(full[0:100]) {
		t.Fatalf("p0 mismatch")
	}
	if string(res["p1"].([]byte)) != string(full[150:200]) {
		t.Fatalf("p1 mismatch")
	}
}

func TestCatCoalescingDisabledIssuesTwoRanges(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{
		"p0":["u", 0, 100],
		"p1":["u", 150, 50]
	}}`))
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{data: map[string][]byte{"u": linearBytes(300)}}
	f := New(m, map[string]Backend{"": backend}, Options{MaxGap: -1, MaxBlock: 1_000_000})

	if _, err := f.Cat(context.Background(), []string{"p0", "p1"}, CatOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(backend.calls) != 1 || len(backend.calls[0]) != 2 {
		t.Fatalf("expected two separate ranges in one batch call, got %+v", backend.calls)
	}
}

func TestCatWholeFileSubsumesSlice(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{
		"p0":["u"],
		"p1":["u", 0, 10]
	}}`))
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{data: map[string][]byte{"u": linearBytes(300)}}
	f := New(m, map[string]Backend{"": backend}, Options{})

	res, err := f.Cat(context.Background(), []string{"p0", "p1"}, CatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(backend.calls) != 1 || len(backend.calls[0]) != 1 {
		t.Fatalf("expected exactly one whole-file fetch, got %+v", backend.calls)
	}
	req := backend.calls[0][0]
	if req.start != nil || req.end != nil {
		t.Fatalf("expected a whole-file range (nil,nil), got (%v,%v)", req.start, req.end)
	}
	full := linearBytes(300)
	if string(res["p0"].([]byte)) != string(full) {
		t.Fatalf("p0 should be the whole object")
	}
	if string(res["p1"].([]byte)) != string(full[0:10]) {
		t.Fatalf("p1 should be sliced from the whole-file fetch")
	}
}

func TestCatOnErrorOmitAndReturn(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"hello"}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})

	res, err := f.Cat(context.Background(), []string{"a", "missing"}, CatOptions{OnError: "omit"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res["missing"]; ok {
		t.Fatalf("expected missing path to be omitted")
	}
	if string(res["a"].([]byte)) != "hello" {
		t.Fatalf("got %v", res["a"])
	}

	res, err = f.Cat(context.Background(), []string{"a", "missing"}, CatOptions{OnError: "return"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res["missing"].(error); !ok {
		t.Fatalf("expected missing path's result to be an error, got %v", res["missing"])
	}
}

func TestCatOnErrorRaiseAbortsBatch(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"hello"}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})
	if _, err := f.Cat(context.Background(), []string{"a", "missing"}, CatOptions{}); err == nil {
		t.Fatal("expected an error aborting the batch")
	}
}

func TestLsAndFindSynthesizeDirectories(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{
		"a/b/c.bin": "hello",
		"a/d.bin": "world"
	}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})

	if !f.IsDir("a") || !f.IsDir("a/b") {
		t.Fatalf("expected a and a/b to be synthesized directories")
	}
	if !f.IsFile("a/d.bin") {
		t.Fatalf("expected a/d.bin to be a file")
	}
	names := f.Find("")
	if len(names) != 2 {
		t.Fatalf("expected 2 files, got %v", names)
	}
}

func TestCatRecursiveIsNotImplemented(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"hello"}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})
	_, err = f.Cat(context.Background(), []string{"a"}, CatOptions{Recursive: true})
	if _, ok := err.(*NotImplemented); !ok {
		t.Fatalf("expected *NotImplemented, got %v", err)
	}
}

func TestCatGlobIsNotImplemented(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"hello"}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})
	_, err = f.Cat(context.Background(), []string{"a*"}, CatOptions{})
	if _, ok := err.(*NotImplemented); !ok {
		t.Fatalf("expected *NotImplemented, got %v", err)
	}
}

func TestWriteFileIsReadOnly(t *testing.T) {
	m, err := refmapParseSpec(t, []byte(`{"version":1,"refs":{"a":"hello"}}`))
	if err != nil {
		t.Fatal(err)
	}
	f := New(m, nil, Options{})
	err = f.WriteFile("a", []byte("x"))
	if _, ok := err.(*ReadOnly); !ok {
		t.Fatalf("expected *ReadOnly, got %v", err)
	}
}
