// Package vfs implements the dispatcher: the virtual filesystem that
// resolves paths through a reference map and forwards byte ranges to
// backing filesystems keyed by URL protocol.
package vfs

import "context"

// Backend is the contract a backing filesystem implements: fetch a
// byte range of an object named by URL. start/end == nil mean
// "beginning of object" / "end of object" respectively, exactly like
// a Slice reference's defaulted endpoints.
type Backend interface {
	// CatFile returns the bytes in [start, end) of url.
	CatFile(ctx context.Context, url string, start, end *int64) ([]byte, error)
}

// RangeResult is one element of a CatRanges batch result: either the
// fetched bytes or the error that occurred fetching them.
type RangeResult struct {
	Data []byte
	Err  error
}

// BatchBackend is implemented by backends that can serve several
// ranges (possibly spanning several URLs) more efficiently than one
// CatFile call per range, e.g. with pipelined HTTP range requests.
// FS.Cat uses it when available and falls back to sequential
// CatFile calls otherwise.
type BatchBackend interface {
	Backend
	// CatRanges fetches len(urls) ranges and returns one RangeResult
	// per input index, in order.
	CatRanges(ctx context.Context, urls []string, starts, ends []*int64) []RangeResult
}

// catRanges dispatches to b.CatRanges when b implements BatchBackend,
// else serves the batch with sequential CatFile calls.
func catRanges(ctx context.Context, b Backend, urls []string, starts, ends []*int64) []RangeResult {
	if bb, ok := b.(BatchBackend); ok {
		return bb.CatRanges(ctx, urls, starts, ends)
	}
	out := make([]RangeResult, len(urls))
	for i := range urls {
		data, err := b.CatFile(ctx, urls[i], starts[i], ends[i])
		out[i] = RangeResult{Data: data, Err: err}
	}
	return out
}
