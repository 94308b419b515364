package vfs

import (
	"bytes"
	"context"
	"io/fs"
	"time"

	"github.com/pbchekin/filesystem-spec/ref"
)

// snapshot rebuilds the directory cache (if stale) from the current
// reference map: every non-metadata key becomes a leaf Info, with
// Size known for Inline/Slice references and left nil for Whole
// references (filled in lazily by Info, which may consult the
// backing filesystem).
func (f *FS) snapshot() {
	keys := f.refs.Keys()
	files := make([]Info, 0, len(keys))
	for _, k := range keys {
		if ref.IsMetadata(k) {
			continue
		}
		r, err := f.refs.Get(k)
		if err != nil || r.Kind == ref.Absent {
			continue
		}
		info := Info{Name: k}
		switch r.Kind {
		case ref.Inline:
			sz := int64(len(r.Data))
			info.Size = &sz
		case ref.Slice:
			sz := r.Size
			info.Size = &sz
		case ref.Whole:
			info.Size = nil
		}
		files = append(files, info)
	}
	f.dc.ensure(files)
}

// Ls lists the immediate children of dir ("" for the root).
func (f *FS) Ls(dir string) ([]Info, error) {
	f.snapshot()
	entries, ok := f.dc.list(dir)
	if !ok {
		if dir == "" {
			return nil, nil
		}
		return nil, &fs.PathError{Op: "ls", Path: dir, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// Info reports the synthesized directory entry for path, filling in
// an unknown (Whole) file's size by asking the backing filesystem, if
// needed.
func (f *FS) Info(ctx context.Context, path string) (Info, error) {
	f.snapshot()
	parent, _ := splitParent(path)
	siblings, ok := f.dc.list(parent)
	if !ok {
		return Info{}, &fs.PathError{Op: "info", Path: path, Err: fs.ErrNotExist}
	}
	for _, e := range siblings {
		if e.Name != path {
			continue
		}
		if e.Size == nil && !e.Dir {
			if sz, err := f.sizeOf(ctx, path); err == nil {
				e.Size = &sz
			}
		}
		return e, nil
	}
	return Info{}, &fs.PathError{Op: "info", Path: path, Err: fs.ErrNotExist}
}

func (f *FS) sizeOf(ctx context.Context, path string) (int64, error) {
	r, err := f.refs.Get(path)
	if err != nil || r.Kind != ref.Whole {
		return 0, fs.ErrInvalid
	}
	url := r.URL
	if url == "" {
		url = f.opts.Target
	}
	backend, err := f.backendFor(protocolOf(url))
	if err != nil {
		return 0, err
	}
	if sized, ok := backend.(interface {
		Size(ctx context.Context, url string) (int64, error)
	}); ok {
		return sized.Size(ctx, url)
	}
	return 0, fs.ErrInvalid
}

// IsDir reports whether path names a synthesized directory.
func (f *FS) IsDir(path string) bool {
	f.snapshot()
	_, ok := f.dc.list(path)
	return ok
}

// IsFile reports whether path names a leaf reference.
func (f *FS) IsFile(path string) bool {
	r, err := f.refs.Get(path)
	return err == nil && r.Kind != ref.Absent
}

// Exists reports whether path is either a file or a synthesized
// directory.
func (f *FS) Exists(path string) bool {
	return f.IsFile(path) || f.IsDir(path)
}

// Find returns every file path under dir (recursively); dir == "" means
// the whole tree.
func (f *FS) Find(dir string) []string {
	f.snapshot()
	var out []string
	var walk func(string)
	walk = func(d string) {
		entries, ok := f.dc.list(d)
		if !ok {
			return
		}
		for _, e := range entries {
			if e.Dir {
				walk(e.Name)
			} else {
				out = append(out, e.Name)
			}
		}
	}
	walk(dir)
	return out
}

// file is the read-only, fully-buffered fs.File returned by Open.
// The whole reference is read up front; there is no streaming.
type file struct {
	name string
	*bytes.Reader
	size int64
}

func (f *file) Stat() (fs.FileInfo, error) { return fileInfo{f.name, f.size}, nil }
func (f *file) Close() error               { return nil }

type fileInfo struct {
	name string
	size int64
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() fs.FileMode  { return 0444 }
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }

// Open reads path's entire reference into memory and returns a
// read-only fs.File over it.
func (f *FS) Open(ctx context.Context, path string) (fs.File, error) {
	data, err := f.CatFile(ctx, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return &file{name: path, Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}
