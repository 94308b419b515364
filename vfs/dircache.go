package vfs

import (
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// Info describes one synthesized directory entry.
type Info struct {
	Name string // full path
	Dir  bool
	Size *int64 // nil = unknown (a Whole reference whose size needs a backend round trip)
}

// dirCache synthesizes a directory to children mapping from a flat
// set of file paths, splitting on "/" to materialize intermediate
// directories. It is invalidated wholesale only by FS.Invalidate and
// rebuilt lazily on next use; mutations made on the reference map are
// not observed by the cache, and there is no incremental maintenance.
type dirCache struct {
	mu    sync.Mutex
	dirs  map[string][]Info
	built bool
}

func newDirCache() *dirCache {
	return &dirCache{}
}

// invalidate marks the cache stale; the next call to ensure rebuilds
// it from scratch.
func (c *dirCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.built = false
	c.dirs = nil
}

// ensure rebuilds the cache from files (a flat snapshot of every leaf
// path) if it is stale.
func (c *dirCache) ensure(files []Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built {
		return
	}
	c.dirs = buildDirTree(files)
	c.built = true
}

func (c *dirCache) list(dir string) ([]Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.dirs[dir]
	return entries, ok
}

func buildDirTree(files []Info) map[string][]Info {
	dirs := make(map[string][]Info)
	known := make(map[string]bool)

	var ensureDir func(p string)
	addChild := func(parent string, child Info) {
		for _, e := range dirs[parent] {
			if e.Name == child.Name {
				return
			}
		}
		dirs[parent] = append(dirs[parent], child)
	}
	ensureDir = func(p string) {
		if p == "" || known[p] {
			return
		}
		known[p] = true
		parent, _ := splitParent(p)
		ensureDir(parent)
		addChild(parent, Info{Name: p, Dir: true})
	}

	for _, f := range files {
		parent, _ := splitParent(f.Name)
		ensureDir(parent)
		addChild(parent, f)
	}
	for k := range dirs {
		slices.SortFunc(dirs[k], func(a, b Info) bool { return a.Name < b.Name })
	}
	return dirs
}

func splitParent(p string) (parent, name string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}
