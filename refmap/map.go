// Package refmap defines the reference-map contract shared by the
// eagerly-loaded dictionary (EagerMap) and, via package lazyref, the
// on-disk columnar-paged implementation. It also carries the JSON
// reference-spec parser and serializer.
package refmap

import "github.com/pbchekin/filesystem-spec/ref"

// Map is the contract shared by every reference-map implementation:
// get/put/delete by path, membership and iteration, and length.
// Paths use "/" as the separator; insertion order is irrelevant.
type Map interface {
	// Get resolves path to its Reference, or returns a *NotFound
	// error if the key has never been set. The lazy map stores a
	// deleted chunk and a never-set row of a written page the same
	// way, and returns ref.Absent for both.
	Get(path string) (ref.Reference, error)

	// Put sets path to value, overwriting any previous value.
	Put(path string, value ref.Reference) error

	// Delete removes path. For maps that distinguish tombstones
	// from absence (the lazy map), this stages ref.Absent; for
	// the eager map, this removes the key outright.
	Delete(path string) error

	// Contains reports whether path has a value (including
	// ref.Absent tombstones, which still "exist" as entries).
	Contains(path string) bool

	// Keys returns every known path, in unspecified order.
	Keys() []string

	// Len returns the number of known paths.
	Len() int
}
