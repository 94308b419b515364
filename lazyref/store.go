package lazyref

import "io/fs"

// InputFS is the read side of the backing filesystem a lazy map is
// opened against: .zmetadata and every refs.<record>.parq page are
// read through it. It is deliberately just io/fs.FS, which local and
// object-store backends can both satisfy.
type InputFS interface {
	fs.FS
}

// OutputFS is the write side, needed only by Put/Delete/Flush/write.
// A lazy map opened read-only may be given a nil OutputFS; any attempt
// to write then fails with ReadOnly.
type OutputFS interface {
	// WriteFile creates or overwrites path with buf's contents.
	WriteFile(path string, buf []byte) error
}
