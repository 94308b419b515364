package lazyref

// ReadOnly is returned by Put/Delete/Flush/write when the map was
// opened without an OutputFS.
type ReadOnly struct {
	Op string
}

func (e *ReadOnly) Error() string {
	return "lazyref: " + e.Op + ": map opened read-only (no OutputFS)"
}
