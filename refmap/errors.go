package refmap

import "fmt"

// NotFound is returned when a key is absent from a reference map and
// is not a synthesized directory entry. It is distinct from Absent,
// which marks an explicitly deleted key.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("refmap: path %q not found", e.Path)
}

// BadSpec is returned when a reference spec fails to parse: an
// unknown version, a malformed generator entry, or a non-integer
// chunk id.
type BadSpec struct {
	Reason string
}

func (e *BadSpec) Error() string {
	return fmt.Sprintf("refmap: bad spec: %s", e.Reason)
}
