package usersync

import "net/url"

// Conflict names a local/remote resource pair the external UI layer must
// resolve, spec.md §3.
type Conflict struct {
	Local  *url.URL
	Remote *url.URL
}

// equal compares two conflicts by URI equality on both fields, the
// equality the engine uses to decide whether the conflict list actually
// changed (spec.md §3, "Conflict" invariant).
func (c Conflict) equal(other Conflict) bool {
	return uriEqual(c.Local, other.Local) && uriEqual(c.Remote, other.Remote)
}

func uriEqual(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// conflictListsEqual reports whether two conflict lists have the same
// elements in the same order, used to decide whether replacing the list
// would actually be a no-op.
func conflictListsEqual(a, b []Conflict) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}
