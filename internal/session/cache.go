package session

import "slices"

// ResultSet is an ordered list of transcript alternatives, best match first.
type ResultSet []string

// NewResultSet copies engine matches; an absent list becomes an empty set.
func NewResultSet(matches []string) ResultSet {
	if matches == nil {
		return ResultSet{}
	}
	return slices.Clone(ResultSet(matches))
}

// Equal reports order-sensitive sequence equality.
func (r ResultSet) Equal(other ResultSet) bool {
	return slices.Equal(r, other)
}

// ResultCache remembers the last emitted partial result set so repeated
// engine updates are not re-emitted. It is owned by the Controller and
// relies on the controller lock.
type ResultCache struct {
	last ResultSet
}

// ShouldEmit reports whether set differs from the last committed set.
// An empty set never emits.
func (c *ResultCache) ShouldEmit(set ResultSet) bool {
	if len(set) == 0 {
		return false
	}
	return !c.last.Equal(set)
}

// Commit replaces the cached set.
func (c *ResultCache) Commit(set ResultSet) {
	c.last = slices.Clone(set)
}

// Reset clears dedupe state.
func (c *ResultCache) Reset() {
	c.last = nil
}

// Last returns a copy of the cached set.
func (c *ResultCache) Last() ResultSet {
	return slices.Clone(c.last)
}
