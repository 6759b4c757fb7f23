package midilist

import (
	"sort"
	"sync"
)

// sortCache memoizes a sorted view of a slice. The zero value is dirty, so
// the first get always sorts. Reads happen on the owner goroutine only, but
// invalidation may be signalled from re-entrant observer callbacks, so the
// flag is guarded.
type sortCache[T any] struct {
	mu     sync.Mutex
	clean  bool
	cached []T
}

// invalidate marks the cache stale. Repeated calls before the next get
// coalesce into one rebuild.
func (c *sortCache[T]) invalidate() {
	c.mu.Lock()
	c.clean = false
	c.mu.Unlock()
}

// get returns the memoized sorted copy of src, rebuilding if stale.
// The sort is stable: equal keys keep the relative order of src.
func (c *sortCache[T]) get(src []T, less func(a, b T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.clean {
		c.cached = append(c.cached[:0:0], src...)
		sort.SliceStable(c.cached, func(i, j int) bool { return less(c.cached[i], c.cached[j]) })
		c.clean = true
	}
	return c.cached
}
