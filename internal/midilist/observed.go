package midilist

import (
	"github.com/beatfold/midiseq/internal/treestore"
)

// observedSet mirrors the children of one record as typed wrappers,
// filtered by kind, and keeps a lazily sorted view of them. Wrapper
// identity is stable for the lifetime of its backing record; unrelated
// property changes never recreate a wrapper.
type observedSet[T TimedEvent] struct {
	store  *treestore.Store
	parent treestore.Handle
	kind   treestore.Kind

	wrap func(treestore.Handle) T
	// affectsOrder reports whether changing the given property may change
	// the sort order.
	affectsOrder func(key string) bool
	// detach clears external references to a wrapper about to be
	// destroyed, e.g. removing it from a selection. May be nil.
	detach func(T)

	events []T // insertion order
	byRec  map[treestore.Handle]T

	cache    sortCache[T]
	unlisten func()
}

func newObservedSet[T TimedEvent](store *treestore.Store, parent treestore.Handle, kind treestore.Kind,
	wrap func(treestore.Handle) T, affectsOrder func(string) bool) *observedSet[T] {
	s := &observedSet[T]{
		store:        store,
		parent:       parent,
		kind:         kind,
		wrap:         wrap,
		affectsOrder: affectsOrder,
		byRec:        map[treestore.Handle]T{},
	}
	for _, c := range store.Children(parent) {
		if store.Kind(c) == kind {
			s.add(c)
		}
	}
	s.unlisten = store.Listen(parent, s.onChange)
	return s
}

func (s *observedSet[T]) close() {
	if s.unlisten != nil {
		s.unlisten()
		s.unlisten = nil
	}
}

func (s *observedSet[T]) add(rec treestore.Handle) {
	e := s.wrap(rec)
	s.events = append(s.events, e)
	s.byRec[rec] = e
}

func (s *observedSet[T]) onChange(c treestore.Change) {
	switch c.Type {
	case treestore.ChildAdded:
		if s.store.Kind(c.Child) == s.kind {
			s.add(c.Child)
			s.cache.invalidate()
		}
	case treestore.ChildRemoved:
		e, ok := s.byRec[c.Child]
		if !ok {
			return
		}
		if s.detach != nil {
			s.detach(e)
		}
		delete(s.byRec, c.Child)
		for i, ev := range s.events {
			if ev.Record() == c.Child {
				s.events = append(s.events[:i], s.events[i+1:]...)
				break
			}
		}
		s.cache.invalidate()
	case treestore.PropChanged:
		if _, ok := s.byRec[c.Record]; ok && s.affectsOrder(c.Key) {
			s.cache.invalidate()
		}
	}
}

// sorted returns the events in non-decreasing beat order. Ties keep
// insertion order.
func (s *observedSet[T]) sorted() []T {
	return s.cache.get(s.events, func(a, b T) bool {
		return a.BeatPosition() < b.BeatPosition()
	})
}

func (s *observedSet[T]) forRecord(rec treestore.Handle) (T, bool) {
	e, ok := s.byRec[rec]
	return e, ok
}

func (s *observedSet[T]) contains(rec treestore.Handle) bool {
	_, ok := s.byRec[rec]
	return ok
}

func (s *observedSet[T]) len() int { return len(s.events) }
