// Package treestore is an in-memory tree of typed records with change
// notification and an undo log. Records are addressed by stable integer
// handles; a handle stays valid for the lifetime of its record, so callers
// can keep long-lived references without worrying about reallocation.
package treestore

import (
	"fmt"
)

// Handle identifies a record. The zero Handle is never allocated.
type Handle int32

// Kind tags a record with its type, e.g. "NOTE" or "SEQUENCE".
type Kind string

// ChangeType says what a Change describes.
type ChangeType int

const (
	ChildAdded ChangeType = iota
	ChildRemoved
	PropChanged
)

// Change describes one mutation of the tree. Parent is the record whose
// listeners are notified; for PropChanged it is the changed record itself
// if it has no parent.
type Change struct {
	Type   ChangeType
	Parent Handle
	Child  Handle // ChildAdded / ChildRemoved
	Record Handle // PropChanged
	Key    string // PropChanged
}

// Listener receives changes below one record. Callbacks may re-enter the
// store for reads; they must not mutate it.
type Listener func(Change)

type record struct {
	kind     Kind
	parent   Handle
	children []Handle
	props    map[string]any
}

// Store owns an arena of records.
type Store struct {
	records map[Handle]*record
	next    Handle

	listeners map[Handle]map[int]Listener
	nextLID   int
}

func New() *Store {
	return &Store{
		records:   map[Handle]*record{},
		next:      1,
		listeners: map[Handle]map[int]Listener{},
	}
}

// NewRecord allocates a detached record of the given kind.
func (s *Store) NewRecord(kind Kind) Handle {
	h := s.next
	s.next++
	s.records[h] = &record{kind: kind, props: map[string]any{}}
	return h
}

func (s *Store) rec(h Handle) *record {
	r := s.records[h]
	if r == nil {
		panic(fmt.Sprintf("treestore: invalid handle %d", h))
	}
	return r
}

// Kind returns the record's kind.
func (s *Store) Kind(h Handle) Kind { return s.rec(h).kind }

// Parent returns the record's parent, or 0 if detached.
func (s *Store) Parent(h Handle) Handle { return s.rec(h).parent }

// Children returns a copy of the record's child list in tree order.
func (s *Store) Children(h Handle) []Handle {
	return append([]Handle(nil), s.rec(h).children...)
}

// NumChildren returns the number of children without copying.
func (s *Store) NumChildren(h Handle) int { return len(s.rec(h).children) }

// Listen registers a listener for changes at and below parent.
// The returned function removes it.
func (s *Store) Listen(parent Handle, l Listener) func() {
	m := s.listeners[parent]
	if m == nil {
		m = map[int]Listener{}
		s.listeners[parent] = m
	}
	id := s.nextLID
	s.nextLID++
	m[id] = l
	return func() { delete(m, id) }
}

func (s *Store) notify(target Handle, c Change) {
	// Copy so a listener may unregister itself or others mid-notification.
	m := s.listeners[target]
	if len(m) == 0 {
		return
	}
	ls := make([]Listener, 0, len(m))
	for _, l := range m {
		ls = append(ls, l)
	}
	for _, l := range ls {
		l(c)
	}
}

// AppendChild attaches child at the end of parent's child list.
func (s *Store) AppendChild(parent, child Handle, u *UndoLog) error {
	return s.InsertChild(parent, child, s.NumChildren(parent), u)
}

// InsertChild attaches child at the given index of parent's child list.
func (s *Store) InsertChild(parent, child Handle, index int, u *UndoLog) error {
	cr := s.rec(child)
	if cr.parent != 0 {
		return fmt.Errorf("record %d already has parent %d", child, cr.parent)
	}
	pr := s.rec(parent)
	if index < 0 || index > len(pr.children) {
		return fmt.Errorf("child index %d out of range [0, %d]", index, len(pr.children))
	}
	s.insertChild(parent, child, index)
	u.record(insertDelta{parent: parent, child: child, index: index})
	return nil
}

func (s *Store) insertChild(parent, child Handle, index int) {
	pr, cr := s.rec(parent), s.rec(child)
	pr.children = append(pr.children, 0)
	copy(pr.children[index+1:], pr.children[index:])
	pr.children[index] = child
	cr.parent = parent
	s.notify(parent, Change{Type: ChildAdded, Parent: parent, Child: child})
}

// RemoveChild detaches child from parent. The record itself stays alive in
// the arena so undo can reattach it.
func (s *Store) RemoveChild(parent, child Handle, u *UndoLog) error {
	pr := s.rec(parent)
	index := -1
	for i, c := range pr.children {
		if c == child {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("record %d is not a child of %d", child, parent)
	}
	s.removeChild(parent, child, index)
	u.record(removeDelta{parent: parent, child: child, index: index})
	return nil
}

func (s *Store) removeChild(parent, child Handle, index int) {
	pr, cr := s.rec(parent), s.rec(child)
	pr.children = append(pr.children[:index], pr.children[index+1:]...)
	cr.parent = 0
	s.notify(parent, Change{Type: ChildRemoved, Parent: parent, Child: child})
}

// Set writes a property value. Supported value types are bool, int,
// float64, string and []byte.
func (s *Store) Set(h Handle, key string, v any, u *UndoLog) {
	r := s.rec(h)
	old, had := r.props[key]
	s.setProp(h, key, v)
	u.record(setDelta{rec: h, key: key, old: old, had: had})
}

func (s *Store) setProp(h Handle, key string, v any) {
	r := s.rec(h)
	if v == nil {
		delete(r.props, key)
	} else {
		r.props[key] = v
	}
	c := Change{Type: PropChanged, Record: h, Key: key}
	if r.parent != 0 {
		c.Parent = r.parent
		s.notify(r.parent, c)
	} else {
		c.Parent = h
		s.notify(h, c)
	}
}

// Get returns the raw property value, or nil if unset.
func (s *Store) Get(h Handle, key string) any { return s.rec(h).props[key] }

// GetFloat returns a float64 property, accepting int values too.
func (s *Store) GetFloat(h Handle, key string, def float64) float64 {
	switch v := s.rec(h).props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// GetInt returns an int property, accepting float64 values too.
func (s *Store) GetInt(h Handle, key string, def int) int {
	switch v := s.rec(h).props[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// GetBool returns a bool property.
func (s *Store) GetBool(h Handle, key string, def bool) bool {
	if v, ok := s.rec(h).props[key].(bool); ok {
		return v
	}
	return def
}

// GetString returns a string property.
func (s *Store) GetString(h Handle, key string, def string) string {
	if v, ok := s.rec(h).props[key].(string); ok {
		return v
	}
	return def
}

// GetBytes returns a []byte property. The slice is not copied.
func (s *Store) GetBytes(h Handle, key string) []byte {
	if v, ok := s.rec(h).props[key].([]byte); ok {
		return v
	}
	return nil
}
