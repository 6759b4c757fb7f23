package treestore

// UndoLog records inverse deltas for store mutations so a whole group of
// edits can be reversed atomically. Undo and redo replay deltas through the
// store's normal mutation path, so listeners observe an undo exactly like a
// forward edit.
//
// A nil *UndoLog is valid everywhere a log is accepted and records nothing.
type UndoLog struct {
	store  *Store
	groups []undoGroup
	pos    int // groups[:pos] are applied
	open   *undoGroup
	depth  int
}

type undoGroup struct {
	name   string
	deltas []delta
}

// delta reverses one applied mutation and returns the delta that redoes it.
type delta interface {
	revert(s *Store) delta
}

type setDelta struct {
	rec Handle
	key string
	old any
	had bool
}

func (d setDelta) revert(s *Store) delta {
	cur, had := s.rec(d.rec).props[d.key]
	if d.had {
		s.setProp(d.rec, d.key, d.old)
	} else {
		s.setProp(d.rec, d.key, nil)
	}
	return setDelta{rec: d.rec, key: d.key, old: cur, had: had}
}

type insertDelta struct {
	parent, child Handle
	index         int
}

func (d insertDelta) revert(s *Store) delta {
	s.removeChild(d.parent, d.child, d.index)
	return removeDelta(d)
}

type removeDelta struct {
	parent, child Handle
	index         int
}

func (d removeDelta) revert(s *Store) delta {
	s.insertChild(d.parent, d.child, d.index)
	return insertDelta(d)
}

// NewUndoLog creates an empty undo log for the store.
func (s *Store) NewUndoLog() *UndoLog {
	return &UndoLog{store: s}
}

// Begin opens a named transaction. Mutations recorded until the matching
// End become one undoable unit. Begin while a transaction is open extends
// it, keeping the outermost name; the transaction closes when every Begin
// has been matched by an End.
func (u *UndoLog) Begin(name string) {
	if u == nil {
		return
	}
	if u.open == nil {
		u.open = &undoGroup{name: name}
	}
	u.depth++
}

// End closes the innermost Begin. Empty transactions are dropped.
func (u *UndoLog) End() {
	if u == nil || u.open == nil {
		return
	}
	u.depth--
	if u.depth > 0 {
		return
	}
	g := u.open
	u.open = nil
	if len(g.deltas) == 0 {
		return
	}
	// A new edit discards the redo tail.
	u.groups = append(u.groups[:u.pos], *g)
	u.pos = len(u.groups)
}

func (u *UndoLog) record(d delta) {
	if u == nil {
		return
	}
	if u.open != nil {
		u.open.deltas = append(u.open.deltas, d)
		return
	}
	// Mutation outside a transaction forms its own group.
	u.groups = append(u.groups[:u.pos], undoGroup{deltas: []delta{d}})
	u.pos = len(u.groups)
}

// CanUndo reports whether there is an applied group to reverse.
func (u *UndoLog) CanUndo() bool { return u != nil && u.pos > 0 }

// CanRedo reports whether there is a reversed group to reapply.
func (u *UndoLog) CanRedo() bool { return u != nil && u.pos < len(u.groups) }

// Undo reverses the most recent group, newest delta first.
func (u *UndoLog) Undo() bool {
	if !u.CanUndo() {
		return false
	}
	u.pos--
	g := &u.groups[u.pos]
	redo := make([]delta, len(g.deltas))
	for i := len(g.deltas) - 1; i >= 0; i-- {
		redo[len(g.deltas)-1-i] = g.deltas[i].revert(u.store)
	}
	g.deltas = redo
	return true
}

// Redo reapplies the most recently undone group.
func (u *UndoLog) Redo() bool {
	if !u.CanRedo() {
		return false
	}
	g := &u.groups[u.pos]
	undo := make([]delta, len(g.deltas))
	for i := len(g.deltas) - 1; i >= 0; i-- {
		undo[len(g.deltas)-1-i] = g.deltas[i].revert(u.store)
	}
	g.deltas = undo
	u.pos++
	return true
}
