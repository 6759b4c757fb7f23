package treestore

import (
	"bytes"
	"reflect"
	"testing"
)

func TestChildNotifications(t *testing.T) {
	s := New()
	parent := s.NewRecord("SEQUENCE")
	var got []Change
	s.Listen(parent, func(c Change) { got = append(got, c) })

	a := s.NewRecord("NOTE")
	b := s.NewRecord("NOTE")
	if err := s.AppendChild(parent, a, nil); err != nil {
		t.Fatalf("AppendChild(a): %v", err)
	}
	if err := s.AppendChild(parent, b, nil); err != nil {
		t.Fatalf("AppendChild(b): %v", err)
	}
	s.Set(a, "b", 1.5, nil)
	if err := s.RemoveChild(parent, a, nil); err != nil {
		t.Fatalf("RemoveChild(a): %v", err)
	}

	want := []Change{
		{Type: ChildAdded, Parent: parent, Child: a},
		{Type: ChildAdded, Parent: parent, Child: b},
		{Type: PropChanged, Parent: parent, Record: a, Key: "b"},
		{Type: ChildRemoved, Parent: parent, Child: a},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("changes = %+v, want %+v", got, want)
	}
	if kids := s.Children(parent); len(kids) != 1 || kids[0] != b {
		t.Errorf("Children = %v, want [%d]", kids, b)
	}
}

func TestInsertChildOrder(t *testing.T) {
	s := New()
	parent := s.NewRecord("SEQUENCE")
	a := s.NewRecord("NOTE")
	b := s.NewRecord("NOTE")
	c := s.NewRecord("NOTE")
	s.AppendChild(parent, a, nil)
	s.AppendChild(parent, c, nil)
	if err := s.InsertChild(parent, b, 1, nil); err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	if got := s.Children(parent); !reflect.DeepEqual(got, []Handle{a, b, c}) {
		t.Errorf("Children = %v, want [%d %d %d]", got, a, b, c)
	}
	if err := s.InsertChild(parent, a, 0, nil); err == nil {
		t.Error("InsertChild of attached record should fail")
	}
}

func TestRemoveChildNotAMember(t *testing.T) {
	s := New()
	parent := s.NewRecord("SEQUENCE")
	stray := s.NewRecord("NOTE")
	if err := s.RemoveChild(parent, stray, nil); err == nil {
		t.Error("RemoveChild of non-member should fail")
	}
}

func TestUndoRedoGroup(t *testing.T) {
	s := New()
	u := s.NewUndoLog()
	parent := s.NewRecord("SEQUENCE")
	n := s.NewRecord("NOTE")

	u.Begin("add note")
	s.AppendChild(parent, n, u)
	s.Set(n, "p", 60, u)
	s.Set(n, "b", 2.0, u)
	u.End()

	var notified int
	s.Listen(parent, func(Change) { notified++ })

	if !u.Undo() {
		t.Fatal("Undo returned false")
	}
	if s.NumChildren(parent) != 0 {
		t.Errorf("after undo NumChildren = %d, want 0", s.NumChildren(parent))
	}
	if notified == 0 {
		t.Error("undo produced no notifications")
	}
	if !u.Redo() {
		t.Fatal("Redo returned false")
	}
	if s.NumChildren(parent) != 1 {
		t.Errorf("after redo NumChildren = %d, want 1", s.NumChildren(parent))
	}
	if got := s.GetInt(n, "p", -1); got != 60 {
		t.Errorf("after redo p = %d, want 60", got)
	}
	if got := s.GetFloat(n, "b", -1); got != 2.0 {
		t.Errorf("after redo b = %v, want 2", got)
	}
}

func TestUndoDiscardsRedoTail(t *testing.T) {
	s := New()
	u := s.NewUndoLog()
	r := s.NewRecord("SEQUENCE")
	s.Set(r, "x", 1, u)
	s.Set(r, "x", 2, u)
	u.Undo()
	s.Set(r, "x", 3, u)
	if u.CanRedo() {
		t.Error("CanRedo after new edit, want redo tail discarded")
	}
	u.Undo()
	if got := s.GetInt(r, "x", -1); got != 1 {
		t.Errorf("x = %d, want 1", got)
	}
}

func TestNilUndoLog(t *testing.T) {
	s := New()
	r := s.NewRecord("SEQUENCE")
	var u *UndoLog
	u.Begin("noop")
	s.Set(r, "x", 1, u)
	u.End()
	if u.CanUndo() {
		t.Error("nil UndoLog CanUndo = true")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	s := New()
	root := s.NewRecord("SEQUENCE")
	s.Set(root, "channel", 3, nil)
	n := s.NewRecord("NOTE")
	s.Set(n, "b", 1.25, nil)
	s.Set(n, "p", 64, nil)
	s.AppendChild(root, n, nil)
	sx := s.NewRecord("SYSEX")
	s.Set(sx, "data", []byte{0xF0, 0x7E, 0xF7}, nil)
	s.AppendChild(root, sx, nil)

	var buf bytes.Buffer
	if err := s.SaveYAML(&buf, root); err != nil {
		t.Fatalf("SaveYAML: %v", err)
	}
	s2 := New()
	root2, err := s2.LoadYAML(&buf)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if s2.Kind(root2) != "SEQUENCE" || s2.GetInt(root2, "channel", 0) != 3 {
		t.Errorf("root kind/channel = %v/%d", s2.Kind(root2), s2.GetInt(root2, "channel", 0))
	}
	kids := s2.Children(root2)
	if len(kids) != 2 {
		t.Fatalf("children = %d, want 2", len(kids))
	}
	if got := s2.GetFloat(kids[0], "b", 0); got != 1.25 {
		t.Errorf("note beat = %v, want 1.25", got)
	}
	if got := s2.GetBytes(kids[1], "data"); !bytes.Equal(got, []byte{0xF0, 0x7E, 0xF7}) {
		t.Errorf("sysex data = %x", got)
	}
}

func TestNestedTransactionsUndoTogether(t *testing.T) {
	s := New()
	u := s.NewUndoLog()
	rec := s.NewRecord("SEQUENCE")

	u.Begin("outer")
	s.Set(rec, "a", 1, u)
	u.Begin("inner")
	s.Set(rec, "b", 2, u)
	u.End() // closes only the inner Begin
	s.Set(rec, "c", 3, u)
	u.End()

	if !u.Undo() {
		t.Fatal("Undo returned false")
	}
	for _, key := range []string{"a", "b", "c"} {
		if got := s.GetInt(rec, key, -1); got != -1 {
			t.Errorf("after undo %q = %d, want unset", key, got)
		}
	}
	if u.CanUndo() {
		t.Error("CanUndo after undoing the only transaction")
	}
	u.Redo()
	if got := s.GetInt(rec, "c", -1); got != 3 {
		t.Errorf("after redo c = %d, want 3", got)
	}
}
