package midilist

import (
	"errors"
	"math"
	"testing"

	"github.com/beatfold/midiseq/internal/treestore"
)

func newTestList(t *testing.T) *List {
	t.Helper()
	return NewList(treestore.New())
}

func beats(ns []*Note) []float64 {
	var out []float64
	for _, n := range ns {
		out = append(out, n.StartBeat())
	}
	return out
}

func TestNotesStaySorted(t *testing.T) {
	l := newTestList(t)
	for _, b := range []float64{5, 0, 2, 7, 2, 1} {
		if _, err := l.AddNote(60, b, 1, 100, 0, nil); err != nil {
			t.Fatalf("AddNote(%v): %v", b, err)
		}
	}
	ns := l.Notes()
	for i := 1; i < len(ns); i++ {
		if ns[i].StartBeat() < ns[i-1].StartBeat() {
			t.Fatalf("notes out of order: %v", beats(ns))
		}
	}
	// Equal-beat events keep insertion order (stable sort). The two notes
	// at beat 2 were inserted third and fifth; give them telling pitches.
	l2 := newTestList(t)
	a, _ := l2.AddNote(10, 2, 1, 100, 0, nil)
	b, _ := l2.AddNote(20, 2, 1, 100, 0, nil)
	got := l2.Notes()
	if got[0] != a || got[1] != b {
		t.Error("equal-beat notes lost insertion order")
	}
}

func TestSortedAfterMoveAndRemove(t *testing.T) {
	l := newTestList(t)
	n0, _ := l.AddNote(60, 0, 1, 100, 0, nil)
	l.AddNote(61, 4, 1, 100, 0, nil)
	n2, _ := l.AddNote(62, 8, 1, 100, 0, nil)

	// Moving a note past another must resort on the next read.
	n2.SetStartBeat(2, nil)
	if got := beats(l.Notes()); got[0] != 0 || got[1] != 2 || got[2] != 4 {
		t.Errorf("after move: %v", got)
	}
	if err := l.RemoveNote(n0, nil); err != nil {
		t.Fatalf("RemoveNote: %v", err)
	}
	if got := beats(l.Notes()); len(got) != 2 || got[0] != 2 {
		t.Errorf("after remove: %v", got)
	}
}

func TestAddNoteValidation(t *testing.T) {
	l := newTestList(t)
	tests := []struct {
		name          string
		pitch         int
		start, length float64
		velocity      int
	}{
		{"pitch too high", 128, 0, 1, 100},
		{"pitch negative", -1, 0, 1, 100},
		{"velocity too high", 60, 0, 1, 128},
		{"velocity negative", 60, 0, 1, -3},
		{"zero length", 60, 0, 0, 100},
		{"negative start", 60, -1, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddNote(tt.pitch, tt.start, tt.length, tt.velocity, 0, nil)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if !l.IsEmpty() {
		t.Error("rejected AddNote mutated the list")
	}
}

func TestRemoveNoteNotAMember(t *testing.T) {
	l := newTestList(t)
	other := newTestList(t)
	stray, _ := other.AddNote(60, 0, 1, 100, 0, nil)
	if err := l.RemoveNote(stray, nil); !errors.Is(err, ErrNotAMember) {
		t.Errorf("err = %v, want ErrNotAMember", err)
	}
	if err := l.RemoveNote(nil, nil); !errors.Is(err, ErrNotAMember) {
		t.Errorf("err = %v, want ErrNotAMember", err)
	}
}

func TestFirstLastBeatScenario(t *testing.T) {
	l := newTestList(t)
	var first *Note
	for _, b := range []float64{0, 2, 2, 5} {
		n, err := l.AddNote(60, b, 1, 100, 0, nil)
		if err != nil {
			t.Fatalf("AddNote(%v): %v", b, err)
		}
		if b == 0 {
			first = n
		}
	}
	if got := l.FirstBeat(); got != 0 {
		t.Errorf("FirstBeat = %v, want 0", got)
	}
	if got := l.LastBeat(); got != 5 {
		t.Errorf("LastBeat = %v, want 5", got)
	}
	if err := l.RemoveNote(first, nil); err != nil {
		t.Fatalf("RemoveNote: %v", err)
	}
	if got := l.FirstBeat(); got != 2 {
		t.Errorf("FirstBeat after removal = %v, want 2", got)
	}
}

func TestRescaleInverse(t *testing.T) {
	l := newTestList(t)
	orig := []float64{0, 1.5, 2, 5.25}
	for _, b := range orig {
		l.AddNote(60, b, 0.75, 100, 0, nil)
	}
	l.AddControllerEvent(3.5, 7, 42, nil)

	const f = 1.7
	if err := l.Rescale(f, nil); err != nil {
		t.Fatalf("Rescale: %v", err)
	}
	if err := l.Rescale(1/f, nil); err != nil {
		t.Fatalf("Rescale inverse: %v", err)
	}
	for i, n := range l.Notes() {
		if math.Abs(n.StartBeat()-orig[i]) > 1e-9 {
			t.Errorf("note %d beat = %v, want %v", i, n.StartBeat(), orig[i])
		}
		if math.Abs(n.LengthBeats()-0.75) > 1e-9 {
			t.Errorf("note %d length = %v, want 0.75", i, n.LengthBeats())
		}
	}
	if got := l.ControllerEvents()[0].BeatPosition(); math.Abs(got-3.5) > 1e-9 {
		t.Errorf("controller beat = %v, want 3.5", got)
	}
	if err := l.Rescale(0, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Rescale(0) err = %v, want ErrInvalidParameter", err)
	}
	if err := l.Rescale(-2, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Rescale(-2) err = %v, want ErrInvalidParameter", err)
	}
}

func TestTrimOutside(t *testing.T) {
	l := newTestList(t)
	l.AddNote(60, 0, 1, 100, 0, nil) // before range: removed
	l.AddNote(61, 2, 1, 100, 0, nil) // inside: kept
	l.AddNote(62, 3, 4, 100, 0, nil) // starts inside, ends outside: clipped
	l.AddNote(63, 6, 1, 100, 0, nil) // after range: removed
	l.AddControllerEvent(1, 7, 10, nil)
	l.AddControllerEvent(4, 7, 20, nil)
	l.AddSysexEvent([]byte{1}, 9, nil)

	if err := l.TrimOutside(2, 5, nil); err != nil {
		t.Fatalf("TrimOutside: %v", err)
	}
	ns := l.Notes()
	if len(ns) != 2 {
		t.Fatalf("notes = %d, want 2", len(ns))
	}
	if ns[0].Pitch() != 61 || ns[1].Pitch() != 62 {
		t.Errorf("kept pitches %d, %d", ns[0].Pitch(), ns[1].Pitch())
	}
	if got := ns[1].EndBeat(); got != 5 {
		t.Errorf("clipped note end = %v, want 5", got)
	}
	if cs := l.ControllerEvents(); len(cs) != 1 || cs[0].BeatPosition() != 4 {
		t.Errorf("controllers after trim: %d", len(cs))
	}
	if len(l.SysexEvents()) != 0 {
		t.Error("sysex outside range survived trim")
	}

	// Idempotent: a second application changes nothing.
	if err := l.TrimOutside(2, 5, nil); err != nil {
		t.Fatalf("TrimOutside again: %v", err)
	}
	ns2 := l.Notes()
	if len(ns2) != 2 || ns2[1].EndBeat() != 5 || ns2[0].Pitch() != 61 {
		t.Error("TrimOutside is not idempotent")
	}
}

func TestMoveAllBeatPositionsClampsAtZero(t *testing.T) {
	l := newTestList(t)
	l.AddNote(60, 1, 1, 100, 0, nil)
	l.AddNote(61, 4, 1, 100, 0, nil)
	l.AddControllerEvent(0.5, 7, 10, nil)

	l.MoveAllBeatPositions(-2, nil)
	if got := beats(l.Notes()); got[0] != 0 || got[1] != 2 {
		t.Errorf("notes after move: %v", got)
	}
	if got := l.ControllerEvents()[0].BeatPosition(); got != 0 {
		t.Errorf("controller after move = %v, want 0 (clamped)", got)
	}
}

func TestControllerRampScenario(t *testing.T) {
	l := newTestList(t)
	err := l.InsertRepeatedControllerValue(7, 0, 127, 0, 4, 1, nil)
	if err != nil {
		t.Fatalf("InsertRepeatedControllerValue: %v", err)
	}
	cs := l.ControllerEvents()
	wantBeats := []float64{0, 1, 2, 3}
	wantVals := []int{0, 42, 84, 127}
	if len(cs) != len(wantBeats) {
		t.Fatalf("events = %d, want %d", len(cs), len(wantBeats))
	}
	for i, c := range cs {
		if c.BeatPosition() != wantBeats[i] || c.Value() != wantVals[i] {
			t.Errorf("event %d = (%v, %d), want (%v, %d)",
				i, c.BeatPosition(), c.Value(), wantBeats[i], wantVals[i])
		}
	}
	if err := l.InsertRepeatedControllerValue(7, 0, 127, 0, 4, 0, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero interval err = %v, want ErrInvalidParameter", err)
	}
}

func TestSetControllerValueAt(t *testing.T) {
	l := newTestList(t)
	if err := l.SetControllerValueAt(7, 2, 50, nil); err != nil {
		t.Fatalf("SetControllerValueAt: %v", err)
	}
	if err := l.SetControllerValueAt(7, 2, 90, nil); err != nil {
		t.Fatalf("SetControllerValueAt overwrite: %v", err)
	}
	cs := l.ControllerEvents()
	if len(cs) != 1 {
		t.Fatalf("events = %d, want 1 (overwrite, not duplicate)", len(cs))
	}
	if cs[0].Value() != 90 {
		t.Errorf("value = %d, want 90", cs[0].Value())
	}
	// A different type at the same beat is a separate event.
	l.SetControllerValueAt(11, 2, 30, nil)
	if len(l.ControllerEvents()) != 2 {
		t.Error("different controller type did not create a new event")
	}
	if !l.ContainsController(11) || l.ContainsController(12) {
		t.Error("ContainsController wrong")
	}
}

func TestRemoveControllersBetween(t *testing.T) {
	l := newTestList(t)
	for b := 0.0; b < 8; b++ {
		l.AddControllerEvent(b, 1, 10, nil)
	}
	l.AddControllerEvent(3, 2, 10, nil) // other type, untouched
	l.RemoveControllersBetween(1, 2, 6, nil)
	var kept []float64
	for _, c := range l.ControllerEvents() {
		if c.Type() == 1 {
			kept = append(kept, c.BeatPosition())
		}
	}
	want := []float64{0, 1, 6, 7}
	if len(kept) != len(want) {
		t.Fatalf("kept = %v, want %v", kept, want)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Fatalf("kept = %v, want %v", kept, want)
		}
	}
	if !l.ContainsController(2) {
		t.Error("other controller type removed")
	}
}

func TestCopyFromAndAddFrom(t *testing.T) {
	src := newTestList(t)
	src.AddNote(60, 0, 1, 100, 5, nil)
	src.AddControllerEvent(1, 7, 64, nil)
	src.AddSysexEvent([]byte{0x7E}, 2, nil)
	src.SetMidiChannel(5, nil)

	dst := NewList(src.Store())
	dst.AddNote(40, 9, 1, 50, 0, nil)
	dst.CopyFrom(src, nil)
	if dst.NumNotes() != 1 || dst.Notes()[0].Pitch() != 60 {
		t.Errorf("CopyFrom did not replace content")
	}
	if dst.MidiChannel() != 5 {
		t.Errorf("channel = %d, want 5", dst.MidiChannel())
	}
	// Deep clone: mutating the copy leaves the source alone.
	dst.Notes()[0].SetStartBeat(7, nil)
	if src.Notes()[0].StartBeat() != 0 {
		t.Error("copy shares backing records with source")
	}

	dst.AddFrom(src, nil)
	if dst.NumNotes() != 2 {
		t.Errorf("notes after AddFrom = %d, want 2", dst.NumNotes())
	}
}

func TestUndoReplaysThroughCache(t *testing.T) {
	store := treestore.New()
	u := store.NewUndoLog()
	l := NewList(store)

	u.Begin("add notes")
	l.AddNote(60, 3, 1, 100, 0, u)
	l.AddNote(61, 1, 1, 100, 0, u)
	u.End()
	if got := beats(l.Notes()); got[0] != 1 || got[1] != 3 {
		t.Fatalf("before undo: %v", got)
	}
	u.Undo()
	if l.NumNotes() != 0 {
		t.Errorf("after undo NumNotes = %d, want 0", l.NumNotes())
	}
	u.Redo()
	if got := beats(l.Notes()); len(got) != 2 || got[0] != 1 {
		t.Errorf("after redo: %v", got)
	}
}

func TestSelectionDetachedOnRemoval(t *testing.T) {
	l := newTestList(t)
	sel := NewSelection()
	l.SetSelection(sel)
	n, _ := l.AddNote(60, 0, 1, 100, 0, nil)
	sel.Add(n)
	if !sel.Contains(n) {
		t.Fatal("selection does not contain note")
	}
	if err := l.RemoveNote(n, nil); err != nil {
		t.Fatalf("RemoveNote: %v", err)
	}
	if sel.Len() != 0 {
		t.Error("removed note still referenced by selection")
	}
}

func TestAttachReusesRecords(t *testing.T) {
	store := treestore.New()
	l := NewList(store)
	n, _ := l.AddNote(60, 1, 1, 100, 0, nil)
	rec := l.Record()
	l.Close()

	l2 := Attach(store, rec)
	if l2.NumNotes() != 1 {
		t.Fatalf("reattached NumNotes = %d, want 1", l2.NumNotes())
	}
	if l2.Notes()[0].Record() != n.Record() {
		t.Error("reattach recreated backing records")
	}
}

func TestNoteNumberRange(t *testing.T) {
	l := newTestList(t)
	l.AddNote(64, 0, 1, 100, 0, nil)
	l.AddNote(48, 1, 1, 100, 0, nil)
	l.AddNote(72, 2, 1, 100, 0, nil)
	lo, hi := l.NoteNumberRange()
	if lo != 48 || hi != 72 {
		t.Errorf("NoteNumberRange = %d..%d, want 48..72", lo, hi)
	}
}

func TestTrimUndoneAsOneGroup(t *testing.T) {
	store := treestore.New()
	u := store.NewUndoLog()
	l := NewList(store)
	l.AddNote(60, 0, 1, 100, 0, nil)
	l.AddNote(62, 5, 1, 100, 0, nil)
	l.AddNote(64, 9, 1, 100, 0, nil)

	if err := l.TrimOutside(0, 2, u); err != nil {
		t.Fatalf("TrimOutside: %v", err)
	}
	if got := l.NumNotes(); got != 1 {
		t.Fatalf("after trim NumNotes = %d, want 1", got)
	}
	if !u.Undo() {
		t.Fatal("Undo returned false")
	}
	if got := l.NumNotes(); got != 3 {
		t.Errorf("after single Undo NumNotes = %d, want 3", got)
	}
	u.Redo()
	if got := l.NumNotes(); got != 1 {
		t.Errorf("after Redo NumNotes = %d, want 1", got)
	}
}

func TestAddNoteUndoneAsOneGroup(t *testing.T) {
	store := treestore.New()
	u := store.NewUndoLog()
	l := NewList(store)
	if _, err := l.AddNote(60, 1, 2, 100, 5, u); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if !u.Undo() {
		t.Fatal("Undo returned false")
	}
	if got := l.NumNotes(); got != 0 {
		t.Errorf("after single Undo NumNotes = %d, want 0", got)
	}
	if u.CanUndo() {
		t.Error("CanUndo after undoing the only edit")
	}
}

func TestControllerRampStepCount(t *testing.T) {
	l := newTestList(t)
	// A non-dyadic interval: accumulating 0.1 ten times lands short of 1,
	// so the count has to be derived arithmetically.
	if err := l.InsertRepeatedControllerValue(11, 0, 127, 0, 1, 0.1, nil); err != nil {
		t.Fatalf("InsertRepeatedControllerValue: %v", err)
	}
	cs := l.ControllerEvents()
	if len(cs) != 10 {
		t.Fatalf("ramp emitted %d events, want 10", len(cs))
	}
	if last := cs[len(cs)-1].BeatPosition(); math.Abs(last-0.9) > 1e-9 {
		t.Errorf("last ramp event at %v, want 0.9", last)
	}
	if v := cs[len(cs)-1].Value(); v != 127 {
		t.Errorf("last ramp value = %d, want 127", v)
	}
}
