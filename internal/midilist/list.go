package midilist

import (
	"log"
	"math"

	"github.com/beatfold/midiseq/internal/treestore"
)

// List owns the notes, controller events and sysex events of one take.
// It mirrors the children of a SEQUENCE record and keeps each event
// variant retrievable in beat order. Lists are not copied by value;
// CopyFrom and AddFrom clone the backing records explicitly.
type List struct {
	store *treestore.Store
	rec   treestore.Handle

	notes       *observedSet[*Note]
	controllers *observedSet[*ControllerEvent]
	sysex       *observedSet[*SysexEvent]

	selection *Selection

	importedFileName  string
	importedTrackName string
}

// NewList creates an empty list backed by a fresh detached record.
func NewList(store *treestore.Store) *List {
	return Attach(store, store.NewRecord(KindSequence))
}

// Attach reconstructs a list over an existing SEQUENCE record, reattaching
// to its child records without recreating them.
func Attach(store *treestore.Store, rec treestore.Handle) *List {
	l := &List{store: store, rec: rec}
	l.notes = newObservedSet(store, rec, KindNote,
		func(h treestore.Handle) *Note { return &Note{store: store, rec: h} },
		func(key string) bool { return key == propBeat })
	l.controllers = newObservedSet(store, rec, KindControl,
		func(h treestore.Handle) *ControllerEvent { return &ControllerEvent{store: store, rec: h} },
		func(key string) bool { return key == propBeat })
	l.sysex = newObservedSet(store, rec, KindSysex,
		func(h treestore.Handle) *SysexEvent { return &SysexEvent{store: store, rec: h} },
		func(key string) bool { return key == propBeat })
	detach := func(rec treestore.Handle) {
		if l.selection != nil {
			l.selection.removeRecord(rec)
		}
	}
	l.notes.detach = func(n *Note) { detach(n.rec) }
	l.controllers.detach = func(c *ControllerEvent) { detach(c.rec) }
	l.sysex.detach = func(s *SysexEvent) { detach(s.rec) }
	return l
}

// Close detaches the list from store notifications. The backing records
// stay alive.
func (l *List) Close() {
	l.notes.close()
	l.controllers.close()
	l.sysex.close()
}

func (l *List) Store() *treestore.Store   { return l.store }
func (l *List) Record() treestore.Handle  { return l.rec }
func (l *List) IsEmpty() bool             { return l.store.NumChildren(l.rec) == 0 }
func (l *List) SetSelection(s *Selection) { l.selection = s }

// MidiChannel returns the list's channel, 1..16.
func (l *List) MidiChannel() int { return l.store.GetInt(l.rec, propChannel, 1) }

func (l *List) SetMidiChannel(ch int, u *treestore.UndoLog) error {
	if ch < 1 || ch > 16 {
		return ErrInvalidParameter
	}
	l.store.Set(l.rec, propChannel, ch, u)
	return nil
}

// IsComp reports whether this take is a composite assembled from
// fragments of sibling takes.
func (l *List) IsComp() bool { return l.store.GetBool(l.rec, propComp, false) }

func (l *List) SetComp(comp bool, u *treestore.UndoLog) {
	l.store.Set(l.rec, propComp, comp, u)
}

func (l *List) ImportedFileName() string     { return l.importedFileName }
func (l *List) SetImportedFileName(n string) { l.importedFileName = n }
func (l *List) ImportedTrackName() string    { return l.importedTrackName }

//==============================================================================

// Notes returns all notes in non-decreasing beat order.
func (l *List) Notes() []*Note { return l.notes.sorted() }

// ControllerEvents returns all controller events in beat order.
func (l *List) ControllerEvents() []*ControllerEvent { return l.controllers.sorted() }

// SysexEvents returns all sysex events in beat order.
func (l *List) SysexEvents() []*SysexEvent { return l.sysex.sorted() }

func (l *List) NumNotes() int { return l.notes.len() }

// NoteForRecord finds the wrapper for a backing record, if it is a member.
func (l *List) NoteForRecord(rec treestore.Handle) *Note {
	n, _ := l.notes.forRecord(rec)
	return n
}

// FirstBeat returns the beat position of the earliest event, 0 if empty.
func (l *List) FirstBeat() float64 {
	first := -1.0
	consider := func(beat float64) {
		if first < 0 || beat < first {
			first = beat
		}
	}
	if ns := l.Notes(); len(ns) > 0 {
		consider(ns[0].BeatPosition())
	}
	if cs := l.ControllerEvents(); len(cs) > 0 {
		consider(cs[0].BeatPosition())
	}
	if ss := l.SysexEvents(); len(ss) > 0 {
		consider(ss[0].BeatPosition())
	}
	if first < 0 {
		return 0
	}
	return first
}

// LastBeat returns the beat position of the latest event, 0 if empty.
func (l *List) LastBeat() float64 {
	last := 0.0
	consider := func(beat float64) {
		if beat > last {
			last = beat
		}
	}
	if ns := l.Notes(); len(ns) > 0 {
		consider(ns[len(ns)-1].BeatPosition())
	}
	if cs := l.ControllerEvents(); len(cs) > 0 {
		consider(cs[len(cs)-1].BeatPosition())
	}
	if ss := l.SysexEvents(); len(ss) > 0 {
		consider(ss[len(ss)-1].BeatPosition())
	}
	return last
}

// NoteNumberRange returns the lowest and highest pitch in the list.
func (l *List) NoteNumberRange() (lo, hi int) {
	ns := l.Notes()
	if len(ns) == 0 {
		return 0, 0
	}
	lo, hi = ns[0].Pitch(), ns[0].Pitch()
	for _, n := range ns[1:] {
		if p := n.Pitch(); p < lo {
			lo = p
		} else if p > hi {
			hi = p
		}
	}
	return lo, hi
}

//==============================================================================

// AddNote creates a new note. Pitch and velocity must be 0..127 and the
// length positive; violations are rejected before any mutation.
func (l *List) AddNote(pitch int, startBeat, lengthBeats float64, velocity, colour int, u *treestore.UndoLog) (*Note, error) {
	if pitch < 0 || pitch > 127 || velocity < 0 || velocity > 127 || lengthBeats <= 0 || startBeat < 0 {
		return nil, ErrInvalidParameter
	}
	u.Begin("add note")
	defer u.End()
	rec := l.store.NewRecord(KindNote)
	l.store.Set(rec, propPitch, pitch, u)
	l.store.Set(rec, propBeat, startBeat, u)
	l.store.Set(rec, propLength, lengthBeats, u)
	l.store.Set(rec, propVelocity, velocity, u)
	if colour != 0 {
		l.store.Set(rec, propColour, colour, u)
	}
	if err := l.store.AppendChild(l.rec, rec, u); err != nil {
		return nil, err
	}
	n, _ := l.notes.forRecord(rec)
	return n, nil
}

// AddNoteCopy clones an existing note into this list.
func (l *List) AddNoteCopy(src *Note, u *treestore.UndoLog) (*Note, error) {
	return l.AddNote(src.Pitch(), src.StartBeat(), src.LengthBeats(), src.Velocity(), src.Colour(), u)
}

// RemoveNote removes the note. Removing a non-member is reported, not
// silently ignored.
func (l *List) RemoveNote(n *Note, u *treestore.UndoLog) error {
	if n == nil || !l.notes.contains(n.rec) {
		return ErrNotAMember
	}
	return l.store.RemoveChild(l.rec, n.rec, u)
}

func (l *List) RemoveAllNotes(u *treestore.UndoLog) {
	u.Begin("remove all notes")
	defer u.End()
	for _, n := range append([]*Note(nil), l.Notes()...) {
		l.store.RemoveChild(l.rec, n.rec, u)
	}
}

//==============================================================================

func (l *List) AddControllerEvent(beat float64, controllerType, value int, u *treestore.UndoLog) (*ControllerEvent, error) {
	return l.AddControllerEventWithMetadata(beat, controllerType, value, 0, u)
}

func (l *List) AddControllerEventWithMetadata(beat float64, controllerType, value, metadata int, u *treestore.UndoLog) (*ControllerEvent, error) {
	if beat < 0 || !validControllerValue(controllerType, value) {
		return nil, ErrInvalidParameter
	}
	u.Begin("add controller event")
	defer u.End()
	rec := l.store.NewRecord(KindControl)
	l.store.Set(rec, propBeat, beat, u)
	l.store.Set(rec, propType, controllerType, u)
	l.store.Set(rec, propValue, value, u)
	if metadata != 0 {
		l.store.Set(rec, propMetadata, metadata, u)
	}
	if err := l.store.AppendChild(l.rec, rec, u); err != nil {
		return nil, err
	}
	c, _ := l.controllers.forRecord(rec)
	return c, nil
}

func validControllerValue(controllerType, value int) bool {
	switch controllerType {
	case ControllerTypePitchBend:
		return value >= 0 && value <= 16383
	default:
		return value >= 0 && value <= 127
	}
}

func (l *List) RemoveControllerEvent(c *ControllerEvent, u *treestore.UndoLog) error {
	if c == nil || !l.controllers.contains(c.rec) {
		return ErrNotAMember
	}
	return l.store.RemoveChild(l.rec, c.rec, u)
}

func (l *List) RemoveAllControllers(u *treestore.UndoLog) {
	u.Begin("remove all controllers")
	defer u.End()
	for _, c := range append([]*ControllerEvent(nil), l.ControllerEvents()...) {
		l.store.RemoveChild(l.rec, c.rec, u)
	}
}

// ContainsController reports whether any event of this controller type
// exists.
func (l *List) ContainsController(controllerType int) bool {
	for _, c := range l.ControllerEvents() {
		if c.Type() == controllerType {
			return true
		}
	}
	return false
}

// ControllerEventAt finds the event of the given type at exactly this
// beat, or nil.
func (l *List) ControllerEventAt(beat float64, controllerType int) *ControllerEvent {
	for _, c := range l.ControllerEvents() {
		if c.Type() == controllerType && c.BeatPosition() == beat {
			return c
		}
	}
	return nil
}

// SetControllerValueAt overwrites the value of the event of this type at
// the exact beat, creating it if none exists.
func (l *List) SetControllerValueAt(controllerType int, beat float64, value int, u *treestore.UndoLog) error {
	if beat < 0 || !validControllerValue(controllerType, value) {
		return ErrInvalidParameter
	}
	if c := l.ControllerEventAt(beat, controllerType); c != nil {
		c.SetValue(value, u)
		return nil
	}
	_, err := l.AddControllerEvent(beat, controllerType, value, u)
	return err
}

// RemoveControllersBetween removes events of the given type with
// firstBeat <= position < lastBeat.
func (l *List) RemoveControllersBetween(controllerType int, firstBeat, lastBeat float64, u *treestore.UndoLog) {
	u.Begin("remove controllers")
	defer u.End()
	for _, c := range append([]*ControllerEvent(nil), l.ControllerEvents()...) {
		b := c.BeatPosition()
		if c.Type() == controllerType && b >= firstBeat && b < lastBeat {
			l.store.RemoveChild(l.rec, c.rec, u)
		}
	}
}

// InsertRepeatedControllerValue writes an evenly spaced ramp of controller
// events from startVal to endVal over [firstBeat, lastBeat), stepping by
// intervalBeats. The range start is inclusive and the end exclusive; the
// last emitted event carries endVal exactly and intermediate values are
// truncated towards zero.
func (l *List) InsertRepeatedControllerValue(controllerType, startVal, endVal int, firstBeat, lastBeat, intervalBeats float64, u *treestore.UndoLog) error {
	if intervalBeats <= 0 || lastBeat <= firstBeat || firstBeat < 0 ||
		!validControllerValue(controllerType, startVal) || !validControllerValue(controllerType, endVal) {
		return ErrInvalidParameter
	}
	// Counting by repeated float addition would drift near lastBeat, so
	// derive the end-exclusive step count arithmetically.
	n := int(math.Ceil((lastBeat-firstBeat)/intervalBeats - 1e-9))
	if n < 1 {
		n = 1
	}
	u.Begin("insert controller ramp")
	defer u.End()
	for i := 0; i < n; i++ {
		val := endVal
		if n > 1 {
			val = startVal + int(float64(endVal-startVal)*float64(i)/float64(n-1))
		}
		if err := l.SetControllerValueAt(controllerType, firstBeat+float64(i)*intervalBeats, val, u); err != nil {
			return err
		}
	}
	return nil
}

//==============================================================================

func (l *List) AddSysexEvent(data []byte, beat float64, u *treestore.UndoLog) (*SysexEvent, error) {
	if beat < 0 {
		return nil, ErrInvalidParameter
	}
	u.Begin("add sysex event")
	defer u.End()
	rec := l.store.NewRecord(KindSysex)
	l.store.Set(rec, propBeat, beat, u)
	l.store.Set(rec, propData, append([]byte(nil), data...), u)
	if err := l.store.AppendChild(l.rec, rec, u); err != nil {
		return nil, err
	}
	s, _ := l.sysex.forRecord(rec)
	return s, nil
}

func (l *List) RemoveSysexEvent(s *SysexEvent, u *treestore.UndoLog) error {
	if s == nil || !l.sysex.contains(s.rec) {
		return ErrNotAMember
	}
	return l.store.RemoveChild(l.rec, s.rec, u)
}

func (l *List) RemoveAllSysexes(u *treestore.UndoLog) {
	u.Begin("remove all sysexes")
	defer u.End()
	for _, s := range append([]*SysexEvent(nil), l.SysexEvents()...) {
		l.store.RemoveChild(l.rec, s.rec, u)
	}
}

//==============================================================================

// Clear removes all events from the list.
func (l *List) Clear(u *treestore.UndoLog) {
	u.Begin("clear")
	defer u.End()
	for _, c := range l.store.Children(l.rec) {
		l.store.RemoveChild(l.rec, c, u)
	}
}

// TrimOutside removes every event whose position lies outside
// [firstBeat, lastBeat]. A note starting inside but ending past lastBeat
// is clipped at the boundary instead of removed. Idempotent.
func (l *List) TrimOutside(firstBeat, lastBeat float64, u *treestore.UndoLog) error {
	if lastBeat < firstBeat {
		return ErrInvalidParameter
	}
	u.Begin("trim")
	defer u.End()
	for _, n := range append([]*Note(nil), l.Notes()...) {
		start := n.StartBeat()
		switch {
		case start < firstBeat || start > lastBeat:
			l.store.RemoveChild(l.rec, n.rec, u)
		case n.EndBeat() > lastBeat:
			if lastBeat == start {
				// Zero-length notes are invalid; drop instead.
				l.store.RemoveChild(l.rec, n.rec, u)
			} else {
				n.SetLengthBeats(lastBeat-start, u)
			}
		}
	}
	for _, c := range append([]*ControllerEvent(nil), l.ControllerEvents()...) {
		if b := c.BeatPosition(); b < firstBeat || b > lastBeat {
			l.store.RemoveChild(l.rec, c.rec, u)
		}
	}
	for _, s := range append([]*SysexEvent(nil), l.SysexEvents()...) {
		if b := s.BeatPosition(); b < firstBeat || b > lastBeat {
			l.store.RemoveChild(l.rec, s.rec, u)
		}
	}
	return nil
}

// MoveAllBeatPositions shifts every event by deltaBeats. Positions that
// would become negative are clamped to zero, since negative beat positions
// are invalid.
func (l *List) MoveAllBeatPositions(deltaBeats float64, u *treestore.UndoLog) {
	u.Begin("move events")
	defer u.End()
	clamped := 0
	move := func(set func(float64, *treestore.UndoLog), beat float64) {
		beat += deltaBeats
		if beat < 0 {
			beat = 0
			clamped++
		}
		set(beat, u)
	}
	for _, n := range l.Notes() {
		move(n.SetStartBeat, n.StartBeat())
	}
	for _, c := range l.ControllerEvents() {
		move(c.SetBeatPosition, c.BeatPosition())
	}
	for _, s := range l.SysexEvents() {
		move(s.SetBeatPosition, s.BeatPosition())
	}
	if clamped > 0 {
		log.Printf("moveAllBeatPositions: clamped %d events at beat 0", clamped)
	}
}

// Rescale multiplies every beat position and note length by factor.
func (l *List) Rescale(factor float64, u *treestore.UndoLog) error {
	if factor <= 0 {
		return ErrInvalidParameter
	}
	u.Begin("rescale")
	defer u.End()
	for _, n := range l.Notes() {
		n.SetStartBeat(n.StartBeat()*factor, u)
		n.SetLengthBeats(n.LengthBeats()*factor, u)
	}
	for _, c := range l.ControllerEvents() {
		c.SetBeatPosition(c.BeatPosition()*factor, u)
	}
	for _, s := range l.SysexEvents() {
		s.SetBeatPosition(s.BeatPosition()*factor, u)
	}
	return nil
}

// CopyFrom clears this list and deep-clones all content of other into it.
// Used for take replacement.
func (l *List) CopyFrom(other *List, u *treestore.UndoLog) {
	u.Begin("replace contents")
	defer u.End()
	l.Clear(u)
	l.store.Set(l.rec, propChannel, other.MidiChannel(), u)
	l.store.Set(l.rec, propComp, other.IsComp(), u)
	l.AddFrom(other, u)
}

// AddFrom deep-clones all events of other into this list. Used for
// merging takes.
func (l *List) AddFrom(other *List, u *treestore.UndoLog) {
	u.Begin("merge contents")
	defer u.End()
	for _, n := range other.Notes() {
		l.AddNoteCopy(n, u)
	}
	for _, c := range other.ControllerEvents() {
		l.AddControllerEventWithMetadata(c.BeatPosition(), c.Type(), c.Value(), c.Metadata(), u)
	}
	for _, s := range other.SysexEvents() {
		l.AddSysexEvent(s.Data(), s.BeatPosition(), u)
	}
}
