// Package midilist is a container for MIDI events (notes, controllers,
// sysex) kept in beat order over a treestore-backed record tree. It is the
// editing and playback-export core used by clips.
package midilist

import (
	"github.com/beatfold/midiseq/internal/treestore"
)

// Record kinds used by lists and their events.
const (
	KindSequence treestore.Kind = "SEQUENCE"
	KindNote     treestore.Kind = "NOTE"
	KindControl  treestore.Kind = "CONTROL"
	KindSysex    treestore.Kind = "SYSEX"
)

// Property keys. Kept short since every event record carries them.
const (
	propBeat     = "b"
	propPitch    = "p"
	propLength   = "l"
	propVelocity = "v"
	propColour   = "c"
	propType     = "type"
	propValue    = "val"
	propMetadata = "metadata"
	propData     = "data"
	propChannel  = "channel"
	propComp     = "comp"
)

// TimedEvent is the common capability of notes, controller events and
// sysex events.
type TimedEvent interface {
	BeatPosition() float64
	Record() treestore.Handle
}

// Note is a single MIDI note. Identity is tied to its backing record:
// the same record always yields the same wrapper within a list.
type Note struct {
	store *treestore.Store
	rec   treestore.Handle
}

func (n *Note) Record() treestore.Handle { return n.rec }
func (n *Note) BeatPosition() float64    { return n.store.GetFloat(n.rec, propBeat, 0) }
func (n *Note) StartBeat() float64       { return n.BeatPosition() }
func (n *Note) LengthBeats() float64     { return n.store.GetFloat(n.rec, propLength, 0) }
func (n *Note) EndBeat() float64         { return n.StartBeat() + n.LengthBeats() }
func (n *Note) Pitch() int               { return n.store.GetInt(n.rec, propPitch, 0) }
func (n *Note) Velocity() int            { return n.store.GetInt(n.rec, propVelocity, 0) }
func (n *Note) Colour() int              { return n.store.GetInt(n.rec, propColour, 0) }

// NoteNumber returns the pitch; it exists so notes can be sorted by note
// number alongside other event types.
func (n *Note) NoteNumber() int { return n.Pitch() }

func (n *Note) SetStartBeat(beat float64, u *treestore.UndoLog) {
	if beat < 0 {
		beat = 0
	}
	n.store.Set(n.rec, propBeat, beat, u)
}

func (n *Note) SetLengthBeats(length float64, u *treestore.UndoLog) error {
	if length <= 0 {
		return ErrInvalidParameter
	}
	n.store.Set(n.rec, propLength, length, u)
	return nil
}

func (n *Note) SetPitch(pitch int, u *treestore.UndoLog) error {
	if pitch < 0 || pitch > 127 {
		return ErrInvalidParameter
	}
	n.store.Set(n.rec, propPitch, pitch, u)
	return nil
}

func (n *Note) SetVelocity(velocity int, u *treestore.UndoLog) error {
	if velocity < 0 || velocity > 127 {
		return ErrInvalidParameter
	}
	n.store.Set(n.rec, propVelocity, velocity, u)
	return nil
}

func (n *Note) SetColour(colour int, u *treestore.UndoLog) {
	n.store.Set(n.rec, propColour, colour, u)
}

// Controller pseudo-types beyond the plain CC numbers 0..127.
const (
	ControllerTypeProgram      = 0x101
	ControllerTypePitchBend    = 0x102 // value 0..16383, 8192 = centre
	ControllerTypeAftertouch   = 0x103
	ControllerTypeNotePressure = 0x104 // metadata holds the note number
)

// ControllerEvent is a controller change at a beat position. Metadata is
// free-form; MPE import stores the per-note id there.
type ControllerEvent struct {
	store *treestore.Store
	rec   treestore.Handle
}

func (c *ControllerEvent) Record() treestore.Handle { return c.rec }
func (c *ControllerEvent) BeatPosition() float64    { return c.store.GetFloat(c.rec, propBeat, 0) }
func (c *ControllerEvent) Type() int                { return c.store.GetInt(c.rec, propType, 0) }
func (c *ControllerEvent) Value() int               { return c.store.GetInt(c.rec, propValue, 0) }
func (c *ControllerEvent) Metadata() int            { return c.store.GetInt(c.rec, propMetadata, 0) }

func (c *ControllerEvent) SetBeatPosition(beat float64, u *treestore.UndoLog) {
	if beat < 0 {
		beat = 0
	}
	c.store.Set(c.rec, propBeat, beat, u)
}

func (c *ControllerEvent) SetValue(value int, u *treestore.UndoLog) {
	c.store.Set(c.rec, propValue, value, u)
}

// SysexEvent is a raw system-exclusive payload at a beat position.
type SysexEvent struct {
	store *treestore.Store
	rec   treestore.Handle
}

func (s *SysexEvent) Record() treestore.Handle { return s.rec }
func (s *SysexEvent) BeatPosition() float64    { return s.store.GetFloat(s.rec, propBeat, 0) }
func (s *SysexEvent) Data() []byte             { return s.store.GetBytes(s.rec, propData) }

func (s *SysexEvent) SetBeatPosition(beat float64, u *treestore.UndoLog) {
	if beat < 0 {
		beat = 0
	}
	s.store.Set(s.rec, propBeat, beat, u)
}
