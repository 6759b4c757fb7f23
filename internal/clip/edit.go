package clip

import (
	"math"

	"github.com/beatfold/midiseq/internal/midilist"
	"github.com/beatfold/midiseq/internal/treestore"
)

// MergeInSequence merges an absolute-time event sequence into the current
// take, e.g. at the end of a recording pass.
func (c *Clip) MergeInSequence(events []midilist.AbsEvent, originTime float64, u *treestore.UndoLog) error {
	return c.Sequence().ImportSequence(events, c.tempo, originTime, u)
}

// AddRecordedTake imports an absolute-time sequence as a fresh take and
// makes it current, as punch-in recording does.
func (c *Clip) AddRecordedTake(events []midilist.AbsEvent, originTime float64, u *treestore.UndoLog) error {
	l := midilist.NewList(c.store)
	if err := l.ImportSequence(events, c.tempo, originTime, u); err != nil {
		l.Close()
		return err
	}
	c.AddTake(l)
	return nil
}

// TrimBeyondEnds removes events of the current take outside the clip
// boundaries.
func (c *Clip) TrimBeyondEnds(beyondStart, beyondEnd bool, u *treestore.UndoLog) error {
	first := math.Inf(-1)
	last := math.Inf(1)
	if beyondStart {
		first = 0
	}
	if beyondEnd {
		last = c.lengthBeats
	}
	return c.Sequence().TrimOutside(first, last, u)
}

// ExtendStart moves the clip start earlier by deltaBeats, shifting the
// current take's events later to keep their timeline positions and
// growing the clip length to match.
func (c *Clip) ExtendStart(deltaBeats float64, u *treestore.UndoLog) error {
	if deltaBeats < 0 {
		return midilist.ErrInvalidParameter
	}
	c.Sequence().MoveAllBeatPositions(deltaBeats, u)
	c.SetLengthBeats(c.lengthBeats + deltaBeats)
	c.SetOriginalLengthBeats(c.originalLength + deltaBeats)
	return nil
}

// Rescale multiplies all beat timing of the clip by factor: every take,
// the loop window and the clip lengths. Used when tempo changes reflow
// the timeline.
func (c *Clip) Rescale(factor float64, u *treestore.UndoLog) error {
	if factor <= 0 {
		return midilist.ErrInvalidParameter
	}
	u.Begin("rescale clip")
	defer u.End()
	for _, t := range c.takes {
		if err := t.Rescale(factor, u); err != nil {
			return err
		}
	}
	c.loopStartBeats *= factor
	c.loopLengthBeats *= factor
	c.lengthBeats *= factor
	c.originalLength *= factor
	c.invalidate()
	return nil
}

// LegatoNote lengthens or shortens a note of the current take to touch
// the start of the next note, or maxEndBeat if it is the last one.
func (c *Clip) LegatoNote(note *midilist.Note, maxEndBeat float64, u *treestore.UndoLog) error {
	seq := c.Sequence()
	if seq.NoteForRecord(note.Record()) == nil {
		return midilist.ErrNotAMember
	}
	end := maxEndBeat
	for _, n := range seq.Notes() {
		if n.StartBeat() > note.StartBeat() {
			end = n.StartBeat()
			break
		}
	}
	if end <= note.StartBeat() {
		return midilist.ErrInvalidParameter
	}
	return note.SetLengthBeats(end-note.StartBeat(), u)
}
