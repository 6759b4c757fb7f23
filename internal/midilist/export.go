package midilist

import (
	"log"
	"sort"

	"gitlab.com/gomidi/midi/v2"

	"github.com/beatfold/midiseq/internal/tempomap"
)

// TimeBase selects the time format of an exported sequence.
type TimeBase int

const (
	// TimeBaseSeconds produces event times in seconds on the timeline.
	TimeBaseSeconds TimeBase = iota
	// TimeBaseBeats produces beat positions with quantisation applied.
	TimeBaseBeats
	// TimeBaseBeatsRaw produces beat positions with no quantisation or
	// groove.
	TimeBaseBeatsRaw
)

// Default MPE per-note initial values.
const (
	DefaultInitialTimbreValue    = 0.5
	DefaultInitialPitchBendValue = 0.0
	DefaultInitialPressureValue  = 0.0
)

// PlaybackEvent is one timed message of an exported sequence.
type PlaybackEvent struct {
	Time    float64
	Message midi.Message
}

// Sequence is an exported, immutable playback sequence. Once returned it
// is never mutated, so the real-time consumer may read it without
// synchronization.
type Sequence []PlaybackEvent

// ClipContext supplies the clip-level settings export needs.
type ClipContext struct {
	Tempo *tempomap.Map
	// Quantise adjusts a beat position; nil means none. Ignored for
	// TimeBaseBeatsRaw.
	Quantise func(beat float64) float64
	// OffsetBeats is added to every position, placing the list on the
	// timeline.
	OffsetBeats float64
}

// A clipped note still needs a nonzero sounding length.
const minNoteLengthBeats = 1.0 / 512

type seqItem struct {
	beat    float64
	noteOff bool
	msg     midi.Message
}

// ExportPlayback produces the playback sequence the audio graph consumes.
// Note on/off pairs are correctly nested, controllers and sysex are
// interleaved in order, and with generateMPE each note gets its own member
// channel with per-note expression initialized to the documented defaults.
// Malformed events are skipped and logged, never propagated: the real-time
// consumer performs no validation.
func (l *List) ExportPlayback(ctx ClipContext, tb TimeBase, generateMPE bool) Sequence {
	q := ctx.Quantise
	if tb == TimeBaseBeatsRaw {
		q = nil
	}
	pos := func(beat float64) float64 {
		if q != nil {
			beat = q(beat)
		}
		return beat + ctx.OffsetBeats
	}
	ch := uint8(l.MidiChannel() - 1)

	var items []seqItem
	var alloc mpeAllocator
	// Active notes per {channel, pitch}. The consumer cannot handle a
	// second note-on for a sounding pitch, so overlaps are corrected
	// here: the earlier note is truncated at the later one's start.
	type noteKey struct {
		ch, pitch uint8
	}
	type activeNote struct {
		onBeat float64
		offIdx int
	}
	active := map[noteKey]activeNote{}
	for _, n := range l.Notes() {
		pitch, vel := n.Pitch(), n.Velocity()
		if pitch < 0 || pitch > 127 || vel < 0 || vel > 127 {
			log.Printf("export: skipping note with pitch %d velocity %d", pitch, vel)
			continue
		}
		on := pos(n.StartBeat())
		off := pos(n.EndBeat())
		if off <= on {
			off = on + minNoteLengthBeats
		}
		noteCh := ch
		if generateMPE {
			noteCh = alloc.allocate(on, off)
		}
		k := noteKey{noteCh, uint8(pitch)}
		if a, ok := active[k]; ok && items[a.offIdx].beat > on {
			if on <= a.onBeat {
				// Same start as the sounding note; an off at its own
				// on would invert the pair, so drop the duplicate.
				log.Printf("export: %v: dropping duplicate note %d on channel %d at %v", ErrIntegrity, pitch, noteCh+1, on)
				continue
			}
			log.Printf("export: %v: truncating overlapping note %d on channel %d at %v", ErrIntegrity, pitch, noteCh+1, on)
			items[a.offIdx].beat = on
		}
		if generateMPE {
			// Per-note expression defaults precede the note start.
			items = append(items,
				seqItem{beat: on, msg: midi.Pitchbend(noteCh, pitchBendValue(DefaultInitialPitchBendValue))},
				seqItem{beat: on, msg: midi.ControlChange(noteCh, timbreController, controllerValue(DefaultInitialTimbreValue))},
				seqItem{beat: on, msg: midi.AfterTouch(noteCh, controllerValue(DefaultInitialPressureValue))},
			)
		}
		items = append(items,
			seqItem{beat: on, msg: midi.NoteOn(noteCh, uint8(pitch), uint8(vel))},
			seqItem{beat: off, noteOff: true, msg: midi.NoteOff(noteCh, uint8(pitch))},
		)
		active[k] = activeNote{onBeat: on, offIdx: len(items) - 1}
	}
	for _, c := range l.ControllerEvents() {
		msg, ok := controllerMessage(ch, c)
		if !ok {
			log.Printf("export: skipping controller type %#x value %d", c.Type(), c.Value())
			continue
		}
		items = append(items, seqItem{beat: pos(c.BeatPosition()), msg: msg})
	}
	for _, s := range l.SysexEvents() {
		items = append(items, seqItem{beat: pos(s.BeatPosition()), msg: midi.SysEx(s.Data())})
	}

	// Stable by beat, note offs first within a beat so re-struck pitches
	// never overlap.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].beat != items[j].beat {
			return items[i].beat < items[j].beat
		}
		return items[i].noteOff && !items[j].noteOff
	})

	seq := make(Sequence, 0, len(items))
	for _, it := range items {
		t := it.beat
		if tb == TimeBaseSeconds && ctx.Tempo != nil {
			t = ctx.Tempo.BeatToSeconds(t)
		}
		seq = append(seq, PlaybackEvent{Time: t, Message: it.msg})
	}
	return seq
}

// timbreController is MPE CC74 (sound controller 5).
const timbreController = 74

func controllerValue(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 127
	}
	return uint8(v*127 + 0.5)
}

func pitchBendValue(v float64) int16 {
	if v <= -1 {
		return -8192
	}
	if v >= 1 {
		return 8191
	}
	return int16(v * 8191)
}

func controllerMessage(ch uint8, c *ControllerEvent) (midi.Message, bool) {
	v := c.Value()
	switch t := c.Type(); {
	case t >= 0 && t <= 127:
		if v < 0 || v > 127 {
			return nil, false
		}
		return midi.ControlChange(ch, uint8(t), uint8(v)), true
	case t == ControllerTypeProgram:
		if v < 0 || v > 127 {
			return nil, false
		}
		return midi.ProgramChange(ch, uint8(v)), true
	case t == ControllerTypePitchBend:
		if v < 0 || v > 16383 {
			return nil, false
		}
		return midi.Pitchbend(ch, int16(v-8192)), true
	case t == ControllerTypeAftertouch:
		if v < 0 || v > 127 {
			return nil, false
		}
		return midi.AfterTouch(ch, uint8(v)), true
	case t == ControllerTypeNotePressure:
		key := c.Metadata()
		if v < 0 || v > 127 || key < 0 || key > 127 {
			return nil, false
		}
		return midi.PolyAfterTouch(ch, uint8(key), uint8(v)), true
	}
	return nil, false
}
