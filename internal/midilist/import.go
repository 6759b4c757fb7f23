package midilist

import (
	"fmt"
	"log"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/beatfold/midiseq/internal/tempomap"
	"github.com/beatfold/midiseq/internal/treestore"
)

// AbsEvent is one event of an absolute-time sequence, timed in seconds.
type AbsEvent struct {
	Time    float64
	Message smf.Message
}

// ImportSequence merges an absolute-time event sequence into this list.
// Timestamps are converted to beat positions through the tempo map, so a
// tempo curve with mid-sequence changes is integrated rather than assumed
// constant. originTime is the absolute time of this list's beat zero.
func (l *List) ImportSequence(events []AbsEvent, tm *tempomap.Map, originTime float64, u *treestore.UndoLog) error {
	if tm == nil {
		return fmt.Errorf("%w: nil tempo map", ErrInvalidParameter)
	}
	u.Begin("import sequence")
	defer u.End()
	originBeat := tm.SecondsToBeat(originTime)
	beatOf := func(t float64) float64 {
		b := tm.SecondsToBeat(t) - originBeat
		if b < 0 {
			b = 0
		}
		return b
	}

	type pending struct {
		beat     float64
		velocity uint8
	}
	type key struct {
		ch, note uint8
	}
	open := map[key]pending{}
	lastBeat := 0.0

	for _, ev := range events {
		beat := beatOf(ev.Time)
		if beat > lastBeat {
			lastBeat = beat
		}
		msg := ev.Message
		var ch, note, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &note, &vel):
			open[key{ch, note}] = pending{beat: beat, velocity: vel}
		case msg.GetNoteEnd(&ch, &note):
			k := key{ch, note}
			p, ok := open[k]
			if !ok {
				log.Printf("import: note off without note on: channel %d note %d", ch+1, note)
				continue
			}
			delete(open, k)
			length := beat - p.beat
			if length <= 0 {
				length = minNoteLengthBeats
			}
			if _, err := l.AddNote(int(note), p.beat, length, int(p.velocity), 0, u); err != nil {
				return err
			}
		default:
			if err := l.importControlMessage(msg, beat, u); err != nil {
				return err
			}
		}
	}
	// Close dangling notes at the end of the sequence.
	for k, p := range open {
		log.Printf("import: closing unterminated note %d on channel %d", k.note, k.ch+1)
		length := lastBeat - p.beat
		if length <= 0 {
			length = minNoteLengthBeats
		}
		if _, err := l.AddNote(int(k.note), p.beat, length, int(p.velocity), 0, u); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) importControlMessage(msg smf.Message, beat float64, u *treestore.UndoLog) error {
	var ch, cc, val, key uint8
	var rel int16
	var abs uint16
	var prog uint8
	var data []byte
	switch {
	case msg.GetControlChange(&ch, &cc, &val):
		_, err := l.AddControllerEvent(beat, int(cc), int(val), u)
		return err
	case msg.GetProgramChange(&ch, &prog):
		_, err := l.AddControllerEvent(beat, ControllerTypeProgram, int(prog), u)
		return err
	case msg.GetPitchBend(&ch, &rel, &abs):
		_, err := l.AddControllerEvent(beat, ControllerTypePitchBend, int(abs), u)
		return err
	case msg.GetAfterTouch(&ch, &val):
		_, err := l.AddControllerEvent(beat, ControllerTypeAftertouch, int(val), u)
		return err
	case msg.GetPolyAfterTouch(&ch, &key, &val):
		_, err := l.AddControllerEventWithMetadata(beat, ControllerTypeNotePressure, int(val), int(key), u)
		return err
	case msg.GetSysEx(&data):
		_, err := l.AddSysexEvent(data, beat, u)
		return err
	}
	// Metas and anything else are not list content.
	return nil
}

// ImportSMF builds one list per track of a parsed standard MIDI file,
// along with the embedded tempo map and the song length in beats.
// Tracks without any events yield no list.
func ImportSMF(store *treestore.Store, mid *smf.SMF, u *treestore.UndoLog) ([]*List, *tempomap.Map, float64, error) {
	ticks, ok := mid.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, nil, 0, fmt.Errorf("unsupported time format %v", mid.TimeFormat)
	}
	quarter := float64(ticks)
	tm := tempomap.FromSMF(mid)

	var lists []*List
	songLength := 0.0
	for i, track := range mid.Tracks {
		l := NewList(store)
		trackName := ""
		channel := 0
		empty := true

		type key struct {
			ch, note uint8
		}
		type pending struct {
			beat     float64
			velocity uint8
		}
		open := map[key]pending{}

		var time int64
		lastBeat := 0.0
		for _, ev := range track {
			time += int64(ev.Delta)
			beat := float64(time) / quarter
			msg := ev.Message
			var ch, note, vel uint8
			var name string
			switch {
			case msg.GetMetaTrackName(&name):
				trackName = name
			case msg.GetNoteStart(&ch, &note, &vel):
				open[key{ch, note}] = pending{beat: beat, velocity: vel}
				if channel == 0 {
					channel = int(ch) + 1
				}
			case msg.GetNoteEnd(&ch, &note):
				k := key{ch, note}
				p, ok := open[k]
				if !ok {
					log.Printf("import: track %d: note off without note on at beat %v", i, beat)
					continue
				}
				delete(open, k)
				length := beat - p.beat
				if length <= 0 {
					length = minNoteLengthBeats
				}
				if _, err := l.AddNote(int(note), p.beat, length, int(p.velocity), 0, u); err != nil {
					return nil, nil, 0, err
				}
				empty = false
				if beat > lastBeat {
					lastBeat = beat
				}
			default:
				before := l.store.NumChildren(l.rec)
				if err := l.importControlMessage(msg, beat, u); err != nil {
					return nil, nil, 0, err
				}
				if l.store.NumChildren(l.rec) != before {
					empty = false
					if beat > lastBeat {
						lastBeat = beat
					}
				}
				if msg.GetChannel(&ch) && channel == 0 {
					channel = int(ch) + 1
				}
			}
		}
		for k, p := range open {
			log.Printf("import: track %d: closing unterminated note %d", i, k.note)
			length := lastBeat - p.beat
			if length <= 0 {
				length = minNoteLengthBeats
			}
			if _, err := l.AddNote(int(k.note), p.beat, length, int(p.velocity), 0, u); err != nil {
				return nil, nil, 0, err
			}
			empty = false
		}
		if empty {
			l.Close()
			continue
		}
		l.importedTrackName = trackName
		if channel >= 1 && channel <= 16 {
			l.SetMidiChannel(channel, u)
		}
		lists = append(lists, l)
		if lastBeat > songLength {
			songLength = lastBeat
		}
	}
	return lists, tm, songLength, nil
}
