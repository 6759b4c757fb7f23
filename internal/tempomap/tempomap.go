// Package tempomap converts between absolute time in seconds and musical
// beat positions over a piecewise-constant tempo curve.
package tempomap

import (
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// TempoChange sets a new tempo from a beat position onwards.
type TempoChange struct {
	Beat float64
	BPM  float64
}

// TimeSig sets a new time signature from a beat position onwards.
type TimeSig struct {
	Beat       float64
	Num, Denom int
}

// Map is a tempo/time-signature map. The zero value is not usable; build
// one with New or FromSMF.
type Map struct {
	changes []TempoChange // sorted by beat, first entry at beat 0
	sigs    []TimeSig
	// secs[i] is the absolute time of changes[i].Beat.
	secs []float64
}

const defaultBPM = 120

// New builds a map from tempo and time-signature changes. A change at beat 0
// is synthesized at 120 BPM / 4-4 if none is given.
func New(changes []TempoChange, sigs []TimeSig) *Map {
	m := &Map{
		changes: append([]TempoChange(nil), changes...),
		sigs:    append([]TimeSig(nil), sigs...),
	}
	sort.SliceStable(m.changes, func(i, j int) bool { return m.changes[i].Beat < m.changes[j].Beat })
	sort.SliceStable(m.sigs, func(i, j int) bool { return m.sigs[i].Beat < m.sigs[j].Beat })
	if len(m.changes) == 0 || m.changes[0].Beat > 0 {
		m.changes = append([]TempoChange{{Beat: 0, BPM: defaultBPM}}, m.changes...)
	}
	if len(m.sigs) == 0 || m.sigs[0].Beat > 0 {
		m.sigs = append([]TimeSig{{Beat: 0, Num: 4, Denom: 4}}, m.sigs...)
	}
	m.secs = make([]float64, len(m.changes))
	for i := 1; i < len(m.changes); i++ {
		prev := m.changes[i-1]
		m.secs[i] = m.secs[i-1] + (m.changes[i].Beat-prev.Beat)*60/prev.BPM
	}
	return m
}

// Constant builds a single-tempo map.
func Constant(bpm float64) *Map {
	return New([]TempoChange{{Beat: 0, BPM: bpm}}, nil)
}

// BeatToSeconds integrates the tempo curve up to the given beat position.
func (m *Map) BeatToSeconds(beat float64) float64 {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Beat > beat }) - 1
	if i < 0 {
		// Before beat 0: extrapolate with the initial tempo.
		i = 0
	}
	return m.secs[i] + (beat-m.changes[i].Beat)*60/m.changes[i].BPM
}

// SecondsToBeat is the inverse of BeatToSeconds.
func (m *Map) SecondsToBeat(t float64) float64 {
	i := sort.Search(len(m.secs), func(i int) bool { return m.secs[i] > t }) - 1
	if i < 0 {
		i = 0
	}
	return m.changes[i].Beat + (t-m.secs[i])*m.changes[i].BPM/60
}

// TempoAt returns the BPM in effect at the given beat.
func (m *Map) TempoAt(beat float64) float64 {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Beat > beat }) - 1
	if i < 0 {
		i = 0
	}
	return m.changes[i].BPM
}

// TimeSigAt returns the time signature in effect at the given beat.
func (m *Map) TimeSigAt(beat float64) (num, denom int) {
	i := sort.Search(len(m.sigs), func(i int) bool { return m.sigs[i].Beat > beat }) - 1
	if i < 0 {
		i = 0
	}
	return m.sigs[i].Num, m.sigs[i].Denom
}

// Changes returns the tempo changes, first entry at beat 0.
func (m *Map) Changes() []TempoChange { return append([]TempoChange(nil), m.changes...) }

// Sigs returns the time-signature changes, first entry at beat 0.
func (m *Map) Sigs() []TimeSig { return append([]TimeSig(nil), m.sigs...) }

// FromSMF extracts tempo and time-signature metas from all tracks.
// Beat positions are quarter notes, converted from metric ticks.
func FromSMF(mid *smf.SMF) *Map {
	ticks, ok := mid.TimeFormat.(smf.MetricTicks)
	if !ok {
		return Constant(defaultBPM)
	}
	quarter := float64(ticks)
	var changes []TempoChange
	var sigs []TimeSig
	for _, t := range mid.Tracks {
		var time int64
		for _, ev := range t {
			time += int64(ev.Delta)
			beat := float64(time) / quarter
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				changes = append(changes, TempoChange{Beat: beat, BPM: bpm})
			}
			var num, denom, cpt, dsqpq uint8
			if ev.Message.GetMetaTimeSig(&num, &denom, &cpt, &dsqpq) {
				sigs = append(sigs, TimeSig{Beat: beat, Num: int(num), Denom: int(denom)})
			}
		}
	}
	return New(changes, sigs)
}
