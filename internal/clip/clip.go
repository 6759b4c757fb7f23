// Package clip models a MIDI timeline clip: an ordered set of takes, loop
// parameters and a cached loop-expanded sequence for playback.
package clip

import (
	"fmt"
	"log"

	"github.com/beatfold/midiseq/internal/midilist"
	"github.com/beatfold/midiseq/internal/tempomap"
	"github.com/beatfold/midiseq/internal/treestore"
)

// LoopedSequenceType selects how loop repetitions relate to the source.
type LoopedSequenceType int

const (
	// LoopRangeDefinesAllRepetitions tiles the loop window from beat 0,
	// including repetition zero.
	LoopRangeDefinesAllRepetitions LoopedSequenceType = iota
	// LoopRangeDefinesSubsequentRepetitions plays the whole source first,
	// then tiles the loop window for everything beyond it.
	LoopRangeDefinesSubsequentRepetitions
)

// CacheState is the looped-sequence cache lifecycle: NoCache until the
// first read, then Cached, marked Stale by any input change.
type CacheState int

const (
	NoCache CacheState = iota
	Cached
	Stale
)

// Level is the clip's volume and mute state. The clip owns it outright;
// collaborators get a non-owning reference bounded by the clip's lifetime.
type Level struct {
	VolumeDB float64
	Mute     bool
}

// Clip owns an ordered sequence of takes, exactly one of which is current,
// plus its loop parameters and the derived looped sequence.
type Clip struct {
	store *treestore.Store
	rec   treestore.Handle
	tempo *tempomap.Map

	takes   []*midilist.List
	current int

	loopStartBeats  float64
	loopLengthBeats float64
	loopType        LoopedSequenceType
	lengthBeats     float64
	originalLength  float64

	quant          Quantisation
	grooveTemplate string
	grooveStrength float64

	level        Level
	mpeMode      bool
	proxyAllowed bool

	cacheState  CacheState
	cachedLoop  *midilist.List
	unwatchTake func()
}

// New creates a clip with one empty take.
func New(store *treestore.Store, tempo *tempomap.Map) *Clip {
	c := &Clip{
		store:        store,
		rec:          store.NewRecord("MIDICLIP"),
		tempo:        tempo,
		level:        Level{VolumeDB: 0},
		proxyAllowed: true,
	}
	c.AddTake(midilist.NewList(store))
	return c
}

// Close detaches the clip and its takes from store notifications.
func (c *Clip) Close() {
	c.dropCache()
	if c.unwatchTake != nil {
		c.unwatchTake()
		c.unwatchTake = nil
	}
	for _, t := range c.takes {
		t.Close()
	}
}

func (c *Clip) Record() treestore.Handle { return c.rec }

// invalidate marks the looped-sequence cache stale. Idempotent; a clip
// that has never built a cache stays in NoCache.
func (c *Clip) invalidate() {
	if c.cacheState == Cached {
		c.cacheState = Stale
	}
}

func (c *Clip) dropCache() {
	if c.cachedLoop != nil {
		c.cachedLoop.Close()
		c.cachedLoop = nil
	}
	if c.cacheState != NoCache {
		c.cacheState = Stale
	}
}

// CacheState exposes the looped-sequence cache state.
func (c *Clip) CacheState() CacheState { return c.cacheState }

// watchCurrentTake re-registers the content listener on the current take,
// so edits to it mark the cache stale. Non-current takes are not watched:
// editing them cannot affect playback.
func (c *Clip) watchCurrentTake() {
	if c.unwatchTake != nil {
		c.unwatchTake()
		c.unwatchTake = nil
	}
	if len(c.takes) == 0 {
		return
	}
	c.unwatchTake = c.store.Listen(c.takes[c.current].Record(), func(treestore.Change) {
		c.invalidate()
	})
}

//==============================================================================

// Sequence returns the current take for editing and playback.
func (c *Clip) Sequence() *midilist.List { return c.takes[c.current] }

// AddTake appends a take and makes it current.
func (c *Clip) AddTake(l *midilist.List) {
	c.takes = append(c.takes, l)
	c.current = len(c.takes) - 1
	c.invalidate()
	c.watchCurrentTake()
}

// CurrentTake returns the index of the current take.
func (c *Clip) CurrentTake() int { return c.current }

// SetCurrentTake switches the current take. It never mutates non-current
// takes; it only invalidates the looped-sequence cache.
func (c *Clip) SetCurrentTake(i int) error {
	if i < 0 || i >= len(c.takes) {
		return fmt.Errorf("take index %d out of range [0, %d)", i, len(c.takes))
	}
	if i == c.current {
		return nil
	}
	c.current = i
	c.invalidate()
	c.watchCurrentTake()
	return nil
}

// NumTakes counts takes, optionally including composite ones.
func (c *Clip) NumTakes(includeComps bool) int {
	if includeComps {
		return len(c.takes)
	}
	n := 0
	for _, t := range c.takes {
		if !t.IsComp() {
			n++
		}
	}
	return n
}

// TakeSequence returns the take at index, or nil.
func (c *Clip) TakeSequence(i int) *midilist.List {
	if i < 0 || i >= len(c.takes) {
		return nil
	}
	return c.takes[i]
}

// HasAnyTakes reports whether more than one take exists.
func (c *Clip) HasAnyTakes() bool { return len(c.takes) > 1 }

// IsCurrentTakeComp reports whether the current take is a composite.
func (c *Clip) IsCurrentTakeComp() bool { return c.takes[c.current].IsComp() }

// TakeDescriptions returns a short description per take for display.
func (c *Clip) TakeDescriptions() []string {
	out := make([]string, len(c.takes))
	for i, t := range c.takes {
		switch {
		case t.IsComp():
			out[i] = fmt.Sprintf("Comp %d", i+1)
		default:
			out[i] = fmt.Sprintf("Take %d", i+1)
		}
	}
	return out
}

// ClearTakes removes every take except the current one.
func (c *Clip) ClearTakes() {
	if len(c.takes) <= 1 {
		return
	}
	cur := c.takes[c.current]
	for _, t := range c.takes {
		if t != cur {
			t.Close()
		}
	}
	c.takes = []*midilist.List{cur}
	c.current = 0
	c.invalidate()
	c.watchCurrentTake()
}

// UnpackTakes splits each take into its own single-take clip, deep-cloning
// the content. The receiver keeps only its current take.
func (c *Clip) UnpackTakes() []*Clip {
	var out []*Clip
	for i, t := range c.takes {
		if i == c.current {
			continue
		}
		nc := New(c.store, c.tempo)
		nc.loopStartBeats = c.loopStartBeats
		nc.loopLengthBeats = c.loopLengthBeats
		nc.loopType = c.loopType
		nc.lengthBeats = c.lengthBeats
		nc.originalLength = c.originalLength
		nc.Sequence().CopyFrom(t, nil)
		out = append(out, nc)
	}
	c.ClearTakes()
	return out
}

//==============================================================================

// MidiChannel returns the current take's channel.
func (c *Clip) MidiChannel() int { return c.Sequence().MidiChannel() }

func (c *Clip) SetMidiChannel(ch int, u *treestore.UndoLog) error {
	return c.Sequence().SetMidiChannel(ch, u)
}

func (c *Clip) SetMPEMode(mpe bool) {
	if c.mpeMode != mpe {
		c.mpeMode = mpe
		c.invalidate()
	}
}
func (c *Clip) MPEMode() bool { return c.mpeMode }

// IsRhythm reports whether this clip plays a rhythm instrument
// (MIDI channel 10).
func (c *Clip) IsRhythm() bool { return c.MidiChannel() == 10 }

// SetUsesProxy enables or disables cached-sequence generation. With the
// proxy disabled, quantisation and groove are applied at export time on
// every read.
func (c *Clip) SetUsesProxy(allowed bool) { c.proxyAllowed = allowed }
func (c *Clip) CanUseProxy() bool         { return c.proxyAllowed }

func (c *Clip) Level() *Level { return &c.level }

func (c *Clip) SetVolumeDB(v float64) {
	if v < -100 {
		v = -100
	} else if v > 0 {
		v = 0
	}
	c.level.VolumeDB = v
}

func (c *Clip) SetMuted(m bool) { c.level.Mute = m }
func (c *Clip) IsMuted() bool   { return c.level.Mute }

//==============================================================================

func (c *Clip) Quantisation() Quantisation { return c.quant }

func (c *Clip) SetQuantisation(q Quantisation) {
	if c.quant != q {
		c.quant = q
		c.invalidate()
	}
}

func (c *Clip) GrooveTemplate() string { return c.grooveTemplate }

func (c *Clip) SetGrooveTemplate(name string) {
	if c.grooveTemplate != name {
		c.grooveTemplate = name
		c.invalidate()
	}
}

func (c *Clip) GrooveStrength() float64 { return c.grooveStrength }

func (c *Clip) SetGrooveStrength(g float64) {
	if g < 0 {
		g = 0
	} else if g > 1 {
		g = 1
	}
	if c.grooveStrength != g {
		c.grooveStrength = g
		c.invalidate()
	}
}

// PitchTempoTrackChanged must be called when the tempo map changes; the
// cached looped sequence depends on it.
func (c *Clip) PitchTempoTrackChanged(tm *tempomap.Map) {
	c.tempo = tm
	c.invalidate()
}

func (c *Clip) Tempo() *tempomap.Map { return c.tempo }

//==============================================================================

func (c *Clip) IsLooping() bool { return c.loopLengthBeats > 0 }

// SetLoopRangeBeats sets the loop window and invalidates the cache.
func (c *Clip) SetLoopRangeBeats(startBeat, lengthBeats float64) error {
	if startBeat < 0 || lengthBeats < 0 {
		return midilist.ErrInvalidParameter
	}
	c.loopStartBeats = startBeat
	c.loopLengthBeats = lengthBeats
	c.invalidate()
	return nil
}

func (c *Clip) DisableLooping() {
	c.loopLengthBeats = 0
	c.invalidate()
}

func (c *Clip) LoopStartBeats() float64  { return c.loopStartBeats }
func (c *Clip) LoopLengthBeats() float64 { return c.loopLengthBeats }

func (c *Clip) LoopType() LoopedSequenceType { return c.loopType }

func (c *Clip) SetLoopType(t LoopedSequenceType) {
	if c.loopType != t {
		c.loopType = t
		c.invalidate()
	}
}

// SetNumberOfLoops sets the clip length to n repetitions of the loop
// window after the first pass.
func (c *Clip) SetNumberOfLoops(n int) {
	if n < 0 || c.loopLengthBeats <= 0 {
		return
	}
	switch c.loopType {
	case LoopRangeDefinesSubsequentRepetitions:
		c.SetLengthBeats(c.originalLength + float64(n)*c.loopLengthBeats)
	default:
		c.SetLengthBeats(float64(n) * c.loopLengthBeats)
	}
}

// LengthBeats is the clip's playback length, the extent loop expansion
// fills.
func (c *Clip) LengthBeats() float64 { return c.lengthBeats }

func (c *Clip) SetLengthBeats(length float64) {
	if length < 0 {
		length = 0
	}
	if c.lengthBeats != length {
		c.lengthBeats = length
		c.invalidate()
	}
}

// OriginalLengthBeats is the source length before looping: the extent the
// first pass plays verbatim under
// LoopRangeDefinesSubsequentRepetitions.
func (c *Clip) OriginalLengthBeats() float64 { return c.originalLength }

func (c *Clip) SetOriginalLengthBeats(length float64) {
	if length < 0 {
		length = 0
	}
	if c.originalLength != length {
		c.originalLength = length
		c.invalidate()
	}
}

//==============================================================================

// LoopedSequence returns the loop-expanded sequence for playback,
// rebuilding if the cache is stale. Stale data is never served.
func (c *Clip) LoopedSequence() *midilist.List {
	if c.cacheState == Cached && c.cachedLoop != nil {
		return c.cachedLoop
	}
	if c.cachedLoop != nil {
		c.cachedLoop.Close()
	}
	c.cachedLoop = c.buildLoopedSequence(c.Sequence())
	c.cacheState = Cached
	return c.cachedLoop
}

// buildLoopedSequence materializes the loop expansion of src into a new
// list. Without looping the result is a plain deep copy.
func (c *Clip) buildLoopedSequence(src *midilist.List) *midilist.List {
	out := midilist.NewList(c.store)
	out.SetMidiChannel(src.MidiChannel(), nil)
	if !c.IsLooping() {
		out.AddFrom(src, nil)
		return out
	}

	length := c.lengthBeats
	if length <= 0 {
		length = src.LastBeat()
	}
	loopStart, loopLen := c.loopStartBeats, c.loopLengthBeats

	pos := 0.0
	if c.loopType == LoopRangeDefinesSubsequentRepetitions {
		// First pass: the whole source, verbatim, clipped to its
		// original length.
		srcLen := c.originalLength
		if srcLen <= 0 {
			srcLen = src.LastBeat()
		}
		if srcLen > length {
			srcLen = length
		}
		c.copyWindow(src, out, 0, srcLen, 0)
		pos = srcLen
	}
	for pos < length {
		span := loopLen
		if pos+span > length {
			span = length - pos
		}
		c.copyWindow(src, out, loopStart, loopStart+span, pos-loopStart)
		pos += loopLen
	}
	return out
}

// copyWindow clones events of src with position in [from, to) into dst,
// shifted by offset. Notes straddling the window end are clipped.
func (c *Clip) copyWindow(src, dst *midilist.List, from, to, offset float64) {
	for _, n := range src.Notes() {
		b := n.StartBeat()
		if b < from || b >= to {
			continue
		}
		length := n.LengthBeats()
		if b+length > to {
			length = to - b
		}
		if length <= 0 {
			continue
		}
		if _, err := dst.AddNote(n.Pitch(), b+offset, length, n.Velocity(), n.Colour(), nil); err != nil {
			log.Printf("loop expansion: skipping note at beat %v: %v", b, err)
		}
	}
	for _, ev := range src.ControllerEvents() {
		b := ev.BeatPosition()
		if b < from || b >= to {
			continue
		}
		if _, err := dst.AddControllerEventWithMetadata(b+offset, ev.Type(), ev.Value(), ev.Metadata(), nil); err != nil {
			log.Printf("loop expansion: skipping controller at beat %v: %v", b, err)
		}
	}
	for _, ev := range src.SysexEvents() {
		b := ev.BeatPosition()
		if b < from || b >= to {
			continue
		}
		if _, err := dst.AddSysexEvent(ev.Data(), b+offset, nil); err != nil {
			log.Printf("loop expansion: skipping sysex at beat %v: %v", b, err)
		}
	}
}

//==============================================================================

// ExportPlayback produces the playback sequence of the looped clip,
// applying quantisation per the clip settings. The result is a plain
// immutable value for the real-time consumer.
func (c *Clip) ExportPlayback(tb midilist.TimeBase) midilist.Sequence {
	src := c.Sequence()
	if c.proxyAllowed {
		src = c.LoopedSequence()
	} else if c.IsLooping() {
		// No proxy: expand without caching, on every read.
		src = c.buildLoopedSequence(c.Sequence())
		defer src.Close()
	}
	return src.ExportPlayback(midilist.ClipContext{
		Tempo:    c.tempo,
		Quantise: c.quantiseFunc(),
	}, tb, c.mpeMode)
}

func (c *Clip) quantiseFunc() func(float64) float64 {
	if !c.quant.Enabled() {
		return nil
	}
	q := c.quant
	return q.Apply
}
