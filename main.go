package main

import (
	"bytes"
	"crypto/sha256"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/beatfold/midiseq/internal/clip"
	"github.com/beatfold/midiseq/internal/file"
	"github.com/beatfold/midiseq/internal/midilist"
	"github.com/beatfold/midiseq/internal/tempomap"
	"github.com/beatfold/midiseq/internal/treestore"
)

var (
	i           = flag.String("i", "", "input file name")
	o           = flag.String("o", "", "output file name")
	optionsFile = flag.String("options", "", "YAML options file; explicit flags take precedence over its values")
	saveOptions = flag.String("save_options", "", "write the merged options back out as a reusable options file")
	track       = flag.Int("track", 0, "index of the imported track to render")
	channel     = flag.Int("channel", 0, "override the MIDI channel (1-16)")
	loopStart   = flag.Float64("loop_start", 0, "loop start position in beats")
	loopLength  = flag.Float64("loop_length", 0, "loop length in beats (0 disables looping)")
	loopType    = flag.String("loop_type", "", "loop policy: all or subsequent")
	length      = flag.Float64("length", 0, "rendered length in beats (default: song length)")
	quantise    = flag.Float64("quantise", 0, "quantise grid in beats (0 disables)")
	strength    = flag.Float64("quantise_strength", 1, "quantise strength from 0 to 1")
	mpe         = flag.Bool("mpe", false, "render MPE output (auto-detected from the input if unset)")
)

// flagOptions collects only the flags actually given on the command line,
// so merging with a file leaves its values in place for the rest.
func flagOptions() file.Options {
	opts := file.Options{InputFile: *i, OutputFile: *o, LoopType: *loopType}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "track":
			opts.Track = track
		case "channel":
			opts.Channel = channel
		case "loop_start":
			opts.LoopStartBeats = loopStart
		case "loop_length":
			opts.LoopLengthBeats = loopLength
		case "length":
			opts.LengthBeats = length
		case "quantise":
			opts.QuantiseGrid = quantise
		case "quantise_strength":
			opts.QuantiseStrength = strength
		case "mpe":
			opts.MPE = mpe
		}
	})
	return opts
}

func buildClip(options file.Options, mid *smf.SMF) (*clip.Clip, error) {
	store := treestore.New()
	lists, tm, songLength, err := midilist.ImportSMF(store, mid, nil)
	if err != nil {
		return nil, fmt.Errorf("could not import %v: %v", options.InputFile, err)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%v contains no playable tracks", options.InputFile)
	}
	trackIndex := 0
	if options.Track != nil {
		trackIndex = *options.Track
	}
	if trackIndex < 0 || trackIndex >= len(lists) {
		return nil, fmt.Errorf("track index %d out of range: %v has %d tracks", trackIndex, options.InputFile, len(lists))
	}
	list := lists[trackIndex]
	list.SetImportedFileName(options.InputFile)
	if name := list.ImportedTrackName(); name != "" {
		log.Printf("Rendering track %d (%v).", trackIndex, name)
	} else {
		log.Printf("Rendering track %d.", trackIndex)
	}

	c := clip.New(store, tm)
	c.AddTake(list)
	c.SetOriginalLengthBeats(songLength)
	c.SetLengthBeats(songLength)
	if options.LengthBeats != nil {
		c.SetLengthBeats(*options.LengthBeats)
	}
	if options.Channel != nil {
		if err := c.SetMidiChannel(*options.Channel, nil); err != nil {
			return nil, fmt.Errorf("bad channel %d: %v", *options.Channel, err)
		}
	}
	if options.LoopLengthBeats != nil && *options.LoopLengthBeats > 0 {
		start := 0.0
		if options.LoopStartBeats != nil {
			start = *options.LoopStartBeats
		}
		if err := c.SetLoopRangeBeats(start, *options.LoopLengthBeats); err != nil {
			return nil, fmt.Errorf("bad loop range: %v", err)
		}
	}
	switch options.LoopType {
	case "", "subsequent":
		c.SetLoopType(clip.LoopRangeDefinesSubsequentRepetitions)
	case "all":
		c.SetLoopType(clip.LoopRangeDefinesAllRepetitions)
	default:
		return nil, fmt.Errorf("unknown loop type %q (want all or subsequent)", options.LoopType)
	}
	if options.QuantiseGrid != nil {
		q := clip.Quantisation{GridBeats: *options.QuantiseGrid, Strength: 1}
		if options.QuantiseStrength != nil {
			q.Strength = *options.QuantiseStrength
		}
		c.SetQuantisation(q)
	}
	if options.MPE != nil {
		c.SetMPEMode(*options.MPE)
	} else if clip.LooksLikeMPE(mid) {
		log.Printf("Input looks like MPE data; rendering MPE output.")
		c.SetMPEMode(true)
	}
	return c, nil
}

const outputTicks = smf.MetricTicks(960)

// writeSMF renders a beat-timed playback sequence as a single-track SMF,
// re-emitting the tempo map so players reproduce the original timing.
func writeSMF(out string, seq midilist.Sequence, tm *tempomap.Map) error {
	type timedMessage struct {
		beat float64
		msg  smf.Message
	}
	var msgs []timedMessage
	for _, ch := range tm.Changes() {
		msgs = append(msgs, timedMessage{ch.Beat, smf.MetaTempo(ch.BPM)})
	}
	for _, sig := range tm.Sigs() {
		msgs = append(msgs, timedMessage{sig.Beat, smf.MetaMeter(uint8(sig.Num), uint8(sig.Denom))})
	}
	for _, ev := range seq {
		msgs = append(msgs, timedMessage{ev.Time, smf.Message(ev.Message)})
	}
	// Metas sort before channel messages at the same beat because they
	// were appended first.
	sort.SliceStable(msgs, func(a, b int) bool {
		return msgs[a].beat < msgs[b].beat
	})

	var track smf.Track
	prevTick := int64(0)
	for _, m := range msgs {
		tick := int64(math.Round(m.beat * float64(outputTicks)))
		track.Add(uint32(tick-prevTick), m.msg)
		prevTick = tick
	}
	track.Close(0)

	newMIDI := smf.New()
	newMIDI.TimeFormat = outputTicks
	newMIDI.Add(track)
	return newMIDI.WriteFile(out)
}

func run() error {
	var options file.Options
	if *optionsFile != "" {
		fileOpts, err := file.ReadOptions(os.DirFS("."), *optionsFile)
		if err != nil {
			return err
		}
		options = *fileOpts
	}
	options = file.Merge(options, flagOptions())
	if options.InputFile == "" || options.OutputFile == "" {
		return fmt.Errorf("need both an input file (-i) and an output file (-o)")
	}

	inBytes, err := os.ReadFile(options.InputFile)
	if err != nil {
		return fmt.Errorf("could not read %v: %v", options.InputFile, err)
	}
	if options.InputFileSHA256 != "" {
		sum := fmt.Sprintf("%x", sha256.Sum256(inBytes))
		if sum != options.InputFileSHA256 {
			return fmt.Errorf("mismatching checksum of %v: got %v, want %v", options.InputFile, sum, options.InputFileSHA256)
		}
	}
	if *saveOptions != "" {
		saved := options
		saved.InputFileSHA256 = fmt.Sprintf("%x", sha256.Sum256(inBytes))
		if err := file.WriteOptions(*saveOptions, &saved); err != nil {
			return err
		}
	}
	mid, err := smf.ReadFrom(bytes.NewReader(inBytes))
	if err != nil {
		return fmt.Errorf("could not parse %v: %v", options.InputFile, err)
	}

	c, err := buildClip(options, mid)
	if err != nil {
		return err
	}
	defer c.Close()

	seq := c.ExportPlayback(midilist.TimeBaseBeats)
	return writeSMF(options.OutputFile, seq, c.Tempo())
}

func main() {
	flag.Parse()
	err := run()
	if err != nil {
		log.Printf("Failed to process: %v", err)
		os.Exit(1)
	}
}
