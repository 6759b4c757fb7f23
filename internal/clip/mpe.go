package clip

import (
	"gitlab.com/gomidi/midi/v2/smf"
)

// LooksLikeMPE inspects a parsed MIDI file for MPE-shaped data: notes
// spread over several channels with per-channel pitch bend on the note
// channels. Used to pick the import strategy automatically.
func LooksLikeMPE(mid *smf.SMF) bool {
	noteChannels := map[uint8]bool{}
	bendChannels := map[uint8]bool{}
	for _, track := range mid.Tracks {
		for _, ev := range track {
			var ch, note uint8
			var rel int16
			var abs uint16
			if ev.Message.GetNoteStart(&ch, &note, nil) {
				noteChannels[ch] = true
			}
			if ev.Message.GetPitchBend(&ch, &rel, &abs) {
				bendChannels[ch] = true
			}
		}
	}
	if len(noteChannels) < 3 {
		return false
	}
	bentNoteChannels := 0
	for ch := range noteChannels {
		if bendChannels[ch] {
			bentNoteChannels++
		}
	}
	return bentNoteChannels >= 2
}
