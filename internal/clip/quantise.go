package clip

import "math"

// Quantisation snaps beat positions to a grid with adjustable strength.
// The zero value is disabled.
type Quantisation struct {
	// GridBeats is the snap spacing in beats; 0 disables quantisation.
	GridBeats float64
	// Strength blends between the raw position (0) and the snapped
	// position (1).
	Strength float64
}

func (q Quantisation) Enabled() bool { return q.GridBeats > 0 }

// Apply moves a beat position towards its nearest grid line.
func (q Quantisation) Apply(beat float64) float64 {
	if !q.Enabled() {
		return beat
	}
	s := q.Strength
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	snapped := math.Round(beat/q.GridBeats) * q.GridBeats
	return beat + (snapped-beat)*s
}
