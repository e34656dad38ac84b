// ABOUTME: Tempo and beat grid conversions
// ABOUTME: Converts between musical beats and song seconds
package timeline

import "math"

// DefaultBPM is used when a tempo is unset
const DefaultBPM = 120

// Tempo is a constant tempo map
type Tempo struct {
	BPM float64
}

func (t Tempo) bpm() float64 {
	if t.BPM <= 0 {
		return DefaultBPM
	}
	return t.BPM
}

// SecondsPerBeat returns the length of one beat
func (t Tempo) SecondsPerBeat() float64 {
	return 60 / t.bpm()
}

// BeatsToSeconds converts beats to song seconds
func (t Tempo) BeatsToSeconds(beats float64) float64 {
	return beats * t.SecondsPerBeat()
}

// SecondsToBeats converts song seconds to beats
func (t Tempo) SecondsToBeats(seconds float64) float64 {
	return seconds / t.SecondsPerBeat()
}

// QuantizeBeats snaps beats to a multiple of grid, rounding up when ceil is set
func QuantizeBeats(beats, grid float64, ceil bool) float64 {
	if grid <= 0 {
		return beats
	}
	if ceil {
		return math.Ceil(beats/grid) * grid
	}
	return math.Floor(beats/grid) * grid
}
