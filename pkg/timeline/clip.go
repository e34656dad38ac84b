// ABOUTME: Timeline data model
// ABOUTME: Clips, tracks and audio file records shared by editors and playback
package timeline

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidClip is returned for clips violating end > start
var ErrInvalidClip = errors.New("invalid clip")

type (
	ClipID      string
	TrackID     string
	AudioFileID string
)

// Clip places a region of an audio file on a track
type Clip struct {
	ID            ClipID      `json:"id" yaml:"id"`
	TrackID       TrackID     `json:"track_id" yaml:"track"`
	AudioFileID   AudioFileID `json:"audio_file_id" yaml:"audio_file"`
	StartBeat     float64     `json:"start_beat" yaml:"start_beat"`
	EndBeat       float64     `json:"end_beat" yaml:"end_beat"`
	OffsetSeconds float64     `json:"offset_seconds" yaml:"offset_seconds"`

	// Gain takes priority over GainDB when both are set
	Gain   *float64 `json:"gain,omitempty" yaml:"gain,omitempty"`
	GainDB *float64 `json:"gain_db,omitempty" yaml:"gain_db,omitempty"`
}

// Validate checks the clip's structural invariants
func (c Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidClip)
	}
	if !(c.EndBeat > c.StartBeat) {
		return fmt.Errorf("%w: %s ends at beat %v before it starts at %v", ErrInvalidClip, c.ID, c.EndBeat, c.StartBeat)
	}
	return nil
}

// DurationBeats returns the clip length in beats
func (c Clip) DurationBeats() float64 {
	return c.EndBeat - c.StartBeat
}

// EffectiveGain returns the linear amplitude the clip should play at
func (c Clip) EffectiveGain() float64 {
	if c.Gain != nil {
		return *c.Gain
	}
	if c.GainDB != nil {
		return math.Pow(10, *c.GainDB/20)
	}
	return 1
}

// Clone returns a deep copy
func (c Clip) Clone() Clip {
	if c.Gain != nil {
		v := *c.Gain
		c.Gain = &v
	}
	if c.GainDB != nil {
		v := *c.GainDB
		c.GainDB = &v
	}
	return c
}

// Track is a mixer channel that clips play through
type Track struct {
	ID     TrackID `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	GainDB float64 `json:"gain_db" yaml:"gain_db"`
}

// Gain returns the track's linear gain
func (t Track) Gain() float64 {
	return math.Pow(10, t.GainDB/20)
}

// AudioFile identifies a source file
type AudioFile struct {
	ID   AudioFileID `json:"id" yaml:"id"`
	Path string      `json:"path,omitempty" yaml:"path"`
	Name string      `json:"name" yaml:"name"`
}

// Float returns a pointer to v, for optional gain fields
func Float(v float64) *float64 {
	return &v
}
