// ABOUTME: Collaborator seams for the playback engine
// ABOUTME: Hardware clock/graph device and the read side of the shared timeline
package engine

import (
	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/mixer"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// Device is the hardware clock and mixing graph the engine schedules against.
// *mixer.Graph implements it.
type Device interface {
	// Now returns hardware time in seconds
	Now() float64
	Suspended() bool
	Resume()

	Master() *mixer.Gain
	NewGain(parent *mixer.Gain) *mixer.Gain
	NewAnalyser(node *mixer.Gain, size int) *mixer.Analyser

	// Start sounds buf into dest at hardware time when, trimmed to
	// [offset, offset+duration) of the file
	Start(buf *audio.Buffer, dest *mixer.Gain, when, offset, duration float64, onEnded func()) (*mixer.Source, error)
}

// Timeline is the read-only view of the shared arrangement.
// *timeline.Store implements it.
type Timeline interface {
	Clip(id timeline.ClipID) (timeline.Clip, bool)
	Snapshot() timeline.Snapshot
	Buffer(id timeline.AudioFileID) (*audio.Buffer, bool)
	Subscribe(fn func(timeline.Event)) (unsubscribe func())
}

var (
	_ Device   = (*mixer.Graph)(nil)
	_ Timeline = (*timeline.Store)(nil)
)
