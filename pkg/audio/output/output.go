// ABOUTME: Audio output interface definition
// ABOUTME: Hardware backends pull rendered frames and apply master volume
package output

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Renderer produces interleaved float32 frames on demand. Each call advances
// the renderer's clock, so the output device paces playback.
// *mixer.Graph implements it.
type Renderer interface {
	io.Reader
	Render(out []float32)
	SampleRate() int
	Channels() int
}

// Output represents an audio output device
type Output interface {
	// Start opens the device at the renderer's format and begins pulling
	Start(r Renderer) error

	// SetVolume sets the volume (0-100)
	SetVolume(volume int)
	SetMuted(muted bool)
	Volume() int
	Muted() bool

	// Close releases output resources
	Close() error
}

// New creates an output for the named backend ("oto" or "malgo")
func New(backend string) (Output, error) {
	switch strings.ToLower(backend) {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(16), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", backend)
	}
}

// volume is the software master volume shared by the backends
type volume struct {
	mu    sync.Mutex
	level int
	muted bool
}

// SetVolume sets the volume (0-100)
func (v *volume) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.mu.Lock()
	v.level = level
	v.mu.Unlock()
	log.Printf("Volume set to %d", level)
}

// SetMuted sets mute state
func (v *volume) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// Volume returns current volume
func (v *volume) Volume() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

// Muted returns mute state
func (v *volume) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

func (v *volume) multiplier() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return getVolumeMultiplier(v.level, v.muted)
}

// applyVolume scales samples in place with clipping protection
func applyVolume(samples []float32, multiplier float32) {
	if multiplier == 1 {
		return
	}
	for i, s := range samples {
		s *= multiplier
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = s
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(level int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(level) / 100
}
