// ABOUTME: Oto-based audio output implementation
// ABOUTME: The oto player reads float32 frames straight from the renderer
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	volume

	otoCtx     *oto.Context
	player     *oto.Player
	sampleRate int
	channels   int
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{volume: volume{level: 100}}
}

// Start initializes the output device and starts pulling from r
func (o *Oto) Start(r Renderer) error {
	if o.player != nil {
		return errors.New("output already started")
	}

	sampleRate, channels := r.SampleRate(), r.Channels()

	// oto allows one context per process, so a reopened output keeps it
	if o.otoCtx != nil && (o.sampleRate != sampleRate || o.channels != channels) {
		return fmt.Errorf("oto cannot reinitialize from %dHz %dch to %dHz %dch",
			o.sampleRate, o.channels, sampleRate, channels)
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   20 * time.Millisecond,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	}

	o.player = o.otoCtx.NewPlayer(&volumeReader{src: r, volume: &o.volume})
	o.player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels (oto)", sampleRate, channels)
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

// volumeReader applies the master volume to float32 little-endian frames
// as the player reads them
type volumeReader struct {
	src    Renderer
	volume *volume
}

func (v *volumeReader) Read(p []byte) (int, error) {
	n, err := v.src.Read(p)
	m := v.volume.multiplier()
	if m == 1 {
		return n, err
	}

	for i := 0; i+4 <= n; i += 4 {
		s := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
		s *= m
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint32(p[i:], math.Float32bits(s))
	}
	return n, err
}
