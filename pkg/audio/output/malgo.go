// ABOUTME: Malgo-based audio output implementation with 24-bit support
// ABOUTME: The miniaudio data callback renders the graph directly into the device buffer
package output

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	volume

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	renderer Renderer
	channels int
	bitDepth int

	// scratch is only touched by the device callback
	scratch []float32
	mu      sync.Mutex
}

// NewMalgo creates a new Malgo output writing samples of bitDepth bits
func NewMalgo(bitDepth int) *Malgo {
	return &Malgo{
		volume:   volume{level: 100},
		bitDepth: bitDepth,
	}
}

// Start initializes the output device and starts pulling from r
func (m *Malgo) Start(r Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return errors.New("output already started")
	}

	format, err := malgoFormat(m.bitDepth)
	if err != nil {
		return err
	}

	// Create malgo context if needed
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	m.renderer = r
	m.channels = r.Channels()

	// Configure device
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(m.channels)
	deviceConfig.SampleRate = uint32(r.SampleRate())
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.fill(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit (malgo/%s)",
		r.SampleRate(), m.channels, m.bitDepth, formatName(format))
	return nil
}

// fill renders frameCount frames and packs them in the device format
func (m *Malgo) fill(output []byte, frameCount uint32) {
	total := int(frameCount) * m.channels
	if cap(m.scratch) < total {
		m.scratch = make([]float32, total)
	}
	samples := m.scratch[:total]

	m.renderer.Render(samples)
	applyVolume(samples, m.volume.multiplier())

	switch m.bitDepth {
	case 16:
		write16Bit(output, samples)
	case 24:
		write24Bit(output, samples)
	case 32:
		write32Bit(output, samples)
	}
}

// write16Bit converts float32 samples to 16-bit output
func write16Bit(output []byte, samples []float32) {
	for i, sample := range samples {
		sample16 := audio.SampleToInt16(sample)
		output[i*2] = byte(sample16)
		output[i*2+1] = byte(sample16 >> 8)
	}
}

// write24Bit converts float32 samples to 24-bit output (3 bytes per sample)
func write24Bit(output []byte, samples []float32) {
	for i, sample := range samples {
		sample24 := audio.SampleToInt24(sample)
		output[i*3] = byte(sample24)
		output[i*3+1] = byte(sample24 >> 8)
		output[i*3+2] = byte(sample24 >> 16)
	}
}

// write32Bit converts float32 samples to 32-bit output
func write32Bit(output []byte, samples []float32) {
	for i, sample := range samples {
		// 24-bit value in the upper bits of the 32-bit container
		sample32 := audio.SampleToInt24(sample) << 8
		output[i*4] = byte(sample32)
		output[i*4+1] = byte(sample32 >> 8)
		output[i*4+2] = byte(sample32 >> 16)
		output[i*4+3] = byte(sample32 >> 24)
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

func malgoFormat(bitDepth int) (malgo.FormatType, error) {
	switch bitDepth {
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", bitDepth)
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
