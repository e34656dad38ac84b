// ABOUTME: WAV audio decoder
// ABOUTME: Decodes integer PCM WAV files via go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag
const wavFormatPCM = 1

// WAV decodes integer PCM WAV files
type WAV struct{}

// Decode reads the whole file
func (WAV) Decode(r io.ReadSeeker) (*audio.Buffer, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file format")
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedFormat, bitDepth)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	samples := make([]float32, len(pcm.Data))
	for i, s := range pcm.Data {
		samples[i] = audio.SampleFromBits(int32(s), bitDepth)
	}
	return audio.NewBuffer(samples, int(decoder.SampleRate), int(decoder.NumChans))
}
