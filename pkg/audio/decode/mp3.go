// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 files to float32 buffers via go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// MP3 decodes MP3 files. go-mp3 always produces 16-bit stereo.
type MP3 struct{}

// Decode reads the whole stream
func (MP3) Decode(r io.ReadSeeker) (*audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	// 2 bytes per int16 sample
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return audio.NewBuffer(samples, decoder.SampleRate(), 2)
}
