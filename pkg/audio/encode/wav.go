// ABOUTME: WAV audio encoder
// ABOUTME: Encodes float32 samples to 16-bit or 24-bit PCM WAV via go-audio/wav
package encode

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag
const wavFormatPCM = 1

// WAVEncoder encodes PCM WAV files
type WAVEncoder struct {
	enc    *wav.Encoder
	format audio.Format
	buf    *goaudio.IntBuffer
}

// NewWAV creates a WAV encoder writing to w. The header is patched with the
// final length on Close, so w must be seekable.
func NewWAV(w io.WriteSeeker, format audio.Format) (*WAVEncoder, error) {
	if format.Codec != "wav" {
		return nil, fmt.Errorf("invalid codec for WAV encoder: %s", format.Codec)
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid format: %dHz %dch", format.SampleRate, format.Channels)
	}

	return &WAVEncoder{
		enc:    wav.NewEncoder(w, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM),
		format: format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

// Encode converts samples to integer PCM and writes them
func (e *WAVEncoder) Encode(samples []float32) error {
	if len(samples)%e.format.Channels != 0 {
		return fmt.Errorf("sample count %d not aligned to %d channels", len(samples), e.format.Channels)
	}

	data := e.buf.Data[:0]
	for _, s := range samples {
		if e.format.BitDepth == 24 {
			data = append(data, int(audio.SampleToInt24(s)))
		} else {
			data = append(data, int(audio.SampleToInt16(s)))
		}
	}
	e.buf.Data = data

	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	return nil
}

// Close writes the final header
func (e *WAVEncoder) Close() error {
	return e.enc.Close()
}
