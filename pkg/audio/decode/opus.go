// ABOUTME: Ogg Opus audio decoder
// ABOUTME: Decodes Ogg Opus files via opusfile at the fixed 48kHz Opus rate
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// opusRate is the rate opusfile always decodes at
const opusRate = 48000

// Opus decodes Ogg Opus files
type Opus struct{}

// Decode reads the whole stream
func (Opus) Decode(r io.ReadSeeker) (*audio.Buffer, error) {
	channels, err := opusChannels(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind opus stream: %w", err)
	}

	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open opus stream: %w", err)
	}
	defer stream.Close()

	var samples []float32
	chunk := make([]float32, 5760*channels) // 120ms, the largest Opus frame
	for {
		n, err := stream.ReadFloat32(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}
		// n counts samples per channel
		samples = append(samples, chunk[:n*channels]...)
	}

	return audio.NewBuffer(samples, opusRate, channels)
}

// opusChannels reads the channel count from the OpusHead packet that opens
// the first Ogg page
func opusChannels(r io.Reader) (int, error) {
	var header [27]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("failed to read ogg page: %w", err)
	}
	if !bytes.Equal(header[:4], []byte("OggS")) {
		return 0, errors.New("not an ogg stream")
	}

	segments := make([]byte, header[26])
	if _, err := io.ReadFull(r, segments); err != nil {
		return 0, fmt.Errorf("failed to read ogg segment table: %w", err)
	}

	var head [10]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, fmt.Errorf("failed to read OpusHead: %w", err)
	}
	if !bytes.Equal(head[:8], []byte("OpusHead")) {
		return 0, fmt.Errorf("%w: ogg stream is not opus", ErrUnsupportedFormat)
	}
	if head[9] == 0 {
		return 0, errors.New("opus stream declares no channels")
	}
	return int(head[9]), nil
}
