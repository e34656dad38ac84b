// ABOUTME: Decoder interface and file-extension dispatch
// ABOUTME: Turns encoded audio files into fully decoded float32 buffers
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// ErrUnsupportedFormat is returned for files no decoder handles
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder decodes a whole encoded stream into a buffer
type Decoder interface {
	Decode(r io.ReadSeeker) (*audio.Buffer, error)
}

// ForPath picks a decoder by file extension
func ForPath(path string) (Decoder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return WAV{}, nil
	case ".mp3":
		return MP3{}, nil
	case ".flac":
		return FLAC{}, nil
	case ".opus", ".ogg":
		return Opus{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeFile opens and decodes the file at path
func DecodeFile(path string) (*audio.Buffer, error) {
	dec, err := ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	buf, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return buf, nil
}
