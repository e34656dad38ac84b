// ABOUTME: Audio decoder package for loading clip source files
// ABOUTME: Provides Decoder interface and implementations for WAV, MP3, FLAC and Ogg Opus
// Package decode loads audio files into memory.
//
// Supports: WAV (16, 24 and 32-bit PCM), MP3, FLAC, Ogg Opus
//
// All decoders produce an *audio.Buffer of interleaved float32 samples at
// the file's native sample rate. Use package resample to convert to the
// output device rate.
//
// Example:
//
//	buf, err := decode.DecodeFile("drums.flac")
//	if errors.Is(err, decode.ErrUnsupportedFormat) {
//		// skip it
//	}
package decode
