// ABOUTME: Audio encoder package for writing rendered audio
// ABOUTME: Provides Encoder interface and a PCM WAV implementation
// Package encode writes rendered audio to files, for offline mixdowns of
// the timeline.
//
// Supports: WAV (16-bit and 24-bit PCM)
//
// Example:
//
//	f, _ := os.Create("mixdown.wav")
//	enc, err := encode.NewWAV(f, audio.Format{Codec: "wav", SampleRate: 48000, Channels: 2, BitDepth: 16})
//	err = enc.Encode(frames)
//	err = enc.Close()
package encode
