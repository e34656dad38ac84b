// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample/gain conversion functions
// Package audio provides fundamental audio types shared by the decoders,
// the mixing graph and the playback engine.
//
// This package defines:
//   - Format: Describes an audio stream (codec, sample rate, channels, bit depth)
//   - Buffer: A fully decoded audio file as interleaved float32 PCM
//
// It also provides conversions between integer PCM and float32 samples, and
// between decibels and linear amplitude.
//
// Example:
//
//	buf, err := audio.NewBuffer(samples, 48000, 2)
//	fmt.Printf("%.2fs\n", buf.Duration())
//
//	gain := audio.DBToLinear(-6) // ≈ 0.501
package audio
