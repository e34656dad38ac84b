// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts decoded buffers between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, either streamed in chunks
// through a Resampler or for a whole decoded buffer at once.
//
// Example:
//
//	buf, err := resample.Buffer(decoded, 48000)
package resample
